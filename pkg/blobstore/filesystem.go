package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/rs/zerolog"
)

// tmpPrefix marks in-progress writes. Such files never parse as a DateKey
// filename, so List consumers ignore them.
const tmpPrefix = ".tmp-"

// FilesystemStore stores each day as <dir>/<DateKey>.png on a billy filesystem.
// Writes go to a uniquely named temp file that is renamed into place, so
// concurrent writes for different keys never share a file.
type FilesystemStore struct {
	fs     billy.Filesystem
	dir    string
	logger zerolog.Logger
}

// NewLocalStore creates a FilesystemStore rooted at the given directory on local disk.
func NewLocalStore(root string, logger zerolog.Logger) (*FilesystemStore, error) {
	if root == "" {
		return nil, errors.New("cache directory is required")
	}
	return NewFilesystemStore(osfs.New(root), ".", logger)
}

// NewFilesystemStore creates a FilesystemStore in dir on fs, creating dir if needed
// and removing temp files left behind by abandoned writes.
func NewFilesystemStore(fs billy.Filesystem, dir string, logger zerolog.Logger) (*FilesystemStore, error) {
	if fs == nil {
		return nil, errors.New("filesystem cannot be nil")
	}
	if dir == "" {
		dir = "."
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	s := &FilesystemStore{
		fs:     fs,
		dir:    dir,
		logger: logger.With().Str("component", "FilesystemStore").Logger(),
	}
	s.removeAbandoned()
	s.logger.Info().Str("root", fs.Root()).Str("dir", dir).Msg("Filesystem store initialized.")
	return s, nil
}

func (s *FilesystemStore) path(name string) string {
	return s.fs.Join(s.dir, name)
}

// Read returns the bytes stored for key.
func (s *FilesystemStore) Read(_ context.Context, key datekey.Key) ([]byte, error) {
	data, err := util.ReadFile(s.fs, s.path(key.Filename()))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key.Filename(), ErrNotExist)
		}
		return nil, fmt.Errorf("failed to read %s: %w", key.Filename(), err)
	}
	return data, nil
}

// Write stores data for key via temp file + rename.
func (s *FilesystemStore) Write(_ context.Context, key datekey.Key, data []byte) error {
	tmpPath := s.path(tmpPrefix + string(key) + "-" + uuid.NewString())

	f, err := s.fs.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file for %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file for %s: %w", key, err)
	}

	if err := s.fs.Rename(tmpPath, s.path(key.Filename())); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("failed to move %s into place: %w", key.Filename(), err)
	}
	return nil
}

// Delete removes the file for key; a missing file is not an error.
func (s *FilesystemStore) Delete(_ context.Context, key datekey.Key) error {
	err := s.fs.Remove(s.path(key.Filename()))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", key.Filename(), err)
	}
	return nil
}

// List returns the names of the regular files in the cache directory.
// A missing directory lists as empty.
func (s *FilesystemStore) List(_ context.Context) ([]string, error) {
	infos, err := s.fs.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		names = append(names, info.Name())
	}
	return names, nil
}

// removeAbandoned deletes temp files from writes that never completed.
func (s *FilesystemStore) removeAbandoned() {
	infos, err := s.fs.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, info := range infos {
		if info.IsDir() || !strings.HasPrefix(info.Name(), tmpPrefix) {
			continue
		}
		if err := s.fs.Remove(s.path(info.Name())); err != nil {
			s.logger.Warn().Err(err).Str("file", info.Name()).Msg("Failed to remove abandoned temp file.")
			continue
		}
		s.logger.Debug().Str("file", info.Name()).Msg("Removed abandoned temp file.")
	}
}

// Close is a no-op; the filesystem has no connection to release.
func (s *FilesystemStore) Close() error {
	return nil
}

var _ io.Closer = (*FilesystemStore)(nil)
