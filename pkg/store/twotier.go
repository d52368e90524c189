// Package store combines the memory tier and the durable tier into the single
// mutable resource the image cache works through. All mutation goes through
// Put and Remove so the tiers stay in step.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/illmade-knight/go-comiccache/pkg/blobstore"
	"github.com/illmade-knight/go-comiccache/pkg/cache"
	"github.com/illmade-knight/go-comiccache/pkg/comic"
	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/rs/zerolog"
)

// MemoryTier is the fast-path tier. It must allow concurrent reads during a write.
type MemoryTier = cache.PresenceCache[datekey.Key, *comic.Blob]

// TwoTier is the memory + disk store. Disk is the source of truth; memory
// duplicates what has been read or written this session.
type TwoTier struct {
	memory MemoryTier
	disk   blobstore.Store
	logger zerolog.Logger
}

// New creates a TwoTier store.
func New(memory MemoryTier, disk blobstore.Store, logger zerolog.Logger) (*TwoTier, error) {
	if memory == nil {
		return nil, errors.New("memory tier cannot be nil")
	}
	if disk == nil {
		return nil, errors.New("disk tier cannot be nil")
	}
	return &TwoTier{
		memory: memory,
		disk:   disk,
		logger: logger.With().Str("component", "TwoTierStore").Logger(),
	}, nil
}

// GetMemory returns the memory-resident blob for key without touching disk.
func (s *TwoTier) GetMemory(ctx context.Context, key datekey.Key) (*comic.Blob, bool) {
	blob, err := s.memory.Fetch(ctx, key)
	if err != nil || blob == nil {
		return nil, false
	}
	return blob, true
}

// GetDisk reads key from durable storage. An absent entry returns an error
// wrapping blobstore.ErrNotExist; unreadable or undecodable bytes return a
// *comic.StorageReadError. The memory tier is not touched.
func (s *TwoTier) GetDisk(ctx context.Context, key datekey.Key) (*comic.Blob, error) {
	data, err := s.disk.Read(ctx, key)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotExist) {
			return nil, err
		}
		return nil, &comic.StorageReadError{Key: key, Err: err}
	}
	blob, err := comic.Decode(key, data)
	if err != nil {
		return nil, &comic.StorageReadError{Key: key, Err: err}
	}
	return blob, nil
}

// Promote places a blob read from disk into the memory tier.
func (s *TwoTier) Promote(ctx context.Context, key datekey.Key, blob *comic.Blob) {
	if err := s.memory.Set(ctx, key, blob); err != nil {
		s.logger.Warn().Err(err).Str("key", string(key)).Msg("Failed to promote blob to memory.")
	}
}

// Put writes blob to memory, then to disk. A disk failure is logged and
// returned as a *comic.StorageWriteError; the memory entry is kept so the
// session still serves the blob.
func (s *TwoTier) Put(ctx context.Context, key datekey.Key, blob *comic.Blob) error {
	if blob == nil {
		return fmt.Errorf("cannot put nil blob for %s", key)
	}
	if err := s.memory.Set(ctx, key, blob); err != nil {
		s.logger.Warn().Err(err).Str("key", string(key)).Msg("Failed to write blob to memory.")
	}
	if err := s.disk.Write(ctx, key, blob.Data); err != nil {
		s.logger.Warn().Err(err).Str("key", string(key)).Msg("Failed to persist blob; serving from memory only.")
		return &comic.StorageWriteError{Key: key, Err: err}
	}
	return nil
}

// Remove deletes key from both tiers. Removing an absent key is a no-op.
// Both tiers are attempted even when one fails.
func (s *TwoTier) Remove(ctx context.Context, key datekey.Key) error {
	memErr := s.memory.Delete(ctx, key)
	diskErr := s.disk.Delete(ctx, key)
	if err := errors.Join(memErr, diskErr); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// ListDiskKeys enumerates durable storage in key order. Names that are not
// <DateKey>.png are skipped.
func (s *TwoTier) ListDiskKeys(ctx context.Context) ([]datekey.Key, error) {
	names, err := s.disk.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list durable tier: %w", err)
	}
	keys := make([]datekey.Key, 0, len(names))
	for _, name := range names {
		key, ok := datekey.KeyFromFilename(name)
		if !ok {
			s.logger.Debug().Str("file", name).Msg("Skipping unrecognised file.")
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// MemoryLen reports the number of memory-resident blobs.
func (s *TwoTier) MemoryLen() int {
	return s.memory.Len()
}

// Close closes both tiers.
func (s *TwoTier) Close() error {
	return errors.Join(s.memory.Close(), s.disk.Close())
}
