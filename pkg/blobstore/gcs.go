package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

// GCSStoreConfig names the bucket and object prefix used for the durable tier.
type GCSStoreConfig struct {
	BucketName   string
	ObjectPrefix string // e.g. "comics/"; empty stores at the bucket root
}

// GCSStore keeps each day as an object named <prefix><DateKey>.png.
type GCSStore struct {
	client GCSClient
	bucket GCSBucketHandle
	prefix string
	closer io.Closer
	logger zerolog.Logger
}

// NewGCSStore creates a GCSStore over an already configured client. closer, if
// non-nil, is closed by Close; pass the underlying *storage.Client when the store
// owns it.
func NewGCSStore(cfg GCSStoreConfig, client GCSClient, closer io.Closer, logger zerolog.Logger) (*GCSStore, error) {
	if client == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	prefix := cfg.ObjectPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &GCSStore{
		client: client,
		bucket: client.Bucket(cfg.BucketName),
		prefix: prefix,
		closer: closer,
		logger: logger.With().Str("component", "GCSStore").Str("bucket", cfg.BucketName).Logger(),
	}, nil
}

func (s *GCSStore) objectName(key datekey.Key) string {
	return s.prefix + key.Filename()
}

// Read downloads the object for key.
func (s *GCSStore) Read(ctx context.Context, key datekey.Key) ([]byte, error) {
	name := s.objectName(key)
	r, err := s.bucket.Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotExist)
		}
		return nil, fmt.Errorf("failed to open object %s: %w", name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", name, err)
	}
	return data, nil
}

// Write uploads data for key. A failed upload is aborted by cancelling the
// writer's context, which leaves any previous object in place.
func (s *GCSStore) Write(ctx context.Context, key datekey.Key, data []byte) error {
	name := s.objectName(key)
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.bucket.Object(name).NewWriter(writeCtx)
	if _, err := w.Write(data); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("failed to write object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object %s: %w", name, err)
	}
	s.logger.Debug().Str("object", name).Int("bytes", len(data)).Msg("Uploaded comic.")
	return nil
}

// Delete removes the object for key; a missing object is not an error.
func (s *GCSStore) Delete(ctx context.Context, key datekey.Key) error {
	name := s.objectName(key)
	err := s.bucket.Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete object %s: %w", name, err)
	}
	return nil
}

// List returns the names of objects directly under the prefix, with the prefix
// stripped.
func (s *GCSStore) List(ctx context.Context) ([]string, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: s.prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %q: %w", s.prefix, err)
		}
		name := strings.TrimPrefix(attrs.Name, s.prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Close releases the underlying client if the store owns it.
func (s *GCSStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
