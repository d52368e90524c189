package fetcher

import (
	"context"
	"strings"
	"time"

	"github.com/illmade-knight/go-comiccache/pkg/blobstore"
	"github.com/illmade-knight/go-comiccache/pkg/comic"
	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/rs/zerolog"
)

// StoreFetcher reads published images from a blobstore, used when images are
// published to a bucket or a mounted directory rather than over HTTP.
type StoreFetcher struct {
	location string
	source   blobstore.Store
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewStoreFetcher creates a StoreFetcher. location is only used in errors and logs.
func NewStoreFetcher(location string, source blobstore.Store, timeout time.Duration, logger zerolog.Logger) *StoreFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &StoreFetcher{
		location: location,
		source:   source,
		timeout:  timeout,
		logger:   logger.With().Str("component", "StoreFetcher").Logger(),
	}
}

// Fetch reads and verifies the image for key.
func (f *StoreFetcher) Fetch(ctx context.Context, key datekey.Key) (*comic.Blob, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	target := strings.TrimSuffix(f.location, "/") + "/" + key.Filename()
	data, err := f.source.Read(ctx, key)
	if err != nil {
		return nil, &comic.NetworkError{Key: key, URL: target, Err: err}
	}
	blob, err := comic.Decode(key, data)
	if err != nil {
		return nil, &comic.NetworkError{Key: key, URL: target, Err: err}
	}
	f.logger.Debug().Str("key", string(key)).Msg("Read comic from source store.")
	return blob, nil
}

// Close closes the source store.
func (f *StoreFetcher) Close() error {
	return f.source.Close()
}
