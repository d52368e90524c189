// Package fetcher retrieves the image for one day from its published location.
// A fetch is a single attempt: there is no retry and no backoff, the caller
// decides whether to try again.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-comiccache/pkg/blobstore"
	"github.com/illmade-knight/go-comiccache/pkg/comic"
	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// Fetcher returns a decoded blob for key. Every failure is a *comic.NetworkError.
// A Fetcher never writes to a cache; the image cache orchestrates write-after-fetch.
type Fetcher interface {
	Fetch(ctx context.Context, key datekey.Key) (*comic.Blob, error)
	io.Closer
}

// DefaultTimeout bounds a single fetch when none is configured.
const DefaultTimeout = 30 * time.Second

// Config describes where images are published.
type Config struct {
	// Location is the base the key filename is appended to: an http(s) URL,
	// a gs://bucket/prefix URL or a local directory.
	Location string
	Timeout  time.Duration
	// CredentialsFile is used for gs:// locations; empty means application
	// default credentials.
	CredentialsFile string
}

// New builds the Fetcher that matches the scheme of cfg.Location.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (Fetcher, error) {
	if cfg.Location == "" {
		return nil, fmt.Errorf("image location is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	u, err := url.Parse(cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("invalid image location %q: %w", cfg.Location, err)
	}

	switch u.Scheme {
	case "http", "https":
		return NewHTTPFetcher(cfg.Location, cfg.Timeout, nil, logger), nil
	case "gs":
		var opts []option.ClientOption
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		src, err := blobstore.NewGCSStore(blobstore.GCSStoreConfig{
			BucketName:   u.Host,
			ObjectPrefix: strings.TrimPrefix(u.Path, "/"),
		}, blobstore.NewGCSClientAdapter(client), client, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return NewStoreFetcher(cfg.Location, src, cfg.Timeout, logger), nil
	case "", "file":
		dir := cfg.Location
		if u.Scheme == "file" {
			dir = u.Path
		}
		src, err := blobstore.NewLocalStore(dir, logger)
		if err != nil {
			return nil, err
		}
		return NewStoreFetcher(cfg.Location, src, cfg.Timeout, logger), nil
	default:
		return nil, fmt.Errorf("unsupported image location scheme %q", u.Scheme)
	}
}
