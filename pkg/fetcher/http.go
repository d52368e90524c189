package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/illmade-knight/go-comiccache/pkg/comic"
	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/rs/zerolog"
)

// maxImageBytes caps a response body; daily strips are far smaller.
const maxImageBytes = 32 << 20

// HTTPFetcher performs GET {base}{DateKey}.png.
type HTTPFetcher struct {
	base    string
	timeout time.Duration
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPFetcher creates an HTTPFetcher. The base is a prefix: the filename is
// appended to it verbatim. A nil client uses a fresh *http.Client.
func NewHTTPFetcher(base string, timeout time.Duration, client *http.Client, logger zerolog.Logger) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPFetcher{
		base:    base,
		timeout: timeout,
		client:  client,
		logger:  logger.With().Str("component", "HTTPFetcher").Logger(),
	}
}

// URL returns the address the image for key is fetched from.
func (f *HTTPFetcher) URL(key datekey.Key) string {
	return f.base + key.Filename()
}

// Fetch downloads and verifies the image for key.
func (f *HTTPFetcher) Fetch(ctx context.Context, key datekey.Key) (*comic.Blob, error) {
	target := f.URL(key)
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &comic.NetworkError{Key: key, URL: target, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &comic.NetworkError{Key: key, URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &comic.NetworkError{Key: key, URL: target, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, &comic.NetworkError{Key: key, URL: target, StatusCode: resp.StatusCode, Err: err}
	}
	if len(data) > maxImageBytes {
		return nil, &comic.NetworkError{Key: key, URL: target, StatusCode: resp.StatusCode, Err: fmt.Errorf("body exceeds %d bytes", maxImageBytes)}
	}
	blob, err := comic.Decode(key, data)
	if err != nil {
		return nil, &comic.NetworkError{Key: key, URL: target, StatusCode: resp.StatusCode, Err: err}
	}

	f.logger.Debug().Str("key", string(key)).Int("bytes", len(data)).Msg("Fetched comic.")
	return blob, nil
}

// Close releases idle connections.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}
