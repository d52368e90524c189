package settings

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Loader retrieves the settings document.
type Loader interface {
	Load(ctx context.Context) (*Settings, error)
}

// LoadError is the one failure the viewer surfaces: without settings there is
// no first date and no archive to show.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load settings from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// maxSettingsBytes caps the settings response.
const maxSettingsBytes = 1 << 20

// HTTPLoader fetches settings.json over HTTP.
type HTTPLoader struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

// NewHTTPLoader creates an HTTPLoader. A nil client uses a fresh *http.Client.
func NewHTTPLoader(url string, client *http.Client, timeout time.Duration, logger zerolog.Logger) *HTTPLoader {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPLoader{
		url:     url,
		client:  client,
		timeout: timeout,
		logger:  logger.With().Str("component", "HTTPSettingsLoader").Logger(),
	}
}

// Load fetches and decodes the settings document.
func (l *HTTPLoader) Load(ctx context.Context) (*Settings, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	l.logger.Info().Str("url", l.url).Msg("Fetching settings.")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, &LoadError{Source: l.url, Err: err}
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &LoadError{Source: l.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &LoadError{Source: l.url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSettingsBytes+1))
	if err != nil {
		return nil, &LoadError{Source: l.url, Err: err}
	}
	if len(data) > maxSettingsBytes {
		return nil, &LoadError{Source: l.url, Err: fmt.Errorf("settings document exceeds %d bytes", maxSettingsBytes)}
	}
	s, err := Decode(data)
	if err != nil {
		return nil, &LoadError{Source: l.url, Err: err}
	}
	return s, nil
}

// FileLoader reads settings.json from disk, for offline use.
type FileLoader struct {
	Path string
}

// Load reads and decodes the file.
func (l FileLoader) Load(_ context.Context) (*Settings, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, &LoadError{Source: l.Path, Err: err}
	}
	s, err := Decode(data)
	if err != nil {
		return nil, &LoadError{Source: l.Path, Err: err}
	}
	return s, nil
}
