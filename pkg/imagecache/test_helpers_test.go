package imagecache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/illmade-knight/go-comiccache/internal/comictest"
	"github.com/illmade-knight/go-comiccache/pkg/blobstore"
	"github.com/illmade-knight/go-comiccache/pkg/cache"
	"github.com/illmade-knight/go-comiccache/pkg/comic"
	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/illmade-knight/go-comiccache/pkg/events"
	"github.com/illmade-knight/go-comiccache/pkg/imagecache"
	"github.com/illmade-knight/go-comiccache/pkg/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// mockFetcher serves PNG fixtures unless FetchFunc overrides it.
type mockFetcher struct {
	FetchFunc func(ctx context.Context, key datekey.Key) (*comic.Blob, error)
	calls     atomic.Int32
}

func (m *mockFetcher) Fetch(ctx context.Context, key datekey.Key) (*comic.Blob, error) {
	m.calls.Add(1)
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, key)
	}
	return comic.Decode(key, comictest.PNG(int(m.calls.Load())))
}

func (m *mockFetcher) Close() error { return nil }

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Stop(_ context.Context) error { return nil }

func (p *recordingPublisher) ofType(eventType string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	cache     *imagecache.ImageCache
	store     *store.TwoTier
	fs        billy.Filesystem
	fetcher   *mockFetcher
	publisher *recordingPublisher
}

func day(m time.Month, d int) datekey.Day {
	return datekey.New(2025, m, d)
}

func fixedClock(today datekey.Day) func() time.Time {
	return func() time.Time { return today.Time().Add(12 * time.Hour) }
}

// seedDisk writes valid images for days straight into the durable tier.
func seedDisk(t *testing.T, fs billy.Filesystem, days ...datekey.Day) {
	t.Helper()
	for i, d := range days {
		require.NoError(t, util.WriteFile(fs, "images/"+datekey.KeyOf(d).Filename(), comictest.PNG(100+i), 0o644))
	}
}

func newHarness(t *testing.T, today datekey.Day, cfg imagecache.Config, seed ...datekey.Day) *harness {
	t.Helper()
	fs := memfs.New()
	seedDisk(t, fs, seed...)

	disk, err := blobstore.NewFilesystemStore(fs, "images", zerolog.Nop())
	require.NoError(t, err)
	s, err := store.New(cache.NewInMemoryPresenceCache[datekey.Key, *comic.Blob](), disk, zerolog.Nop())
	require.NoError(t, err)

	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	f := &mockFetcher{}
	pub := &recordingPublisher{}
	c, err := imagecache.New(context.Background(), cfg, s, f, imagecache.Options{
		Publisher: pub,
		Now:       fixedClock(today),
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})

	return &harness{cache: c, store: s, fs: fs, fetcher: f, publisher: pub}
}

// diskDays lists the days currently in the durable tier.
func (h *harness) diskDays(t *testing.T) []datekey.Day {
	t.Helper()
	keys, err := h.store.ListDiskKeys(context.Background())
	require.NoError(t, err)
	days := make([]datekey.Day, 0, len(keys))
	for _, k := range keys {
		d, ok := datekey.DayOf(k)
		require.True(t, ok)
		days = append(days, d)
	}
	return days
}

// gatedStore blocks Put until release is closed, reporting on entered when a
// Put starts.
type gatedStore struct {
	*store.TwoTier
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(s *store.TwoTier) *gatedStore {
	return &gatedStore{TwoTier: s, entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gatedStore) Put(ctx context.Context, key datekey.Key, blob *comic.Blob) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.TwoTier.Put(ctx, key, blob)
}
