package viewer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-comiccache/pkg/comic"
	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/illmade-knight/go-comiccache/pkg/prefetch"
	"github.com/illmade-knight/go-comiccache/pkg/settings"
	"github.com/illmade-knight/go-comiccache/pkg/viewer"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLoader struct {
	LoadFunc func(ctx context.Context) (*settings.Settings, error)
}

func (m *mockLoader) Load(ctx context.Context) (*settings.Settings, error) {
	return m.LoadFunc(ctx)
}

type mockCache struct {
	mu        sync.Mutex
	today     datekey.Day
	firstDate datekey.Day
	memory    map[datekey.Day]*comic.Blob
}

func newMockCache(today datekey.Day) *mockCache {
	return &mockCache{today: today, memory: make(map[datekey.Day]*comic.Blob)}
}

func (m *mockCache) Resolve(_ context.Context, day datekey.Day, allowFuture bool) (*comic.Blob, bool) {
	if day.After(m.today) && !allowFuture {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.memory[day]
	if !ok {
		blob = &comic.Blob{Key: datekey.KeyOf(day)}
		m.memory[day] = blob
	}
	return blob, true
}

func (m *mockCache) CachedImage(day datekey.Day) (*comic.Blob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.memory[day]
	return blob, ok
}

func (m *mockCache) Today() datekey.Day { return m.today }

func (m *mockCache) SetFirstDate(day datekey.Day) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.firstDate = day
}

type prefetchCall struct {
	Ref          datekey.Day
	Past, Future int
}

type mockPrefetcher struct {
	BackfillFunc func(ctx context.Context, first, today datekey.Day) <-chan prefetch.Batch
	mu           sync.Mutex
	calls        []prefetchCall
}

func (m *mockPrefetcher) Backfill(ctx context.Context, first, today datekey.Day) <-chan prefetch.Batch {
	return m.BackfillFunc(ctx, first, today)
}

func (m *mockPrefetcher) PrefetchAround(ref datekey.Day, past, future int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, prefetchCall{Ref: ref, Past: past, Future: future})
	return past + future + 1
}

func testSettings() *settings.Settings {
	return &settings.Settings{
		FirstDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		AppName:   "Zeurkalender",
		MailBody:  "De zeur van vandaag",
	}
}

// staticBackfill emits today first, then the older days once release is closed.
func staticBackfill(cache *mockCache, release <-chan struct{}) func(context.Context, datekey.Day, datekey.Day) <-chan prefetch.Batch {
	return func(ctx context.Context, first, today datekey.Day) <-chan prefetch.Batch {
		out := make(chan prefetch.Batch, 2)
		go func() {
			defer close(out)
			cache.Resolve(ctx, today, false)
			out <- prefetch.Batch{Initial: true, Days: []datekey.Day{today}}
			<-release
			older := datekey.Range(first, today.AddDays(-1))
			for _, d := range older {
				cache.Resolve(ctx, d, false)
			}
			out <- prefetch.Batch{Days: older}
		}()
		return out
	}
}

func newTestApp(t *testing.T, release <-chan struct{}) (*viewer.App, *mockCache, *mockPrefetcher) {
	t.Helper()
	cache := newMockCache(jan(5))
	pf := &mockPrefetcher{BackfillFunc: staticBackfill(cache, release)}
	loader := &mockLoader{LoadFunc: func(context.Context) (*settings.Settings, error) { return testSettings(), nil }}
	app := viewer.NewApp(loader, cache, pf, viewer.Window{Past: 3, Future: 1}, zerolog.Nop())
	return app, cache, pf
}

func TestApp_LoadShowsTodayFirst(t *testing.T) {
	// Arrange
	release := make(chan struct{})
	app, cache, _ := newTestApp(t, release)
	ctx := context.Background()

	// Act
	require.NoError(t, app.Load(ctx))

	// Assert: only today is on the timeline until the backfill is released.
	assert.Equal(t, []datekey.Day{jan(5)}, app.Timeline().Days())
	day, _, ok := app.Timeline().Current()
	require.True(t, ok)
	assert.Equal(t, jan(5), day)
	assert.Equal(t, jan(1), cache.firstDate)

	close(release)
	require.NoError(t, app.WaitBackfill(ctx))
	assert.Equal(t, datekey.Range(jan(1), jan(5)), app.Timeline().Days())
	day, idx, _ := app.Timeline().Current()
	assert.Equal(t, jan(5), day)
	assert.Equal(t, 4, idx)
}

func TestApp_LoadFailureIsSurfaced(t *testing.T) {
	cache := newMockCache(jan(5))
	loader := &mockLoader{LoadFunc: func(context.Context) (*settings.Settings, error) {
		return nil, errors.New("dns failure")
	}}
	pf := &mockPrefetcher{BackfillFunc: func(context.Context, datekey.Day, datekey.Day) <-chan prefetch.Batch {
		t.Fatal("backfill must not start without settings")
		return nil
	}}
	app := viewer.NewApp(loader, cache, pf, viewer.Window{Past: 3, Future: 1}, zerolog.Nop())

	err := app.Load(context.Background())
	var loadErr *settings.LoadError
	require.ErrorAs(t, err, &loadErr)

	_, ok := app.Settings()
	assert.False(t, ok)
	assert.ErrorIs(t, app.WaitBackfill(context.Background()), viewer.ErrNotLoaded)
	_, err = app.Share(viewer.ShareMail)
	assert.ErrorIs(t, err, viewer.ErrNotLoaded)
}

func TestApp_NavigateClipsPrefetchWindow(t *testing.T) {
	release := make(chan struct{})
	close(release)
	app, _, pf := newTestApp(t, release)
	ctx := context.Background()
	require.NoError(t, app.Load(ctx))
	require.NoError(t, app.WaitBackfill(ctx))

	idx, err := app.Navigate(jan(2))
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	idx, err = app.Navigate(jan(5))
	require.NoError(t, err)
	assert.Equal(t, 4, idx)

	_, err = app.Navigate(jan(9))
	assert.Error(t, err)

	pf.mu.Lock()
	defer pf.mu.Unlock()
	assert.Equal(t, []prefetchCall{
		{Ref: jan(2), Past: 1, Future: 1},
		{Ref: jan(5), Past: 3, Future: 0},
	}, pf.calls)
}

func TestApp_Share(t *testing.T) {
	release := make(chan struct{})
	close(release)
	app, cache, _ := newTestApp(t, release)
	ctx := context.Background()
	require.NoError(t, app.Load(ctx))

	want, ok := cache.CachedImage(jan(5))
	require.True(t, ok)

	payload, err := app.Share(viewer.ShareMail)
	require.NoError(t, err)
	mail, ok := payload.(viewer.MailShare)
	require.True(t, ok)
	assert.Equal(t, viewer.ShareMail, mail.Target())
	assert.Same(t, want, mail.Image)
	assert.Equal(t, "Zeurkalender", mail.Subject)
	assert.Equal(t, "De zeur van vandaag", mail.Body)

	payload, err = app.Share(viewer.ParseShareTarget("messages"))
	require.NoError(t, err)
	generic, ok := payload.(viewer.GenericShare)
	require.True(t, ok)
	assert.Equal(t, viewer.ShareOther, generic.Target())
	assert.Equal(t, "Zeurkalender", generic.Subject)
}

func TestApp_ShareRequiresMemoryResidentImage(t *testing.T) {
	cache := newMockCache(jan(5))
	pf := &mockPrefetcher{BackfillFunc: func(context.Context, datekey.Day, datekey.Day) <-chan prefetch.Batch {
		out := make(chan prefetch.Batch, 1)
		out <- prefetch.Batch{Initial: true, Missing: []datekey.Day{jan(5)}}
		close(out)
		return out
	}}
	loader := &mockLoader{LoadFunc: func(context.Context) (*settings.Settings, error) { return testSettings(), nil }}
	app := viewer.NewApp(loader, cache, pf, viewer.Window{Past: 3, Future: 1}, zerolog.Nop())
	require.NoError(t, app.Load(context.Background()))

	_, err := app.Share(viewer.ShareOther)
	assert.ErrorIs(t, err, viewer.ErrNothingToShare)
}

func TestApp_JumpToTodayAndImage(t *testing.T) {
	release := make(chan struct{})
	close(release)
	app, cache, _ := newTestApp(t, release)
	ctx := context.Background()
	require.NoError(t, app.Load(ctx))
	require.NoError(t, app.WaitBackfill(ctx))

	_, err := app.Navigate(jan(2))
	require.NoError(t, err)

	cache.today = jan(6)
	today, err := app.JumpToToday()
	require.NoError(t, err)
	assert.Equal(t, jan(6), today)
	day, _, _ := app.Timeline().Current()
	assert.Equal(t, jan(6), day)

	_, ok := app.Image(ctx, jan(7))
	assert.False(t, ok, "future days are not shown")
	_, ok = app.Image(ctx, jan(6))
	assert.True(t, ok)
}
