// Package viewer drives the comic page sequence: it loads the settings,
// backfills the archive, tracks the current page and prepares share payloads.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/illmade-knight/go-comiccache/pkg/comic"
	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/illmade-knight/go-comiccache/pkg/prefetch"
	"github.com/illmade-knight/go-comiccache/pkg/settings"
	"github.com/rs/zerolog"
)

var (
	// ErrNotLoaded is returned before Load has succeeded.
	ErrNotLoaded = errors.New("settings not loaded")
	// ErrNothingToShare is returned when the current comic is not in memory.
	ErrNothingToShare = errors.New("current comic is not available to share")
)

// Cache is the part of the image cache the viewer uses.
type Cache interface {
	Resolve(ctx context.Context, day datekey.Day, allowFuture bool) (*comic.Blob, bool)
	CachedImage(day datekey.Day) (*comic.Blob, bool)
	Today() datekey.Day
	SetFirstDate(day datekey.Day)
}

// Prefetcher is the part of the prefetch scheduler the viewer uses.
type Prefetcher interface {
	Backfill(ctx context.Context, first, today datekey.Day) <-chan prefetch.Batch
	PrefetchAround(ref datekey.Day, past, future int) int
}

// Window is the navigation prefetch window in days.
type Window struct {
	Past   int
	Future int
}

// App owns the page sequence for one viewer.
type App struct {
	loader     settings.Loader
	cache      Cache
	prefetcher Prefetcher
	window     Window
	timeline   *Timeline
	logger     zerolog.Logger

	mu           sync.RWMutex
	settings     *settings.Settings
	backfillDone chan struct{}
}

// NewApp creates an App.
func NewApp(loader settings.Loader, cache Cache, prefetcher Prefetcher, window Window, logger zerolog.Logger) *App {
	return &App{
		loader:     loader,
		cache:      cache,
		prefetcher: prefetcher,
		window:     window,
		timeline:   NewTimeline(),
		logger:     logger.With().Str("component", "ViewerApp").Logger(),
	}
}

// Load fetches the settings, starts the backfill and returns once today's page
// is available. Older pages are merged into the timeline in the background.
// A settings failure is returned as a *settings.LoadError.
func (a *App) Load(ctx context.Context) error {
	s, err := a.loader.Load(ctx)
	if err != nil {
		var loadErr *settings.LoadError
		if !errors.As(err, &loadErr) {
			err = &settings.LoadError{Source: "settings", Err: err}
		}
		a.logger.Error().Err(err).Msg("Settings could not be loaded.")
		return err
	}

	first := s.FirstDay()
	today := a.cache.Today()
	a.cache.SetFirstDate(first)

	done := make(chan struct{})
	a.mu.Lock()
	a.settings = s
	a.backfillDone = done
	a.mu.Unlock()

	// The backfill outlives the load request; the scheduler's Stop ends it.
	batches := a.prefetcher.Backfill(context.WithoutCancel(ctx), first, today)

	select {
	case initial, ok := <-batches:
		if ok {
			a.timeline.Apply(initial)
			a.timeline.JumpToToday(today)
		}
	case <-ctx.Done():
		go a.drain(batches, done)
		return ctx.Err()
	}

	go a.drain(batches, done)
	a.logger.Info().
		Str("first_date", first.String()).
		Str("today", today.String()).
		Str("app_name", s.AppName).
		Msg("Viewer loaded.")
	return nil
}

func (a *App) drain(batches <-chan prefetch.Batch, done chan struct{}) {
	defer close(done)
	for b := range batches {
		a.timeline.Apply(b)
		if len(b.Missing) > 0 {
			a.logger.Warn().Int("missing", len(b.Missing)).Msg("Some days could not be backfilled.")
		}
	}
}

// WaitBackfill blocks until every backfill batch has been merged.
func (a *App) WaitBackfill(ctx context.Context) error {
	a.mu.RLock()
	done := a.backfillDone
	a.mu.RUnlock()
	if done == nil {
		return ErrNotLoaded
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Settings returns the loaded settings.
func (a *App) Settings() (*settings.Settings, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings, a.settings != nil
}

// Timeline returns the page sequence.
func (a *App) Timeline() *Timeline {
	return a.timeline
}

// Navigate makes day the current page and prefetches the window around it,
// clipped to the timeline. It returns the new page index.
func (a *App) Navigate(day datekey.Day) (int, error) {
	idx, before, after, err := a.timeline.SetCurrent(day)
	if err != nil {
		return 0, err
	}
	past := min(a.window.Past, before)
	future := min(a.window.Future, after)
	issued := a.prefetcher.PrefetchAround(day, past, future)
	a.logger.Debug().Str("day", day.String()).Int("index", idx).Int("prefetch", issued).Msg("Navigated.")
	return idx, nil
}

// JumpToToday makes today current, extending the timeline if the date has
// rolled over since load.
func (a *App) JumpToToday() (datekey.Day, error) {
	today := a.cache.Today()
	if !a.timeline.JumpToToday(today) {
		return datekey.Day{}, ErrNotLoaded
	}
	if _, err := a.Navigate(today); err != nil {
		return datekey.Day{}, err
	}
	return today, nil
}

// Image resolves the comic for day. Future days are never shown.
func (a *App) Image(ctx context.Context, day datekey.Day) (*comic.Blob, bool) {
	return a.cache.Resolve(ctx, day, false)
}

// Share prepares the payload for the current page. It only consults the
// memory tier so it never blocks on disk or network.
func (a *App) Share(target ShareTarget) (SharePayload, error) {
	s, ok := a.Settings()
	if !ok {
		return nil, ErrNotLoaded
	}
	day, _, ok := a.timeline.Current()
	if !ok {
		return nil, ErrNothingToShare
	}
	img, ok := a.cache.CachedImage(day)
	if !ok {
		return nil, fmt.Errorf("%s: %w", day, ErrNothingToShare)
	}

	if target == ShareMail {
		return MailShare{Day: day, Image: img, Subject: s.AppName, Body: s.MailBody}, nil
	}
	return GenericShare{Day: day, Image: img, Subject: s.AppName}, nil
}
