// Package prefetch keeps the days around the viewing position resident by
// issuing background lookups against the image cache.
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/illmade-knight/go-comiccache/pkg/comic"
	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/illmade-knight/go-comiccache/pkg/imagecache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Resolver is the part of the image cache the scheduler drives.
type Resolver interface {
	ResolveEntry(ctx context.Context, day datekey.Day, opts imagecache.ResolveOptions) (comic.Entry, error)
	CachedImage(day datekey.Day) (*comic.Blob, bool)
	Today() datekey.Day
}

// Config sizes the navigation window and the worker pool.
type Config struct {
	PastWindow   int
	FutureWindow int
	// Workers bounds concurrent background lookups.
	Workers int
}

// DefaultConfig is three days back and one ahead.
func DefaultConfig() Config {
	return Config{PastWindow: 3, FutureWindow: 1, Workers: 4}
}

// Batch is one group of backfilled days, in chronological order.
type Batch struct {
	// Initial marks the first batch, which carries only today.
	Initial bool
	Days    []datekey.Day
	// Missing lists days that could not be resolved.
	Missing []datekey.Day
}

// Scheduler issues prefetch lookups without blocking its callers.
type Scheduler struct {
	resolver Resolver
	cfg      Config
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Scheduler. Non-positive Workers falls back to the default.
func New(resolver Resolver, cfg Config, logger zerolog.Logger) (*Scheduler, error) {
	if resolver == nil {
		return nil, errors.New("resolver cannot be nil")
	}
	if cfg.PastWindow < 0 || cfg.FutureWindow < 0 {
		return nil, fmt.Errorf("prefetch windows must not be negative (past %d, future %d)", cfg.PastWindow, cfg.FutureWindow)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		resolver: resolver,
		cfg:      cfg,
		logger:   logger.With().Str("component", "PrefetchScheduler").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		sem:      make(chan struct{}, cfg.Workers),
	}, nil
}

// track registers background work. It returns false once the scheduler is stopped.
func (s *Scheduler) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	return true
}

// PrefetchAround issues a background lookup for every day in
// [ref-past, ref+future] that is not memory-resident and returns how many it
// issued. Days after today are requested with future access allowed. Nothing
// prevents a second call from issuing a lookup already in flight; the cache
// collapses those.
func (s *Scheduler) PrefetchAround(ref datekey.Day, past, future int) int {
	return s.prefetchAround(ref, past, future, false)
}

func (s *Scheduler) prefetchAround(ref datekey.Day, past, future int, deferSweep bool) int {
	today := s.resolver.Today()
	issued := 0
	for _, day := range datekey.Range(ref.AddDays(-past), ref.AddDays(future)) {
		if _, ok := s.resolver.CachedImage(day); ok {
			continue
		}
		if !s.track() {
			break
		}
		issued++
		go s.prefetch(day, imagecache.ResolveOptions{AllowFuture: day.After(today), DeferSweep: deferSweep})
	}
	if issued > 0 {
		s.logger.Debug().Str("reference", ref.String()).Int("issued", issued).Msg("Prefetch issued.")
	}
	return issued
}

// Reschedule prefetches the configured window around the newly current day.
func (s *Scheduler) Reschedule(current datekey.Day) int {
	return s.PrefetchAround(current, s.cfg.PastWindow, s.cfg.FutureWindow)
}

func (s *Scheduler) prefetch(day datekey.Day, opts imagecache.ResolveOptions) {
	defer s.wg.Done()
	select {
	case s.sem <- struct{}{}:
	case <-s.ctx.Done():
		return
	}
	defer func() { <-s.sem }()
	if s.ctx.Err() != nil {
		return
	}

	if _, err := s.resolver.ResolveEntry(s.ctx, day, opts); err != nil {
		s.logger.Debug().Err(err).Str("day", day.String()).Msg("Prefetch did not resolve day.")
	}
}

// Backfill resolves every day from first to today. Today is resolved first and
// delivered alone as the Initial batch; the older days are then issued in
// chronological order on the worker pool and delivered together as a second
// batch. Backfill lookups defer the retention sweep so the archive stays
// resident. When both batches are out the navigation window around today is
// prefetched, also without sweeping. The channel is closed when backfill ends.
func (s *Scheduler) Backfill(ctx context.Context, first, today datekey.Day) <-chan Batch {
	out := make(chan Batch, 2)
	if !s.track() {
		close(out)
		return out
	}

	go func() {
		defer s.wg.Done()
		defer close(out)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(s.ctx, cancel)
		defer stop()

		opts := imagecache.ResolveOptions{DeferSweep: true}
		log := s.logger.With().Str("first", first.String()).Str("today", today.String()).Logger()

		if first.After(today) {
			log.Warn().Msg("First date is after today; nothing to backfill.")
			out <- Batch{Initial: true}
			return
		}

		initial := Batch{Initial: true}
		if _, err := s.resolver.ResolveEntry(ctx, today, opts); err != nil {
			log.Warn().Err(err).Msg("Today's comic is unavailable.")
			initial.Missing = []datekey.Day{today}
		} else {
			initial.Days = []datekey.Day{today}
		}
		out <- initial

		older := datekey.Range(first, today.AddDays(-1))
		if len(older) > 0 {
			out <- s.resolveAll(ctx, older, opts)
		}
		log.Info().Int("days", len(older)+1).Msg("Backfill complete.")

		if ctx.Err() == nil {
			s.prefetchAround(today, s.cfg.PastWindow, s.cfg.FutureWindow, true)
		}
	}()
	return out
}

// resolveAll resolves days on the worker pool and reports which succeeded.
// Work is handed out in the order of days.
func (s *Scheduler) resolveAll(ctx context.Context, days []datekey.Day, opts imagecache.ResolveOptions) Batch {
	ok := make([]bool, len(days))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, day := range days {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if _, err := s.resolver.ResolveEntry(gctx, day, opts); err != nil {
				s.logger.Debug().Err(err).Str("day", day.String()).Msg("Backfill did not resolve day.")
				return nil
			}
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	var batch Batch
	for i, day := range days {
		if ok[i] {
			batch.Days = append(batch.Days, day)
		} else {
			batch.Missing = append(batch.Missing, day)
		}
	}
	return batch
}

// Wait blocks until all issued work has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Stop abandons outstanding work and waits for it to wind down, bounded by ctx.
// Lookups already in flight inside the cache are left to finish on their own.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
