// Package imagecache resolves the comic for a calendar day through the memory
// tier, the durable tier and finally the network, enforcing the future-day
// access policy and keeping the durable tier inside its retention window.
//
// Resolve never surfaces a failure: a missing comic for one day degrades to
// "no image" so navigation keeps working. ResolveEntry reports why a lookup
// came back empty for callers that need to tell the cases apart.
package imagecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/illmade-knight/go-comiccache/pkg/blobstore"
	"github.com/illmade-knight/go-comiccache/pkg/comic"
	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/illmade-knight/go-comiccache/pkg/events"
	"github.com/illmade-knight/go-comiccache/pkg/fetcher"
	"github.com/illmade-knight/go-comiccache/pkg/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultPastWindow is the number of past days a sweep keeps besides the near window.
const DefaultPastWindow = 3

// sweepTimeout bounds a background sweep.
const sweepTimeout = time.Minute

// Store is the two-tier store the cache works through.
type Store interface {
	GetMemory(ctx context.Context, key datekey.Key) (*comic.Blob, bool)
	GetDisk(ctx context.Context, key datekey.Key) (*comic.Blob, error)
	Promote(ctx context.Context, key datekey.Key, blob *comic.Blob)
	Put(ctx context.Context, key datekey.Key, blob *comic.Blob) error
	Remove(ctx context.Context, key datekey.Key) error
	ListDiskKeys(ctx context.Context) ([]datekey.Key, error)
}

// Config holds the cache policy.
type Config struct {
	// PastWindow is the general retention window in days before today.
	PastWindow int
	// Location decides which calendar day "today" is.
	Location *time.Location
	// FirstDate is the earliest published day; earlier days are never fetched.
	// The zero Day means no lower bound until SetFirstDate is called.
	FirstDate datekey.Day
}

// Options carries optional collaborators.
type Options struct {
	Publisher events.Publisher
	Metrics   *metrics.CacheMetrics
	// Now replaces the wall clock, for tests.
	Now func() time.Time
}

// ResolveOptions tune a single lookup.
type ResolveOptions struct {
	// AllowFuture permits days after today.
	AllowFuture bool
	// DeferSweep skips the retention sweep that normally follows a network fetch.
	// When a caller joins a fetch already in flight for the same day, the sweep
	// still runs after it unless the caller deferred it too.
	DeferSweep bool
}

// ImageCache is the orchestrator over the two-tier store and the fetcher.
// Create one per application with New and release it with Close.
type ImageCache struct {
	store     Store
	fetcher   fetcher.Fetcher
	sweeper   *Sweeper
	publisher events.Publisher
	metrics   *metrics.CacheMetrics
	now       func() time.Time
	loc       *time.Location
	logger    zerolog.Logger

	pastWindow int

	// flights collapses concurrent lookups for the same key into one load.
	flights singleflight.Group
	// sweepMu serializes sweeps against each other and against the tier
	// writes and resident marks of a load, so a sweep never leaves the
	// resident set naming a day it has deleted.
	sweepMu sync.Mutex

	mu        sync.RWMutex
	firstDate datekey.Day
	resident  map[datekey.Key]struct{} // CachedDateSet
	closed    bool
	sweeps    sync.WaitGroup
}

// New creates an ImageCache and seeds the resident set from the durable tier.
// A listing failure is logged; the set then starts empty.
func New(ctx context.Context, cfg Config, store Store, f fetcher.Fetcher, opts Options, logger zerolog.Logger) (*ImageCache, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if f == nil {
		return nil, errors.New("fetcher cannot be nil")
	}
	if cfg.PastWindow < 0 {
		return nil, fmt.Errorf("past window must not be negative, got %d", cfg.PastWindow)
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &ImageCache{
		store:      store,
		fetcher:    f,
		publisher:  opts.Publisher,
		metrics:    opts.Metrics,
		now:        now,
		loc:        cfg.Location,
		pastWindow: cfg.PastWindow,
		firstDate:  cfg.FirstDate,
		resident:   make(map[datekey.Key]struct{}),
		logger:     logger.With().Str("component", "ImageCache").Logger(),
	}
	c.sweeper = NewSweeper(store, logger)

	keys, err := store.ListDiskKeys(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Could not list durable tier; starting with an empty resident set.")
	}
	for _, k := range keys {
		c.resident[k] = struct{}{}
	}
	c.metrics.SetResident(len(c.resident))
	c.logger.Info().Int("resident", len(c.resident)).Str("timezone", c.loc.String()).Msg("Image cache initialized.")
	return c, nil
}

// Today returns the current calendar day in the configured location.
func (c *ImageCache) Today() datekey.Day {
	return datekey.Today(c.now(), c.loc)
}

// PastWindow returns the configured retention window.
func (c *ImageCache) PastWindow() int {
	return c.pastWindow
}

// FirstDate returns the earliest day the cache will fetch.
func (c *ImageCache) FirstDate() datekey.Day {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.firstDate
}

// SetFirstDate updates the lower bound, typically after settings load.
func (c *ImageCache) SetFirstDate(day datekey.Day) {
	c.mu.Lock()
	c.firstDate = day
	c.mu.Unlock()
	c.logger.Info().Str("first_date", day.String()).Msg("First date updated.")
}

// Resolve returns the blob for day, or false when none is available for any
// reason: policy, absence upstream or a failed fetch.
func (c *ImageCache) Resolve(ctx context.Context, day datekey.Day, allowFuture bool) (*comic.Blob, bool) {
	entry, err := c.ResolveEntry(ctx, day, ResolveOptions{AllowFuture: allowFuture})
	if err != nil {
		return nil, false
	}
	return entry.Blob, true
}

// ResolveEntry looks day up memory first, then disk, then network. The error
// explains an empty result: comic.ErrPolicyDenied, comic.ErrBeforeFirstDate,
// a *comic.NetworkError or a context error.
func (c *ImageCache) ResolveEntry(ctx context.Context, day datekey.Day, opts ResolveOptions) (comic.Entry, error) {
	if day.After(c.Today()) && !opts.AllowFuture {
		c.metrics.ObservePolicyDenied()
		c.logger.Debug().Str("day", day.String()).Msg("Future day requested without permission.")
		return comic.Entry{}, comic.ErrPolicyDenied
	}
	if first := c.FirstDate(); !first.IsZero() && day.Before(first) {
		return comic.Entry{}, fmt.Errorf("%s: %w", day, comic.ErrBeforeFirstDate)
	}
	if !datekey.Supported(day) {
		return comic.Entry{}, fmt.Errorf("day %s is outside the supported range %s..%s", day, datekey.MinDay, datekey.MaxDay)
	}

	key := datekey.KeyOf(day)
	if blob, ok := c.store.GetMemory(ctx, key); ok {
		c.metrics.ObserveLookup(comic.OriginMemory.String())
		c.logger.Debug().Str("day", day.String()).Msg("Memory hit.")
		return comic.Entry{Key: key, Blob: blob, Origin: comic.OriginMemory}, nil
	}

	// The load is shared by every caller waiting on this key, so it must not
	// be cancelled by any one of them; the fetcher's timeout bounds it.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(string(key), func() (any, error) {
		return c.load(flightCtx, day, key, opts)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return comic.Entry{}, res.Err
		}
		result := res.Val.(loadResult)
		if res.Shared {
			c.logger.Debug().Str("day", day.String()).Msg("Joined in-flight lookup.")
			if result.Entry.Origin == comic.OriginNetwork && !result.Swept && !opts.DeferSweep {
				c.sweepAsync()
			}
		}
		return result.Entry, nil
	case <-ctx.Done():
		return comic.Entry{}, ctx.Err()
	}
}

// loadResult is what a shared load hands to every caller waiting on it.
type loadResult struct {
	Entry comic.Entry
	// Swept reports whether the load started a background sweep.
	Swept bool
}

// load resolves key below the memory tier. It runs once per key at a time.
func (c *ImageCache) load(ctx context.Context, day datekey.Day, key datekey.Key, opts ResolveOptions) (loadResult, error) {
	if blob, ok := c.store.GetMemory(ctx, key); ok {
		c.metrics.ObserveLookup(comic.OriginMemory.String())
		return loadResult{Entry: comic.Entry{Key: key, Blob: blob, Origin: comic.OriginMemory}}, nil
	}

	c.sweepMu.Lock()
	blob, err := c.store.GetDisk(ctx, key)
	if err == nil {
		c.store.Promote(ctx, key, blob)
		c.markResident(key)
	}
	c.sweepMu.Unlock()
	if err == nil {
		c.metrics.ObserveLookup(comic.OriginDisk.String())
		c.logger.Debug().Str("day", day.String()).Msg("Disk hit.")
		return loadResult{Entry: comic.Entry{Key: key, Blob: blob, Origin: comic.OriginDisk}}, nil
	}
	var readErr *comic.StorageReadError
	if errors.As(err, &readErr) {
		c.logger.Warn().Err(err).Str("day", day.String()).Msg("Unreadable durable entry; fetching again.")
	} else if !errors.Is(err, blobstore.ErrNotExist) {
		c.logger.Warn().Err(err).Str("day", day.String()).Msg("Durable lookup failed; fetching.")
	}

	start := time.Now()
	blob, err = c.fetcher.Fetch(ctx, key)
	c.metrics.ObserveFetch(err, time.Since(start))
	if err != nil {
		c.logger.Warn().Err(err).Str("day", day.String()).Msg("Fetch failed; day unavailable.")
		return loadResult{}, err
	}

	c.sweepMu.Lock()
	if err := c.store.Put(ctx, key, blob); err != nil {
		c.metrics.ObserveWriteFailure()
	}
	c.markResident(key)
	c.sweepMu.Unlock()
	c.publish(ctx, events.Fetched(day, blob.Size(), c.now()))
	c.metrics.ObserveLookup(comic.OriginNetwork.String())
	c.logger.Info().Str("day", day.String()).Int("bytes", blob.Size()).Msg("Fetched comic.")

	result := loadResult{Entry: comic.Entry{Key: key, Blob: blob, Origin: comic.OriginNetwork}}
	if !opts.DeferSweep {
		result.Swept = c.sweepAsync()
	}
	return result, nil
}

// CachedImage is the non-blocking presence query: it consults only the memory
// tier and never touches disk or network.
func (c *ImageCache) CachedImage(day datekey.Day) (*comic.Blob, bool) {
	if !datekey.Supported(day) {
		return nil, false
	}
	return c.store.GetMemory(context.Background(), datekey.KeyOf(day))
}

// IsResident reports whether day is in the resident set.
func (c *ImageCache) IsResident(day datekey.Day) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.resident[datekey.KeyOf(day)]
	return ok
}

// CachedDays returns the resident set in chronological order.
func (c *ImageCache) CachedDays() []datekey.Day {
	c.mu.RLock()
	days := make([]datekey.Day, 0, len(c.resident))
	for k := range c.resident {
		if d, ok := datekey.DayOf(k); ok {
			days = append(days, d)
		}
	}
	c.mu.RUnlock()
	datekey.Sort(days)
	return days
}

func (c *ImageCache) markResident(key datekey.Key) {
	c.mu.Lock()
	c.resident[key] = struct{}{}
	n := len(c.resident)
	c.mu.Unlock()
	c.metrics.SetResident(n)
}

func (c *ImageCache) unmarkResident(key datekey.Key) {
	c.mu.Lock()
	delete(c.resident, key)
	n := len(c.resident)
	c.mu.Unlock()
	c.metrics.SetResident(n)
}

// Sweep runs a retention pass synchronously. Sweeps never overlap.
func (c *ImageCache) Sweep(ctx context.Context, today datekey.Day, pastWindow int) (SweepResult, error) {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()

	result, err := c.sweeper.Sweep(ctx, today, pastWindow, func(day datekey.Day) {
		c.unmarkResident(datekey.KeyOf(day))
		c.publish(ctx, events.Evicted(day, c.now()))
	})
	c.metrics.ObserveEvictions(len(result.Removed))
	return result, err
}

// sweepAsync starts a background sweep for the current day and reports whether
// it did. It does not start one once Close has been called.
func (c *ImageCache) sweepAsync() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.sweeps.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.sweeps.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := c.Sweep(ctx, c.Today(), c.pastWindow); err != nil {
			c.logger.Warn().Err(err).Msg("Background sweep failed.")
		}
	}()
	return true
}

func (c *ImageCache) publish(ctx context.Context, event events.Event) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		c.logger.Warn().Err(err).Str("event_type", event.Type).Msg("Failed to publish cache event.")
	}
}

// Close stops new background sweeps and waits for running ones, bounded by ctx.
// The store, fetcher and publisher belong to the caller.
func (c *ImageCache) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.sweeps.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for background sweeps: %w", ctx.Err())
	}
}
