package imagecache

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/rs/zerolog"
)

// Retained reports whether day survives a sweep run for today. Yesterday, today
// and tomorrow always survive; otherwise a day survives when it lies within
// [today-pastWindow, today+1]. All arithmetic is on calendar days.
func Retained(day, today datekey.Day, pastWindow int) bool {
	offset := today.DaysUntil(day)
	if offset >= -1 && offset <= 1 {
		return true
	}
	if pastWindow < 0 {
		pastWindow = 0
	}
	return offset >= -pastWindow && offset <= 1
}

// SweepResult summarises one retention pass.
type SweepResult struct {
	Today   datekey.Day
	Kept    []datekey.Day
	Removed []datekey.Day
	// Failed holds days whose removal failed; they are retried by the next sweep.
	Failed []datekey.Day
}

// SweepTarget is the part of the store a Sweeper needs.
type SweepTarget interface {
	ListDiskKeys(ctx context.Context) ([]datekey.Key, error)
	Remove(ctx context.Context, key datekey.Key) error
}

// Sweeper removes durable entries outside the retention window.
type Sweeper struct {
	target SweepTarget
	logger zerolog.Logger
}

// NewSweeper creates a Sweeper over the given store.
func NewSweeper(target SweepTarget, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		target: target,
		logger: logger.With().Str("component", "RetentionSweeper").Logger(),
	}
}

// Sweep lists durable keys and removes every day Retained rejects. A failed
// removal is logged and skipped. onRemoved, if set, is called for each day
// actually removed. The only error returned is a listing failure or a
// cancelled context.
func (s *Sweeper) Sweep(ctx context.Context, today datekey.Day, pastWindow int, onRemoved func(datekey.Day)) (SweepResult, error) {
	result := SweepResult{Today: today}

	keys, err := s.target.ListDiskKeys(ctx)
	if err != nil {
		return result, fmt.Errorf("sweep could not list cached days: %w", err)
	}

	for _, key := range keys {
		day, ok := datekey.DayOf(key)
		if !ok {
			continue
		}
		if Retained(day, today, pastWindow) {
			result.Kept = append(result.Kept, day)
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.target.Remove(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("day", day.String()).Msg("Failed to remove expired day; continuing sweep.")
			result.Failed = append(result.Failed, day)
			continue
		}
		result.Removed = append(result.Removed, day)
		if onRemoved != nil {
			onRemoved(day)
		}
	}

	s.logger.Info().
		Str("today", today.String()).
		Int("past_window", pastWindow).
		Int("kept", len(result.Kept)).
		Int("removed", len(result.Removed)).
		Int("failed", len(result.Failed)).
		Msg("Retention sweep complete.")
	return result, nil
}
