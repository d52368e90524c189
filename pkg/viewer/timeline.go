package viewer

import (
	"fmt"
	"sync"

	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/illmade-knight/go-comiccache/pkg/prefetch"
)

// MergeDays merges two chronologically sorted sequences into one sorted
// sequence without duplicates. Neither input is modified.
func MergeDays(a, b []datekey.Day) []datekey.Day {
	out := make([]datekey.Day, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		var next datekey.Day
		switch {
		case j >= len(b) || (i < len(a) && a[i].Before(b[j])):
			next = a[i]
			i++
		case i >= len(a) || b[j].Before(a[i]):
			next = b[j]
			j++
		default:
			next = a[i]
			i++
			j++
		}
		if n := len(out); n > 0 && out[n-1] == next {
			continue
		}
		out = append(out, next)
	}
	return out
}

// Timeline is the ordered page sequence and the current position in it.
// Batches are merged in under its lock, so readers never see a partial update.
type Timeline struct {
	mu         sync.RWMutex
	days       []datekey.Day
	current    datekey.Day
	hasCurrent bool
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{}
}

// Merge adds sorted days to the timeline. The current day is kept.
func (t *Timeline) Merge(days []datekey.Day) {
	if len(days) == 0 {
		return
	}
	t.mu.Lock()
	t.days = MergeDays(t.days, days)
	t.mu.Unlock()
}

// Apply merges a backfill batch. Days that could not be resolved still get a
// page; they show no image.
func (t *Timeline) Apply(b prefetch.Batch) {
	t.Merge(MergeDays(b.Days, b.Missing))
}

// Days returns a copy of the page sequence.
func (t *Timeline) Days() []datekey.Day {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]datekey.Day(nil), t.days...)
}

// Len returns the number of pages.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.days)
}

// Last returns the latest day.
func (t *Timeline) Last() (datekey.Day, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.days) == 0 {
		return datekey.Day{}, false
	}
	return t.days[len(t.days)-1], true
}

func (t *Timeline) indexOf(day datekey.Day) (int, bool) {
	lo, hi := 0, len(t.days)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.days[mid].Before(day) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(t.days) && t.days[lo] == day {
		return lo, true
	}
	return 0, false
}

// IndexOf returns the page index of day.
func (t *Timeline) IndexOf(day datekey.Day) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.indexOf(day)
}

// Current returns the current day and its page index.
func (t *Timeline) Current() (datekey.Day, int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.hasCurrent {
		return datekey.Day{}, 0, false
	}
	idx, _ := t.indexOf(t.current)
	return t.current, idx, true
}

// SetCurrent moves to day, which must be a page of the timeline. It returns
// the page index and the number of pages before and after it.
func (t *Timeline) SetCurrent(day datekey.Day) (idx, before, after int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.indexOf(day)
	if !ok {
		return 0, 0, 0, fmt.Errorf("%s is not in the timeline", day)
	}
	t.current = day
	t.hasCurrent = true
	return idx, idx, len(t.days) - 1 - idx, nil
}

// JumpToToday extends the timeline up to today when the date has rolled over
// and makes today current. A timeline that has not started yet is left alone.
func (t *Timeline) JumpToToday(today datekey.Day) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.days) == 0 {
		return false
	}
	if last := t.days[len(t.days)-1]; last.Before(today) {
		t.days = MergeDays(t.days, datekey.Range(last.AddDays(1), today))
	}
	if _, ok := t.indexOf(today); !ok {
		return false
	}
	t.current = today
	t.hasCurrent = true
	return true
}
