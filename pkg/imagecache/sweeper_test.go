package imagecache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/illmade-knight/go-comiccache/pkg/imagecache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetained(t *testing.T) {
	today := day(time.March, 1)

	testCases := []struct {
		name       string
		offset     int
		pastWindow int
		want       bool
	}{
		{"today", 0, 3, true},
		{"yesterday with zero window", -1, 0, true},
		{"tomorrow with zero window", 1, 0, true},
		{"edge of window", -3, 3, true},
		{"just outside window", -4, 3, false},
		{"two days ahead", 2, 3, false},
		{"far future", 30, 3, false},
		{"negative window acts as zero", -2, -5, false},
		{"large window", -60, 90, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, imagecache.Retained(today.AddDays(tc.offset), today, tc.pastWindow))
		})
	}
}

func TestRetained_NearWindowAlwaysSurvives(t *testing.T) {
	// Month, year and leap-day boundaries.
	for _, today := range []datekey.Day{
		datekey.New(2025, time.January, 1),
		datekey.New(2024, time.December, 31),
		datekey.New(2024, time.March, 1),
		datekey.New(2025, time.March, 31),
		datekey.New(2025, time.October, 26),
	} {
		for window := 0; window <= 5; window++ {
			for _, offset := range []int{-1, 0, 1} {
				assert.True(t, imagecache.Retained(today.AddDays(offset), today, window),
					"today=%s window=%d offset=%d", today, window, offset)
			}
			assert.False(t, imagecache.Retained(today.AddDays(-window-2), today, window))
		}
	}
}

func TestSweep_RetentionScenario(t *testing.T) {
	// Arrange: disk holds 01-01..01-10; today is 01-10.
	today := day(time.January, 10)
	h := newHarness(t, today, imagecache.Config{PastWindow: 3}, datekey.Range(day(time.January, 1), today)...)

	// Act
	result, err := h.cache.Sweep(context.Background(), today, 3)

	// Assert
	require.NoError(t, err)
	survivors := datekey.Range(day(time.January, 7), today)
	assert.Equal(t, survivors, h.diskDays(t))
	assert.Equal(t, survivors, result.Kept)
	assert.Equal(t, datekey.Range(day(time.January, 1), day(time.January, 6)), result.Removed)
	assert.Empty(t, result.Failed)
	assert.Equal(t, survivors, h.cache.CachedDays())
	assert.Len(t, h.publisher.events, 6)
}

func TestSweep_ZeroWindowKeepsNearWindow(t *testing.T) {
	today := day(time.January, 10)
	h := newHarness(t, today, imagecache.Config{}, datekey.Range(day(time.January, 7), day(time.January, 12))...)

	_, err := h.cache.Sweep(context.Background(), today, 0)
	require.NoError(t, err)

	assert.Equal(t, datekey.Range(day(time.January, 9), day(time.January, 11)), h.diskDays(t))
}

func TestSweep_LeavesUnparsableFilesAlone(t *testing.T) {
	today := day(time.January, 10)
	h := newHarness(t, today, imagecache.Config{PastWindow: 3}, day(time.January, 1))
	for _, name := range []string{"notes.png", "991399.png", "cover.jpg", ".tmp-250101-abc"} {
		require.NoError(t, util.WriteFile(h.fs, "images/"+name, []byte("x"), 0o644))
	}

	_, err := h.cache.Sweep(context.Background(), today, 3)
	require.NoError(t, err)

	infos, err := h.fs.ReadDir("images")
	require.NoError(t, err)
	var names []string
	for _, info := range infos {
		names = append(names, info.Name())
	}
	assert.ElementsMatch(t, []string{"notes.png", "991399.png", "cover.jpg", ".tmp-250101-abc"}, names)
}

// flakyTarget fails removal for one key.
type flakyTarget struct {
	keys    []datekey.Key
	failOn  datekey.Key
	removed []datekey.Key
}

func (f *flakyTarget) ListDiskKeys(context.Context) ([]datekey.Key, error) { return f.keys, nil }

func (f *flakyTarget) Remove(_ context.Context, key datekey.Key) error {
	if key == f.failOn {
		return errors.New("permission denied")
	}
	f.removed = append(f.removed, key)
	return nil
}

func TestSweeper_ContinuesAfterRemovalFailure(t *testing.T) {
	target := &flakyTarget{
		keys:   []datekey.Key{"250101", "250102", "250103", "250110"},
		failOn: "250102",
	}
	sweeper := imagecache.NewSweeper(target, zerolog.Nop())

	var notified []datekey.Day
	result, err := sweeper.Sweep(context.Background(), day(time.January, 10), 3, func(d datekey.Day) {
		notified = append(notified, d)
	})

	require.NoError(t, err)
	assert.Equal(t, []datekey.Key{"250101", "250103"}, target.removed)
	assert.Equal(t, []datekey.Day{day(time.January, 2)}, result.Failed)
	assert.Equal(t, []datekey.Day{day(time.January, 1), day(time.January, 3)}, notified)
	assert.Equal(t, []datekey.Day{day(time.January, 10)}, result.Kept)
}

type failingLister struct{ flakyTarget }

func (failingLister) ListDiskKeys(context.Context) ([]datekey.Key, error) {
	return nil, errors.New("directory vanished")
}

func TestSweeper_ListingFailure(t *testing.T) {
	sweeper := imagecache.NewSweeper(&failingLister{}, zerolog.Nop())
	_, err := sweeper.Sweep(context.Background(), day(time.January, 10), 3, nil)
	assert.Error(t, err)
}
