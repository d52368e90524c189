package microservice_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/illmade-knight/go-comiccache/internal/comictest"
	"github.com/illmade-knight/go-comiccache/pkg/comic"
	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/illmade-knight/go-comiccache/pkg/microservice"
	"github.com/illmade-knight/go-comiccache/pkg/viewer"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockViewer struct {
	timeline  *viewer.Timeline
	today     datekey.Day
	images    map[datekey.Day]*comic.Blob
	ShareFunc func(target viewer.ShareTarget) (viewer.SharePayload, error)
}

func (m *mockViewer) Timeline() *viewer.Timeline { return m.timeline }

func (m *mockViewer) Image(_ context.Context, day datekey.Day) (*comic.Blob, bool) {
	blob, ok := m.images[day]
	return blob, ok
}

func (m *mockViewer) Navigate(day datekey.Day) (int, error) {
	idx, _, _, err := m.timeline.SetCurrent(day)
	return idx, err
}

func (m *mockViewer) JumpToToday() (datekey.Day, error) {
	if !m.timeline.JumpToToday(m.today) {
		return datekey.Day{}, viewer.ErrNotLoaded
	}
	return m.today, nil
}

func (m *mockViewer) Share(target viewer.ShareTarget) (viewer.SharePayload, error) {
	return m.ShareFunc(target)
}

func jan(d int) datekey.Day { return datekey.New(2025, 1, d) }

func newTestViewer(t *testing.T) (*mockViewer, *http.ServeMux) {
	t.Helper()
	blob, err := comic.Decode(datekey.KeyOf(jan(5)), comictest.PNG(5))
	require.NoError(t, err)

	tl := viewer.NewTimeline()
	tl.Merge(datekey.Range(jan(1), jan(5)))
	v := &mockViewer{
		timeline: tl,
		today:    jan(5),
		images:   map[datekey.Day]*comic.Blob{jan(5): blob},
	}
	mux := http.NewServeMux()
	microservice.NewViewerHandlers(mux, v, zerolog.Nop())
	return v, mux
}

func serve(mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestViewerHandlers_Comic(t *testing.T) {
	_, mux := newTestViewer(t)

	t.Run("by iso date", func(t *testing.T) {
		rec := serve(mux, http.MethodGet, "/comics/2025-01-05")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.Equal(t, comictest.PNG(5), rec.Body.Bytes())
	})

	t.Run("by key", func(t *testing.T) {
		rec := serve(mux, http.MethodGet, "/comics/250105")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("absent", func(t *testing.T) {
		rec := serve(mux, http.MethodGet, "/comics/2025-01-03")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed", func(t *testing.T) {
		rec := serve(mux, http.MethodGet, "/comics/251399")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestViewerHandlers_NavigateAndDays(t *testing.T) {
	// Arrange
	_, mux := newTestViewer(t)

	// Act
	rec := serve(mux, http.MethodPost, "/navigate/2025-01-03")

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	var pos struct {
		Day   string `json:"day"`
		Index int    `json:"index"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	assert.Equal(t, "2025-01-03", pos.Day)
	assert.Equal(t, 2, pos.Index)

	rec = serve(mux, http.MethodGet, "/days")
	require.Equal(t, http.StatusOK, rec.Code)
	var tl struct {
		Days    []string `json:"days"`
		Current string   `json:"current"`
		Index   int      `json:"index"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tl))
	assert.Len(t, tl.Days, 5)
	assert.Equal(t, "2025-01-03", tl.Current)
	assert.Equal(t, 2, tl.Index)

	rec = serve(mux, http.MethodPost, "/navigate/2024-12-31")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestViewerHandlers_Today(t *testing.T) {
	v, mux := newTestViewer(t)
	v.today = jan(7)

	rec := serve(mux, http.MethodPost, "/today")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"day":"2025-01-07","index":6}`, rec.Body.String())
}

func TestViewerHandlers_Share(t *testing.T) {
	v, mux := newTestViewer(t)
	img := v.images[jan(5)]

	v.ShareFunc = func(target viewer.ShareTarget) (viewer.SharePayload, error) {
		if target == viewer.ShareMail {
			return viewer.MailShare{Day: jan(5), Image: img, Subject: "Zeurkalender", Body: "Kijk!"}, nil
		}
		return viewer.GenericShare{Day: jan(5), Image: img, Subject: "Zeurkalender"}, nil
	}

	rec := serve(mux, http.MethodGet, "/share?target=mail")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"target":"mail","day":"2025-01-05","subject":"Zeurkalender","body":"Kijk!","format":"png","bytes":%d}`, img.Size()), rec.Body.String())

	rec = serve(mux, http.MethodGet, "/share")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"target":"other"`)
	assert.NotContains(t, rec.Body.String(), `"body"`)

	v.ShareFunc = func(viewer.ShareTarget) (viewer.SharePayload, error) {
		return nil, viewer.ErrNothingToShare
	}
	rec = serve(mux, http.MethodGet, "/share")
	assert.Equal(t, http.StatusConflict, rec.Code)

	v.ShareFunc = func(viewer.ShareTarget) (viewer.SharePayload, error) {
		return nil, viewer.ErrNotLoaded
	}
	rec = serve(mux, http.MethodGet, "/share")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestParseDay(t *testing.T) {
	day, err := microservice.ParseDay("250105")
	require.NoError(t, err)
	assert.Equal(t, jan(5), day)

	day, err = microservice.ParseDay("2025-01-05")
	require.NoError(t, err)
	assert.Equal(t, jan(5), day)

	_, err = microservice.ParseDay("05/01/2025")
	assert.Error(t, err)
}
