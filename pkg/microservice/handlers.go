package microservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/illmade-knight/go-comiccache/pkg/comic"
	"github.com/illmade-knight/go-comiccache/pkg/datekey"
	"github.com/illmade-knight/go-comiccache/pkg/viewer"
	"github.com/rs/zerolog"
)

// Viewer is the part of the viewer app exposed over HTTP.
type Viewer interface {
	Timeline() *viewer.Timeline
	Image(ctx context.Context, day datekey.Day) (*comic.Blob, bool)
	Navigate(day datekey.Day) (int, error)
	JumpToToday() (datekey.Day, error)
	Share(target viewer.ShareTarget) (viewer.SharePayload, error)
}

// ViewerHandlers serves the page sequence and the comic images.
type ViewerHandlers struct {
	viewer Viewer
	logger zerolog.Logger
}

// NewViewerHandlers creates the handlers and registers them on mux.
func NewViewerHandlers(mux *http.ServeMux, v Viewer, logger zerolog.Logger) *ViewerHandlers {
	h := &ViewerHandlers{
		viewer: v,
		logger: logger.With().Str("component", "ViewerHandlers").Logger(),
	}
	mux.HandleFunc("GET /days", h.Days)
	mux.HandleFunc("GET /comics/{day}", h.Comic)
	mux.HandleFunc("POST /navigate/{day}", h.Navigate)
	mux.HandleFunc("POST /today", h.Today)
	mux.HandleFunc("GET /share", h.Share)
	return h
}

type timelineResponse struct {
	Days    []datekey.Day `json:"days"`
	Current *datekey.Day  `json:"current,omitempty"`
	Index   int           `json:"index"`
}

type positionResponse struct {
	Day   datekey.Day `json:"day"`
	Index int         `json:"index"`
}

type shareResponse struct {
	Target  viewer.ShareTarget `json:"target"`
	Day     datekey.Day        `json:"day"`
	Subject string             `json:"subject"`
	Body    string             `json:"body,omitempty"`
	Format  string             `json:"format"`
	Bytes   int                `json:"bytes"`
}

// Days returns the page sequence and the current page.
func (h *ViewerHandlers) Days(w http.ResponseWriter, _ *http.Request) {
	tl := h.viewer.Timeline()
	resp := timelineResponse{Days: tl.Days()}
	if day, idx, ok := tl.Current(); ok {
		resp.Current = &day
		resp.Index = idx
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Comic writes the image for the day in the path. Days in the future and days
// that cannot be resolved are 404.
func (h *ViewerHandlers) Comic(w http.ResponseWriter, r *http.Request) {
	day, err := ParseDay(r.PathValue("day"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	blob, ok := h.viewer.Image(r.Context(), day)
	if !ok {
		http.Error(w, fmt.Sprintf("no comic for %s", day), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/"+blob.Format)
	w.Header().Set("Content-Length", strconv.Itoa(blob.Size()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(blob.Data); err != nil {
		h.logger.Debug().Err(err).Str("day", day.String()).Msg("Client went away while writing image.")
	}
}

// Navigate makes the day in the path the current page.
func (h *ViewerHandlers) Navigate(w http.ResponseWriter, r *http.Request) {
	day, err := ParseDay(r.PathValue("day"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	idx, err := h.viewer.Navigate(day)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, positionResponse{Day: day, Index: idx})
}

// Today jumps to today's page.
func (h *ViewerHandlers) Today(w http.ResponseWriter, _ *http.Request) {
	day, err := h.viewer.JumpToToday()
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	idx, _ := h.viewer.Timeline().IndexOf(day)
	h.writeJSON(w, http.StatusOK, positionResponse{Day: day, Index: idx})
}

// Share describes the payload for the current page and the target in the
// query string.
func (h *ViewerHandlers) Share(w http.ResponseWriter, r *http.Request) {
	target := viewer.ParseShareTarget(r.URL.Query().Get("target"))
	payload, err := h.viewer.Share(target)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	var resp shareResponse
	switch p := payload.(type) {
	case viewer.MailShare:
		resp = shareResponse{Target: p.Target(), Day: p.Day, Subject: p.Subject, Body: p.Body, Format: p.Image.Format, Bytes: p.Image.Size()}
	case viewer.GenericShare:
		resp = shareResponse{Target: p.Target(), Day: p.Day, Subject: p.Subject, Format: p.Image.Format, Bytes: p.Image.Size()}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *ViewerHandlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response.")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, viewer.ErrNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, viewer.ErrNothingToShare):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// ParseDay accepts YYYY-MM-DD or the six digit YYMMDD key.
func ParseDay(s string) (datekey.Day, error) {
	if len(s) == 6 {
		if day, ok := datekey.DayOf(datekey.Key(s)); ok {
			return day, nil
		}
		return datekey.Day{}, fmt.Errorf("invalid date key %q", s)
	}
	return datekey.Parse(s)
}
