// Package settings loads the remote settings document that bounds the comic
// archive and labels what the viewer shares.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-comiccache/pkg/datekey"
)

// Settings mirrors the published settings.json. Dates are ISO-8601 instants;
// the calendar day is taken in the offset they are written with.
type Settings struct {
	FirstDate        time.Time `json:"FirstDate" firestore:"FirstDate"`
	LastDate         time.Time `json:"LastDate" firestore:"LastDate"`
	Refresh          time.Time `json:"Refresh" firestore:"Refresh"`
	AppName          string    `json:"AppName" firestore:"AppName"`
	MailBody         string    `json:"MailBody" firestore:"MailBody"`
	HideDate         bool      `json:"HideDate" firestore:"HideDate"`
	Landscape        bool      `json:"Landscape" firestore:"Landscape"`
	Zoomable         bool      `json:"Zoomable" firestore:"Zoomable"`
	ZoomFactor       int       `json:"ZoomFactor" firestore:"ZoomFactor"`
	IPhone5Alignment string    `json:"iPhone5Alignment" firestore:"iPhone5Alignment"`
	CompositeRGB     string    `json:"CompositeRGB" firestore:"CompositeRGB"`
	Subs             []string  `json:"subs" firestore:"subs"`
}

// Decode parses and validates a settings document.
func Decode(data []byte) (*Settings, error) {
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the fields the cache depends on.
func (s *Settings) Validate() error {
	if s.FirstDate.IsZero() {
		return errors.New("settings: FirstDate is required")
	}
	if !datekey.Supported(s.FirstDay()) {
		return fmt.Errorf("settings: FirstDate %s is outside the supported range", s.FirstDay())
	}
	if !s.LastDate.IsZero() && s.LastDay().Before(s.FirstDay()) {
		return fmt.Errorf("settings: LastDate %s precedes FirstDate %s", s.LastDay(), s.FirstDay())
	}
	return nil
}

// FirstDay is the earliest published day.
func (s *Settings) FirstDay() datekey.Day {
	return datekey.FromTime(s.FirstDate, s.FirstDate.Location())
}

// LastDay is the last published day, or the zero Day when unset.
func (s *Settings) LastDay() datekey.Day {
	if s.LastDate.IsZero() {
		return datekey.Day{}
	}
	return datekey.FromTime(s.LastDate, s.LastDate.Location())
}
