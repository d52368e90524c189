package config

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a timestamped logger at the named level, falling back to
// info for an unknown level. A nil writer logs to stderr.
func NewLogger(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
