package mkv

import (
	"os"

	"github.com/rs/zerolog"
)

// NewConsoleLogger returns a human-readable zerolog.Logger writing to
// stderr, suitable for Options.Logger in cmd/mkvdump and in tests that
// want visible diagnostics instead of the silent default.
func NewConsoleLogger(level zerolog.Level) *zerolog.Logger {
	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
	return &l
}
