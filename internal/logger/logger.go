// Package logger provides the process-wide structured logger. It is
// initialized once via sync.Once and backed by zerolog, in the same
// singleton-logger shape the rest of the service stack expects.
package logger

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	once          sync.Once
)

// Init initializes the default logger. In "development" it writes a
// human-readable console stream; otherwise it writes structured JSON to
// stdout. Safe to call multiple times; only the first call takes effect.
func Init(env string) {
	once.Do(func() {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		var w = os.Stdout
		if env == "development" {
			defaultLogger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
		} else {
			defaultLogger = zerolog.New(w).With().Timestamp().Logger()
		}
	})
}

// Get returns the initialized default logger, initializing it with
// production defaults if it has not been set up yet.
func Get() *zerolog.Logger {
	once.Do(func() {
		defaultLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	})
	return &defaultLogger
}

// Stage returns a logger pre-bound with pipeline-stage context so callers
// don't repeat the same fields at every log site.
func Stage(stage string, fields map[string]string) *zerolog.Logger {
	ctx := Get().With().Str("stage", stage)
	for k, v := range fields {
		ctx = ctx.Str(k, v)
	}
	l := ctx.Logger()
	return &l
}
