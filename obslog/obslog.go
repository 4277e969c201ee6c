// Package obslog provides the engine's non-RT structured logging facade.
//
// It wires github.com/rs/zerolog directly rather than the generic
// logiface abstraction the wider ecosystem uses in front of zerolog: the
// engine only ever has one logging backend, so the facade layer buys
// nothing here (see DESIGN.md). The RT thread never calls into this
// package — logging allocates and performs syscalls, both forbidden on
// the 1 kHz path (see rtloop).
package obslog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a process-wide logger writing RFC3339 timestamps to w at the
// given minimum level.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Default builds a logger writing to stderr at info level, for callers
// that don't need a custom sink (tests, the demo command).
func Default() zerolog.Logger {
	return New(os.Stderr, zerolog.InfoLevel)
}
