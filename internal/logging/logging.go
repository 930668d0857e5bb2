// Package logging is the simulator's append-only structured record sink.
//
// Grounded on bsv-blockchain-teranode/util/logger.go for the zerolog
// wrapper convention (a named logger constructed once, written through for
// the life of the process), and on original_source/logger.py for the exact
// contract: one JSON object per record, appended, flushed and closed at
// the end of the run.
//
// zerolog's own framing (level, time, message fields it would normally
// inject) is deliberately NOT used for the simulation log: spec.md §6
// fixes the record shape (t, node, type, ...) exactly, so records are
// built as ordered Field slices and written field by field through
// zerolog's raw Log() event with no extra fields added, keeping the JSONL
// output byte-identical
// across runs with the same seed (P5).
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Sink is the per-run JSONL log file. Not safe for concurrent use; the
// simulator is single-threaded so this is never contended.
type Sink struct {
	f   io.WriteCloser
	log zerolog.Logger
}

// Open creates (truncating) the log file at path.
func Open(path string) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Sink{
		f:   f,
		log: zerolog.New(f),
	}, nil
}

// Field is one ordered key/value pair of a record. Records are built from
// an ordered slice, never a map: Go's map iteration order is randomized,
// and the JSONL output must be byte-identical across two runs with the
// same seed (spec.md P5), so field order must be deterministic.
type Field struct {
	Key string
	Val any
}

// F builds a Field.
func F(key string, val any) Field {
	return Field{Key: key, Val: val}
}

// Emit writes one record as a single JSON line, fields in the given order.
func (s *Sink) Emit(fields ...Field) {
	ev := s.log.Log()
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Val)
	}
	ev.Send()
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	return s.f.Close()
}

// Console is the ambient, human-facing diagnostics logger (configuration
// errors and a halted simulation) — separate from the simulation's
// JSONL record stream and carrying no simulation semantics.
func Console(component string) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).
		With().Str("component", component).Timestamp().Logger()
}
