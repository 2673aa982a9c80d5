package logging

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo: "INFO",
	LevelWarning: "WARN",
	LevelDiagnostic: "DIAG",
}

// SinkLogger is a Logger that forwards entries at or above a minimum level
// to a Sink, optionally prefixing each with a timestamp and level tag. It
// is the backing implementation for runner-stderr.txt and for any
// report sink that wants raw text rather than structured signal payloads.
type SinkLogger struct {
	level Level
	timestamp bool
	sink Sink
}

// NewSinkLogger creates a SinkLogger. level is the minimum severity the
// sink is notified of; LevelDiagnostic entries always pass regardless of
// level, since diagnostics must never be silently dropped.
func NewSinkLogger(level Level, timestamp bool, sink Sink) *SinkLogger {
	return &SinkLogger{level: level, timestamp: timestamp, sink: sink}
}

// Log sends a log to the associated sink, subject to the level floor.
func (l *SinkLogger) Log(level Level, ts time.Time, msg string) {
	if level < l.level && level != LevelDiagnostic {
		return
	}
	prefix := "[" + levelNames[level] + "] "
	if l.timestamp {
		prefix = ts.UTC().Format("2006-01-02T15:04:05.000000Z ") + prefix
	}
	l.sink.Log(prefix + msg)
}

// Sink represents a destination of formatted log lines: a log file, a
// terminal, or an in-memory buffer used by tests.
type Sink interface {
	Log(msg string)
}

// FuncSink is a Sink that calls a function; all calls are synchronized so
// it is safe to hand to SinkLogger from concurrently running services.
type FuncSink struct {
	f func(msg string)
	mu sync.Mutex
}

// NewFuncSink creates a FuncSink from f.
func NewFuncSink(f func(msg string)) *FuncSink {
	return &FuncSink{f: f}
}

// Log consumes a log as a function call.
func (s *FuncSink) Log(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f(msg)
}

// WriterSink is a Sink that writes lines to an io.Writer, e.g. the
// redirected-stderr file or os.Stdout for the default report.
type WriterSink struct {
	w io.Writer
	mu sync.Mutex
}

// NewWriterSink creates a WriterSink wrapping w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Log writes a log line to the underlying writer.
func (s *WriterSink) Log(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, msg)
}
