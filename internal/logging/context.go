package logging

import (
	"context"
	"fmt"
	"time"
)

// LevelSinkFunc is the type of function that consumes a leveled log entry.
// Unlike a plain string sink, it carries enough information for a receiver
// to mirror the entry onto the signal bus as test-diagnostic/test-warning.
type LevelSinkFunc = func(level Level, msg string)

type contextKey struct{}

// NewContext attaches sink to ctx. Descendant contexts inherit it unless a
// further call to NewContext replaces it.
func NewContext(ctx context.Context, sink LevelSinkFunc) context.Context {
	return context.WithValue(ctx, contextKey{}, sink)
}

// SinkFromContext extracts the leveled log sink attached to ctx, if any.
func SinkFromContext(ctx context.Context) (LevelSinkFunc, bool) {
	sink, ok := ctx.Value(contextKey{}).(LevelSinkFunc)
	return sink, ok
}

// ContextLog logs an informational message (test-info) via the sink
// attached to ctx. It is a silent no-op if ctx has no attached sink.
func ContextLog(ctx context.Context, args ...interface{}) {
	contextLogLevel(ctx, LevelInfo, fmt.Sprint(args...))
}

// ContextLogf is ContextLog with Sprintf-style formatting.
func ContextLogf(ctx context.Context, format string, args ...interface{}) {
	contextLogLevel(ctx, LevelInfo, fmt.Sprintf(format, args...))
}

// ContextWarning logs a warning message (test-warning) via the sink
// attached to ctx.
func ContextWarning(ctx context.Context, args ...interface{}) {
	contextLogLevel(ctx, LevelWarning, fmt.Sprint(args...))
}

// ContextDiagnostic logs a framework-internal diagnostic (test-diagnostic)
// via the sink attached to ctx. Diagnostics are never filtered by
// verbosity, matching the lifecycle invariant that every swallowed
// exception and every skipped-prerequisite decision is still observable.
func ContextDiagnostic(ctx context.Context, args ...interface{}) {
	contextLogLevel(ctx, LevelDiagnostic, fmt.Sprint(args...))
}

func contextLogLevel(ctx context.Context, level Level, msg string) {
	sink, ok := SinkFromContext(ctx)
	if !ok {
		return
	}
	sink(level, msg)
}

// timeNow exists so tests can substitute a deterministic clock; production
// code always calls it with time.Now.
var timeNow = time.Now
