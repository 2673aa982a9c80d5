package testcase

import "context"

// Case is the minimal contract a test author implements. Procedure is the
// only required method; Initializer and Finalizer below are optional
// hooks a Case may additionally implement, checked with a type assertion
// against the concrete Case value.
type Case interface {
	// Options returns this case's class-level configuration. It must
	// return the same value (by field, not identity) every time it is
	// called; the framework treats TestOptions as immutable metadata
	// attached at registration, never mutated per invocation.
	Options() TestOptions

	// Procedure is the test body. args/kwargs are whatever was supplied
	// when this invocation was scheduled (possibly from a ParamSpec).
	Procedure(ctx context.Context, tc *Context, args []interface{}, kwargs map[string]interface{})
}

// Initializer is an optional hook run before Procedure. A non-nil error
// is always fatal to the enclosing suite.
type Initializer interface {
	Initialize(ctx context.Context, tc *Context) error
}

// Finalizer is an optional hook run after Procedure regardless of its
// outcome. A non-nil error is treated exactly like an Initialize failure:
// fatal to the enclosing suite.
type Finalizer interface {
	Finalize(ctx context.Context, tc *Context) error
}

// Outcome is the sum-type alternative to calling a disposition helper
// directly: a Procedure may instead return one of these from a small
// wrapper and let the caller record it. Run accepts either style.
type Outcome struct {
	kind    outcomeKind
	Message string
}

type outcomeKind int

const (
	outcomeNone outcomeKind = iota
	outcomePassed
	outcomeFailed
	outcomeExpectedFail
	outcomeIncomplete
)

// Passed builds a Passed Outcome.
func Passed(msg string) Outcome { return Outcome{outcomePassed, msg} }

// Failed builds a Failed Outcome.
func Failed(msg string) Outcome { return Outcome{outcomeFailed, msg} }

// ExpectedFail builds an ExpectedFail Outcome.
func ExpectedFail(msg string) Outcome { return Outcome{outcomeExpectedFail, msg} }

// Incomplete builds an Incomplete Outcome.
func Incomplete(msg string) Outcome { return Outcome{outcomeIncomplete, msg} }

// IsZero reports whether o is the zero Outcome (nothing was recorded).
func (o Outcome) IsZero() bool { return o.kind == outcomeNone }

// Apply records o on this context through the matching disposition
// helper; the zero Outcome is a no-op. Double emission is detected
// exactly as for direct helper calls.
func (tc *Context) Apply(o Outcome) {
	switch o.kind {
	case outcomePassed:
		tc.Passed(o.Message)
	case outcomeFailed:
		tc.Failed(o.Message)
	case outcomeExpectedFail:
		tc.ExpectedFail(o.Message)
	case outcomeIncomplete:
		tc.Incomplete(o.Message)
	}
}

// FuncCase adapts a plain function returning an Outcome into a Case: the
// return-a-value alternative to calling the Context's disposition
// helpers. A zero returned Outcome means the function recorded (or
// failed to record) a disposition itself.
type FuncCase struct {
	Opts TestOptions
	Func func(ctx context.Context, tc *Context, args []interface{}, kwargs map[string]interface{}) Outcome
}

// Options returns the wrapped function's class-level configuration.
func (c FuncCase) Options() TestOptions { return c.Opts }

// Procedure invokes the wrapped function and records its Outcome.
func (c FuncCase) Procedure(ctx context.Context, tc *Context, args []interface{}, kwargs map[string]interface{}) {
	tc.Apply(c.Func(ctx, tc, args, kwargs))
}
