package testcase

import (
	"fmt"
	"math"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/exp/constraints"

	"devtester/internal/disposition"
)

// assertionFailure is the panic payload raised by every Assert* helper in
// this file. Run recovers it specifically and records a Failed
// disposition (respecting a bug id, same as an explicit tc.Failed call)
// rather than treating it as an unhandled programming error.
type assertionFailure struct{ msg string }

func (tc *Context) failNow(msg string, args ...interface{}) {
	panic(assertionFailure{fmt.Sprintf(msg, args...)})
}

func joinMessage(base string, extra []string) string {
	if len(extra) == 0 {
		return base
	}
	return base + ": " + fmt.Sprint(extra)
}

// AssertEqual fails the test unless got and want are deep-equal, reporting
// a structural diff.
func AssertEqual(tc *Context, got, want interface{}, msg ...string) {
	if diff := cmp.Diff(want, got); diff != "" {
		tc.failNow(joinMessage(fmt.Sprintf("values differ (-want +got):\n%s", diff), msg))
	}
}

// AssertNotEqual fails the test if got and want are deep-equal.
func AssertNotEqual(tc *Context, got, want interface{}, msg ...string) {
	if cmp.Equal(want, got) {
		tc.failNow(joinMessage(fmt.Sprintf("values unexpectedly equal: %v", got), msg))
	}
}

// AssertGreaterThan fails unless got >= want.
func AssertGreaterThan[T constraints.Ordered](tc *Context, got, want T, msg ...string) {
	if got < want {
		tc.failNow(joinMessage(fmt.Sprintf("%v is not >= %v", got, want), msg))
	}
}

// AssertLessThan fails unless got <= want.
func AssertLessThan[T constraints.Ordered](tc *Context, got, want T, msg ...string) {
	if got > want {
		tc.failNow(joinMessage(fmt.Sprintf("%v is not <= %v", got, want), msg))
	}
}

// AssertTrue fails unless cond is true.
func AssertTrue(tc *Context, cond bool, msg ...string) {
	if !cond {
		tc.failNow(joinMessage("condition is not true", msg))
	}
}

// AssertFalse fails unless cond is false.
func AssertFalse(tc *Context, cond bool, msg ...string) {
	if cond {
		tc.failNow(joinMessage("condition is not false", msg))
	}
}

// AssertApproximatelyEqual fails unless got is within 5% of want. The
// tolerance is strictly relative, so a want of zero admits only an exact
// zero; a caller needing an absolute window computes its own bounds and
// uses AssertLessThan/AssertGreaterThan instead.
func AssertApproximatelyEqual(tc *Context, got, want float64, msg ...string) {
	const tolerance = 0.05
	if math.Abs(got-want) > tolerance*math.Abs(want) {
		tc.failNow(joinMessage(fmt.Sprintf("%v is not within %.0f%% of %v", got, tolerance*100, want), msg))
	}
}

// AssertRaises fails unless fn returns a non-nil error, the idiomatic Go
// stand-in for asserting that a block raises an exception. The returned
// error is handed back so a caller can additionally assert on its type or
// message.
func AssertRaises(tc *Context, fn func() error, msg ...string) error {
	err := fn()
	if err == nil {
		tc.failNow(joinMessage("expected an error, got none", msg))
	}
	return err
}

// AssertPassed fails unless d is disposition.Passed or disposition.ExpectedFail.
func AssertPassed(tc *Context, d disposition.Disposition, msg ...string) {
	if d != disposition.Passed && d != disposition.ExpectedFail {
		tc.failNow(joinMessage(fmt.Sprintf("expected Passed, got %s", d), msg))
	}
}

// AssertFailed fails unless d is disposition.Failed.
func AssertFailed(tc *Context, d disposition.Disposition, msg ...string) {
	if d != disposition.Failed {
		tc.failNow(joinMessage(fmt.Sprintf("expected Failed, got %s", d), msg))
	}
}
