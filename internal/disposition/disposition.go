// Package disposition defines the terminal-outcome taxonomy and the
// aggregation rule used at every level of nesting (suite, runner).
//
// Dispositions are plain values, not control flow: a test case reaches
// one either by returning it from its procedure or by calling a
// recording helper on its test context (see the testcase package); both
// paths funnel into the same Disposition value, and double-emission is
// detected by the caller holding a recorder, not by this package.
package disposition

import "fmt"

// Disposition is the terminal outcome of one test case or the aggregate
// outcome of a suite/run. The zero value is not valid; use one of the
// named constants.
type Disposition int

const (
	// Passed indicates the test (or every child) succeeded.
	Passed Disposition = iota + 1
	// Failed indicates an assertion violation or explicit failure.
	Failed
	// ExpectedFail indicates a failure rewritten because the test carries
	// a bug identifier.
	ExpectedFail
	// Incomplete indicates the test could not determine pass/fail, e.g.
	// an unhandled exception, a missing terminal disposition, or a
	// skipped-due-to-unmet-prerequisite entry.
	Incomplete
	// Aborted indicates the entry was never attempted because the suite
	// or run it belonged to aborted first.
	Aborted
	// NotApplicable indicates the entry does not apply under the current
	// testbed/config, or (for a suite) that it ran with zero children.
	NotApplicable
)

func (d Disposition) String() string {
	switch d {
	case Passed:
		return "Passed"
	case Failed:
		return "Failed"
	case ExpectedFail:
		return "ExpectedFail"
	case Incomplete:
		return "Incomplete"
	case Aborted:
		return "Aborted"
	case NotApplicable:
		return "NotApplicable"
	default:
		return fmt.Sprintf("Disposition(%d)", int(d))
	}
}

// Signal returns the bus signal name whose emission this disposition
// corresponds to on a test case. Aborted has no direct
// test-level signal: a test that aborts emits test-abort and then
// propagates TestSuiteAbort rather than recording a disposition of its
// own, so Signal is only meaningful for the other five values.
func (d Disposition) Signal() string {
	switch d {
	case Passed:
		return "test-passed"
	case Failed:
		return "test-failure"
	case ExpectedFail:
		return "test-expected-failure"
	case Incomplete:
		return "test-incomplete"
	case NotApplicable:
		return "test-not-applicable"
	default:
		return ""
	}
}

// Aggregate computes the overall disposition of a set of child
// dispositions: Failed dominates, then Incomplete, then NotApplicable,
// then Aborted, then Passed. An empty set (or a set with no recognized
// value) aggregates to Incomplete; a literal empty suite is
// NotApplicable instead, a distinction its caller must make itself
// rather than calling Aggregate with no arguments.
func Aggregate(ds []Disposition) Disposition {
	var hasFailed, hasIncomplete, hasNotApplicable, hasAborted, hasPassed bool
	for _, d := range ds {
		switch d {
		case Failed:
			hasFailed = true
		case Incomplete:
			hasIncomplete = true
		case NotApplicable:
			hasNotApplicable = true
		case Aborted:
			hasAborted = true
		case Passed, ExpectedFail:
			hasPassed = true
		}
	}
	switch {
	case hasFailed:
		return Failed
	case hasIncomplete:
		return Incomplete
	case hasNotApplicable:
		return NotApplicable
	case hasAborted:
		return Aborted
	case hasPassed:
		return Passed
	default:
		return Incomplete
	}
}

// ExitCode maps a final aggregate disposition to the devtester binary's
// process exit code.
func ExitCode(d Disposition) int {
	switch d {
	case Passed, ExpectedFail, NotApplicable:
		return 0
	case Failed:
		return 1
	case Incomplete:
		return 2
	case Aborted:
		return 3
	default:
		return 70 // software (framework) error
	}
}
