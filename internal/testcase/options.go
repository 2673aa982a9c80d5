// Package testcase implements the test case contract: the lifecycle hook
// set (initialize/procedure/finalize), disposition emission, assertion
// helpers, and the data/filesystem helpers a test procedure uses while it
// runs. Dispositions are a sum type (Outcome) rather than raised
// exceptions, recorded on the Context and detectable on double-emission.
package testcase

import "time"

// ParamSpec is one parameterized replay of a TestCase: the same class
// scheduled multiple times under distinct argument sets, all sharing the
// class's TestOptions.
type ParamSpec struct {
	// Name labels this replay in its declaration; it is not added to the
	// scheduled test's name or to any signal payload.
	Name string
	Args []interface{}
	Kwargs map[string]interface{}
}

// PrerequisiteSpec identifies a prior TestEntry that must have Passed
// within the current suite for the dependent entry to run.
type PrerequisiteSpec struct {
	// ImplPath is the implementation path of the prerequisite test. A
	// path with no package component is resolved against the declaring
	// test's own package by the suite.
	ImplPath string
	Args []interface{}
	Kwargs map[string]interface{}
}

// TestOptions is the immutable, class-level configuration of a TestCase
// type. It is attached once, at registration time, and is shared by
// every TestEntry scheduling that type.
type TestOptions struct {
	// ImplPath is the fully-qualified implementation path, e.g.
	// "mylab/tests/wifi.AssociateOpen".
	ImplPath string
	// Name is the canonical, human-facing test name.
	Name string
	// Repeat is the number of times a single schedule of this test runs
	// consecutively; must be >= 1.
	Repeat int
	// Prerequisites lists tests that must have Passed earlier in the same
	// suite before this one is attempted.
	Prerequisites []PrerequisiteSpec
	// BugID, if non-empty, rewrites a failed call into
	// test-expected-failure.
	BugID string
	// Version, if non-empty, is emitted once via test-version.
	Version string
	// DataDir is the directory holding test-vector files bundled with
	// this implementation, read back through Context.OpenDataFile. A
	// compiled binary has no per-test module directory to resolve
	// against at runtime, so the registering package declares it
	// (typically from its own source location via runtime.Caller, or a
	// path installed alongside the binary).
	DataDir string
	// Params lists additional parameterized replays of this TestCase.
	Params []ParamSpec
	// Timeout bounds the context passed to Initialize, Procedure and
	// Finalize; zero means no deadline.
	Timeout time.Duration
}

// Normalized returns a copy of o with Repeat defaulted to 1 if unset. A
// TestOptions with Repeat < 1 other than the zero value is a
// TestImplementationError raised by the suite at add time, not here.
func (o TestOptions) Normalized() TestOptions {
	if o.Repeat == 0 {
		o.Repeat = 1
	}
	return o
}
