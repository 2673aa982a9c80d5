// Package testsuite implements the ordered test container: prerequisite
// resolution and auto-insertion, abort propagation, and disposition
// aggregation across a suite's children (which may themselves be nested
// suites), with a TestEntry/SuiteEntry distinction so a nested suite
// aggregates as a single child result.
package testsuite

import (
	"fmt"

	"github.com/google/go-cmp/cmp"

	"devtester/internal/disposition"
	"devtester/internal/testcase"
)

// CaseResolver looks up a registered Case by implementation path so a
// prerequisite declared by path alone can be scheduled automatically. A
// resolver that cannot find a path returns ok=false; this does not crash
// the add, it simply leaves the prerequisite unscheduled, which the
// runtime prerequisite check then reports as Incomplete the same way an
// unmet-but-scheduled prerequisite would.
type CaseResolver interface {
	Resolve(implPath string) (testcase.Case, bool)
}

// TestEntry is one scheduled invocation of a Case.
type TestEntry struct {
	Case      testcase.Case
	Args      []interface{}
	Kwargs    map[string]interface{}
	AutoAdded bool

	implPath    string
	disposition disposition.Disposition
	ran         bool
}

// ImplPath returns the implementation path this entry schedules, taken
// from its Case's TestOptions at add time.
func (e *TestEntry) ImplPath() string { return e.implPath }

// Name returns the canonical, human-facing name of the Case this entry
// schedules, for report sinks that render a sender by name.
func (e *TestEntry) Name() string {
	return e.Case.Options().Normalized().Name
}

// Disposition returns the disposition this entry finished with, or the
// zero Disposition if it has not run yet.
func (e *TestEntry) Disposition() disposition.Disposition { return e.disposition }

func (e *TestEntry) signature() string {
	return fmt.Sprintf("%s|%s", e.implPath, fingerprint(e.Args, e.Kwargs))
}

func fingerprint(args []interface{}, kwargs map[string]interface{}) string {
	return fmt.Sprintf("%#v", struct {
		A []interface{}
		K map[string]interface{}
	}{args, kwargs})
}

func (e *TestEntry) matches(implPath string, args []interface{}, kwargs map[string]interface{}) bool {
	return e.implPath == implPath && cmp.Equal(e.Args, args) && cmp.Equal(e.Kwargs, kwargs)
}

// SuiteEntry is a nested Suite that acts as a single entry whose
// disposition is the aggregate of its own children.
type SuiteEntry struct {
	Suite *Suite
	disposition disposition.Disposition
	ran bool
}

func (e *SuiteEntry) Disposition() disposition.Disposition { return e.disposition }

// entry is the sum type a Suite's ordered entry list actually stores.
type entry struct {
	test *TestEntry
	suite *SuiteEntry
}

func (e entry) disposition() disposition.Disposition {
	if e.test != nil {
		return e.test.disposition
	}
	return e.suite.disposition
}

func (e entry) hasRun() bool {
	if e.test != nil {
		return e.test.ran
	}
	return e.suite.ran
}
