package testsuite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"devtester/internal/disposition"
	"devtester/internal/errors"
	"devtester/internal/signalbus"
	"devtester/internal/testcase"
)

type stubCase struct {
	opts testcase.TestOptions
	run  func(tc *testcase.Context)
}

func (c stubCase) Options() testcase.TestOptions { return c.opts }
func (c stubCase) Procedure(ctx context.Context, tc *testcase.Context, args []interface{}, kwargs map[string]interface{}) {
	c.run(tc)
}

func passCase(implPath string) stubCase {
	return stubCase{
		opts: testcase.TestOptions{ImplPath: implPath},
		run:  func(tc *testcase.Context) { tc.Passed("ok") },
	}
}

func failCase(implPath string) stubCase {
	return stubCase{
		opts: testcase.TestOptions{ImplPath: implPath},
		run:  func(tc *testcase.Context) { tc.Failed("nope") },
	}
}

func cfgFor(bus *signalbus.Bus) RunConfig {
	return RunConfig{Bus: bus, Now: func() time.Time { return time.Unix(42, 0) }}
}

func TestSuiteSingleTestPasses(t *testing.T) {
	bus := signalbus.New(nil)
	s := New("s")
	s.Add(passCase("pkg.A"), nil, nil, nil)

	d, err := s.Run(context.Background(), cfgFor(bus))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if d != disposition.Passed {
		t.Fatalf("disposition = %v, want Passed", d)
	}
}

func TestSuiteEmptyIsNotApplicable(t *testing.T) {
	bus := signalbus.New(nil)
	s := New("empty")
	d, err := s.Run(context.Background(), cfgFor(bus))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if d != disposition.NotApplicable {
		t.Fatalf("disposition = %v, want NotApplicable", d)
	}
}

type fakeResolver map[string]testcase.Case

func (r fakeResolver) Resolve(implPath string) (testcase.Case, bool) {
	c, ok := r[implPath]
	return c, ok
}

func TestSuiteAutoInsertsPrerequisite(t *testing.T) {
	bus := signalbus.New(nil)
	s := New("s")
	resolver := fakeResolver{"tests/pkg.Setup": passCase("tests/pkg.Setup")}

	main := stubCase{
		opts: testcase.TestOptions{
			ImplPath:      "tests/pkg.Main",
			Prerequisites: []testcase.PrerequisiteSpec{{ImplPath: "Setup"}},
		},
		run: func(tc *testcase.Context) { tc.Passed("ok") },
	}
	s.Add(main, nil, nil, resolver)

	if len(s.entries) != 2 {
		t.Fatalf("entries = %d, want 2 (prereq + main)", len(s.entries))
	}
	if s.entries[0].test.implPath != "tests/pkg.Setup" || !s.entries[0].test.AutoAdded {
		t.Fatalf("entries[0] = %+v, want auto-added tests/pkg.Setup", s.entries[0].test)
	}

	d, err := s.Run(context.Background(), cfgFor(bus))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if d != disposition.Passed {
		t.Fatalf("disposition = %v, want Passed", d)
	}
}

func TestSuiteDedupsAutoAddedPrerequisiteBySignature(t *testing.T) {
	s := New("s")
	resolver := fakeResolver{"tests/pkg.Setup": passCase("tests/pkg.Setup")}

	mk := func(name string) stubCase {
		return stubCase{
			opts: testcase.TestOptions{
				ImplPath:      "tests/pkg." + name,
				Prerequisites: []testcase.PrerequisiteSpec{{ImplPath: "Setup"}},
			},
			run: func(tc *testcase.Context) { tc.Passed("ok") },
		}
	}
	s.Add(mk("A"), nil, nil, resolver)
	s.Add(mk("B"), nil, nil, resolver)

	autoAdded := 0
	for _, e := range s.entries {
		if e.test != nil && e.test.AutoAdded {
			autoAdded++
		}
	}
	if autoAdded != 1 {
		t.Fatalf("auto-added entries = %d, want exactly 1 (deduplicated)", autoAdded)
	}
	if len(s.entries) != 3 {
		t.Fatalf("entries = %d, want 3 (one shared prereq + A + B)", len(s.entries))
	}
}

func TestSuiteUnmetPrerequisiteSkipsWithIncomplete(t *testing.T) {
	bus := signalbus.New(nil)
	s := New("s")

	dependent := stubCase{
		opts: testcase.TestOptions{
			ImplPath:      "pkg.Dependent",
			Prerequisites: []testcase.PrerequisiteSpec{{ImplPath: "pkg.NeverScheduled"}},
		},
		run: func(tc *testcase.Context) { tc.Passed("should not run") },
	}
	entry := s.Add(dependent, nil, nil, nil) // resolver nil: prereq left unscheduled

	d, err := s.Run(context.Background(), cfgFor(bus))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if d != disposition.Incomplete {
		t.Fatalf("disposition = %v, want Incomplete", d)
	}
	if entry.Disposition() != disposition.Incomplete {
		t.Fatalf("entry disposition = %v, want Incomplete", entry.Disposition())
	}
}

func TestSuiteAbortContainsAndSkipsRemainder(t *testing.T) {
	bus := signalbus.New(nil)
	s := New("s")
	aborting := stubCase{
		opts: testcase.TestOptions{ImplPath: "pkg.A"},
		run:  func(tc *testcase.Context) { tc.Abort("testbed lost") },
	}
	entryA := s.Add(aborting, nil, nil, nil)
	entryB := s.Add(passCase("pkg.B"), nil, nil, nil)

	d, err := s.Run(context.Background(), cfgFor(bus))
	if err != nil {
		t.Fatalf("Run should contain TestSuiteAbort, got error: %v", err)
	}
	if entryB.Disposition() != disposition.Aborted {
		t.Fatalf("B disposition = %v, want Aborted (never attempted)", entryB.Disposition())
	}
	_ = entryA
	if d != disposition.Aborted {
		t.Fatalf("suite disposition = %v, want Aborted", d)
	}
}

type finStubCase struct {
	stubCase
	finErr error
}

func (c finStubCase) Finalize(ctx context.Context, tc *testcase.Context) error { return c.finErr }

func TestSuiteTestFinalizeFailureAbortsButAggregatesRanEntries(t *testing.T) {
	bus := signalbus.New(nil)
	s := New("s")
	a := finStubCase{stubCase: passCase("pkg.A"), finErr: fmt.Errorf("cleanup exploded")}
	s.Add(a, nil, nil, nil)
	entryB := s.Add(passCase("pkg.B"), nil, nil, nil)

	d, err := s.Run(context.Background(), cfgFor(bus))
	if err != nil {
		t.Fatalf("abort should be contained in this suite, got error: %v", err)
	}
	if d != disposition.Passed {
		t.Fatalf("disposition = %v, want Passed (aggregate covers only the entry that ran)", d)
	}
	if entryB.Disposition() != disposition.Aborted {
		t.Fatalf("B disposition = %v, want Aborted (never attempted)", entryB.Disposition())
	}
}

func TestSuiteSummaryFollowsSuiteEnd(t *testing.T) {
	bus := signalbus.New(nil)
	var order []string
	for _, name := range []string{signalbus.SigSuiteEnd, signalbus.SigSuiteSummary} {
		name := name
		bus.Connect(name, nil, false, func(sender interface{}, p signalbus.Payload) interface{} {
			order = append(order, name)
			return nil
		})
	}
	s := New("s")
	s.Add(passCase("pkg.A"), nil, nil, nil)
	if _, err := s.Run(context.Background(), cfgFor(bus)); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	want := []string{signalbus.SigSuiteEnd, signalbus.SigSuiteSummary}
	if len(order) != 2 || order[0] != want[0] || order[1] != want[1] {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestSuiteFinalizeHookFailureRaisesAbortToParent(t *testing.T) {
	bus := signalbus.New(nil)
	s := New("s")
	s.Add(passCase("pkg.A"), nil, nil, nil)
	s.Finalize = func(ctx context.Context) error { return fmt.Errorf("teardown failed") }

	_, err := s.Run(context.Background(), cfgFor(bus))
	var abort *errors.TestSuiteAbort
	if !errors.As(err, &abort) {
		t.Fatalf("err = %v, want *errors.TestSuiteAbort", err)
	}
}

func TestSuiteHonorsEntryRepeatCount(t *testing.T) {
	bus := signalbus.New(nil)
	s := New("s")
	runs := 0
	c := stubCase{
		opts: testcase.TestOptions{ImplPath: "pkg.A", Repeat: 3},
		run:  func(tc *testcase.Context) { runs++; tc.Passed("ok") },
	}
	s.Add(&c, nil, nil, nil)

	d, err := s.Run(context.Background(), cfgFor(bus))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if d != disposition.Passed {
		t.Fatalf("disposition = %v, want Passed", d)
	}
	if runs != 3 {
		t.Fatalf("procedure ran %d times, want 3", runs)
	}
}

func TestSuiteFailureAggregatesAsFailed(t *testing.T) {
	bus := signalbus.New(nil)
	s := New("s")
	s.Add(passCase("pkg.A"), nil, nil, nil)
	s.Add(failCase("pkg.B"), nil, nil, nil)

	d, err := s.Run(context.Background(), cfgFor(bus))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if d != disposition.Failed {
		t.Fatalf("disposition = %v, want Failed", d)
	}
}

func TestNestedSuiteEntryAggregates(t *testing.T) {
	bus := signalbus.New(nil)
	outer := New("outer")
	inner := New("inner")
	inner.Add(passCase("pkg.A"), nil, nil, nil)
	outer.AddSuite(inner)

	d, err := outer.Run(context.Background(), cfgFor(bus))
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if d != disposition.Passed {
		t.Fatalf("disposition = %v, want Passed", d)
	}
}
