package testsuite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"devtester/internal/disposition"
	"devtester/internal/errors"
	"devtester/internal/signalbus"
	"devtester/internal/testcase"
)

// Suite is an ordered container of TestEntry and nested SuiteEntry
// elements. The zero value, via New, is ready to use.
type Suite struct {
	Name    string
	entries []entry

	// Finalize, if set, runs after the entry loop on every exit path. Its
	// failure aborts the enclosing suite, the same way a test's own
	// finalize failure does.
	Finalize func(ctx context.Context) error
}

// New creates an empty, named Suite.
func New(name string) *Suite {
	return &Suite{Name: name}
}

// Add schedules one invocation of c and recursively auto-inserts any
// unmet prerequisite c's TestOptions declares, deduplicating auto-added
// entries by (implementation path, args, kwargs) signature. resolver may
// be nil if c has no prerequisites to resolve.
func (s *Suite) Add(c testcase.Case, args []interface{}, kwargs map[string]interface{}, resolver CaseResolver) *TestEntry {
	return s.add(c, args, kwargs, false, resolver)
}

func (s *Suite) add(c testcase.Case, args []interface{}, kwargs map[string]interface{}, autoAdded bool, resolver CaseResolver) *TestEntry {
	opts := c.Options().Normalized()
	if opts.Repeat < 1 {
		panic(errors.NewTestImplementationError(fmt.Sprintf("%s: repeat count %d is not >= 1", opts.ImplPath, opts.Repeat)))
	}

	for _, p := range opts.Prerequisites {
		implPath := resolvePrereqPath(opts.ImplPath, p.ImplPath)
		sig := fmt.Sprintf("%s|%s", implPath, fingerprint(p.Args, p.Kwargs))
		if s.hasAutoAddedSignature(sig) {
			continue
		}
		if resolver == nil {
			continue
		}
		prereqCase, ok := resolver.Resolve(implPath)
		if !ok {
			// Left unscheduled: the runtime prerequisite check in Run will
			// find no matching prior entry and report the dependent
			// Incomplete, exactly as an unmet (but scheduled) prerequisite
			// would.
			continue
		}
		s.add(prereqCase, p.Args, p.Kwargs, true, resolver)
	}

	e := &TestEntry{Case: c, Args: args, Kwargs: kwargs, AutoAdded: autoAdded, implPath: opts.ImplPath}
	s.entries = append(s.entries, entry{test: e})
	return e
}

// AddSuite nests child as a single SuiteEntry whose disposition is child's
// own aggregate result.
func (s *Suite) AddSuite(child *Suite) *SuiteEntry {
	e := &SuiteEntry{Suite: child}
	s.entries = append(s.entries, entry{suite: e})
	return e
}

func (s *Suite) hasAutoAddedSignature(sig string) bool {
	return slices.ContainsFunc(s.entries, func(e entry) bool {
		return e.test != nil && e.test.AutoAdded && e.test.signature() == sig
	})
}

// resolvePrereqPath resolves a prerequisite path with no package
// component against the package of the declaring test.
func resolvePrereqPath(declaringImplPath, prereqImplPath string) string {
	if strings.ContainsAny(prereqImplPath, "/.") {
		return prereqImplPath
	}
	if i := strings.LastIndex(declaringImplPath, "."); i >= 0 {
		return declaringImplPath[:i+1] + prereqImplPath
	}
	return prereqImplPath
}

// RunConfig carries the bus, clock, and log directory a suite run and all
// of its descendants share.
type RunConfig struct {
	Bus        *signalbus.Bus
	LogDir     string
	Now        func() time.Time
	DebugLevel int // prerequisite checking is skipped when DebugLevel >= 2
}

func (c RunConfig) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Run executes every entry in order: unmet prerequisites are skipped
// with Incomplete rather than attempted; a TestSuiteAbort raised by an
// entry (or by a nested suite's finalize) terminates the remaining
// entries in this suite only (the abort is contained here); a
// TestRunAbort is re-raised to the caller after this suite's own
// suite-end/suite-summary are still emitted. Entries never attempted
// because of an abort are recorded as Aborted but do not count toward
// the suite's aggregate, which covers only the entries that ran.
func (s *Suite) Run(ctx context.Context, cfg RunConfig) (disposition.Disposition, error) {
	cfg.Bus.Send(signalbus.SigSuiteStart, s, signalbus.Payload{"time": cfg.now()})

	var propagate error
loop:
	for i := range s.entries {
		e := &s.entries[i]

		var name string
		var err error
		if e.test != nil {
			if cfg.DebugLevel < 2 && !s.prerequisiteMet(i) {
				s.skipUnmetPrerequisite(cfg, e.test)
				continue
			}
			name = e.test.implPath
			e.test.disposition, err = s.runTestEntry(ctx, cfg, e.test)
			e.test.ran = true
		} else {
			name = e.suite.Suite.Name
			e.suite.disposition, err = e.suite.Suite.Run(ctx, cfg)
			e.suite.ran = true
		}
		if err != nil {
			if !isSuiteAbort(err) {
				propagate = err
				break loop
			}
			cfg.Bus.Send(signalbus.SigSuiteInfo, s, signalbus.Payload{
				"message": fmt.Sprintf("aborting suite after %s: %v", name, err),
			})
			break loop
		}
	}

	if s.Finalize != nil {
		if err := s.Finalize(ctx); err != nil && propagate == nil {
			propagate = errors.NewTestSuiteAbort(err, "suite finalize failed")
		}
	}

	for i := range s.entries {
		e := &s.entries[i]
		if !e.hasRun() {
			if e.test != nil {
				e.test.disposition = disposition.Aborted
			} else {
				e.suite.disposition = disposition.Aborted
			}
		}
	}

	agg := s.aggregate()
	cfg.Bus.Send(signalbus.SigSuiteEnd, s, signalbus.Payload{"time": cfg.now()})
	cfg.Bus.Send(signalbus.SigSuiteSummary, s, signalbus.Payload{"result": agg})

	return agg, propagate
}

// runTestEntry runs one entry's invocation, honoring its
// TestOptions.Repeat: the body runs that many times consecutively and the
// entry records the aggregate of the repeats.
func (s *Suite) runTestEntry(ctx context.Context, cfg RunConfig, e *TestEntry) (disposition.Disposition, error) {
	opts := e.Case.Options().Normalized()
	ds := make([]disposition.Disposition, 0, opts.Repeat)
	for i := 0; i < opts.Repeat; i++ {
		d, err := testcase.Run(ctx, e.Case, e.Args, e.Kwargs, testcase.RunConfig{
			Bus: cfg.Bus, Sender: e, LogDir: cfg.LogDir, Now: cfg.Now,
		})
		ds = append(ds, d)
		if err != nil {
			return disposition.Aggregate(ds), err
		}
	}
	return disposition.Aggregate(ds), nil
}

func isSuiteAbort(err error) bool {
	var abort *errors.TestSuiteAbort
	return errors.As(err, &abort)
}

func (s *Suite) aggregate() disposition.Disposition {
	if len(s.entries) == 0 {
		return disposition.NotApplicable
	}
	ds := make([]disposition.Disposition, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.hasRun() {
			continue
		}
		ds = append(ds, e.disposition())
	}
	if len(ds) == 0 {
		return disposition.Incomplete
	}
	return disposition.Aggregate(ds)
}

// prerequisiteMet reports whether every prerequisite of the TestEntry at
// index i has a matching, Passed, already-run prior entry in this suite.
func (s *Suite) prerequisiteMet(i int) bool {
	e := s.entries[i].test
	opts := e.Case.Options().Normalized()
	for _, p := range opts.Prerequisites {
		implPath := resolvePrereqPath(opts.ImplPath, p.ImplPath)
		if !s.hasPassedMatch(i, implPath, p.Args, p.Kwargs) {
			return false
		}
	}
	return true
}

func (s *Suite) hasPassedMatch(before int, implPath string, args []interface{}, kwargs map[string]interface{}) bool {
	for j := 0; j < before; j++ {
		te := s.entries[j].test
		if te == nil || !te.ran {
			continue
		}
		if te.matches(implPath, args, kwargs) && te.disposition == disposition.Passed {
			return true
		}
	}
	return false
}

func (s *Suite) skipUnmetPrerequisite(cfg RunConfig, e *TestEntry) {
	sender := e
	ts := cfg.now()
	cfg.Bus.Send(signalbus.SigTestStart, sender, signalbus.Payload{"time": ts})
	msg := fmt.Sprintf("Prerequisite not met: %s", e.implPath)
	cfg.Bus.Send(signalbus.SigTestDiagnostic, sender, signalbus.Payload{"message": msg})
	cfg.Bus.Send(signalbus.SigTestIncomplete, sender, signalbus.Payload{"message": msg})
	cfg.Bus.Send(signalbus.SigTestEnd, sender, signalbus.Payload{"time": cfg.now()})
	e.disposition = disposition.Incomplete
	e.ran = true
}
