// Package runner implements the top-level test runner: signal handling,
// logdir/report lifecycle, testbed acquisition, the repeat-iteration loop
// over a mixed list of runnables, and the final aggregate disposition and
// exit code. A runnable may be a bare TestCase, a Scenario, a TestSuite,
// or a run(config) callable.
package runner

import (
	"context"

	"devtester/internal/config"
	"devtester/internal/disposition"
	"devtester/internal/testbed"
	"devtester/internal/testcase"
	"devtester/internal/testsuite"
)

// Runnable is anything RunAll accepts directly: a bare TestCase, a
// Scenario, a TestSuite instance, or a run(config, testbed) callable.
type Runnable interface {
	run(ctx context.Context, cfg testsuite.RunConfig, rcfg RunnerContext) (disposition.Disposition, error)
}

// RunnerContext is the set of dependencies a Scenario or module-level run
// callable may need beyond the bare bus/clock/logdir triple.
type RunnerContext struct {
	Config  *config.Tree
	Testbed *testbed.TestbedRuntime
}

// caseRunnable wraps a single bare TestCase. Contiguous caseRunnables in a
// RunAll list are grouped into one synthetic suite by group, merging
// contiguous bare TestCase values into a single synthetic suite.
type caseRunnable struct {
	Case     testcase.Case
	Args     []interface{}
	Kwargs   map[string]interface{}
	Resolver testsuite.CaseResolver
}

func (r caseRunnable) run(ctx context.Context, cfg testsuite.RunConfig, _ RunnerContext) (disposition.Disposition, error) {
	s := testsuite.New("")
	s.Add(r.Case, r.Args, r.Kwargs, r.Resolver)
	return s.Run(ctx, cfg)
}

func (r caseRunnable) isBareCase() bool { return true }

// SuiteRunnable wraps a pre-populated *testsuite.Suite.
type SuiteRunnable struct{ Suite *testsuite.Suite }

func (r SuiteRunnable) run(ctx context.Context, cfg testsuite.RunConfig, _ RunnerContext) (disposition.Disposition, error) {
	return r.Suite.Run(ctx, cfg)
}

// Scenario is a factory producing a fully-populated TestSuite for a given
// testbed/config.
type Scenario interface {
	GetSuite(cfg *config.Tree, tb *testbed.TestbedRuntime) *testsuite.Suite
}

// ScenarioRunnable wraps a Scenario.
type ScenarioRunnable struct{ Scenario Scenario }

func (r ScenarioRunnable) run(ctx context.Context, cfg testsuite.RunConfig, rcfg RunnerContext) (disposition.Disposition, error) {
	s := r.Scenario.GetSuite(rcfg.Config, rcfg.Testbed)
	return s.Run(ctx, cfg)
}

// FuncRunnable wraps the Go equivalent of "a module exposing a run(config,
// testbed, ui) callable": a plain function with full access to the run's
// config and testbed.
type FuncRunnable struct {
	Run func(ctx context.Context, cfg *config.Tree, tb *testbed.TestbedRuntime) (disposition.Disposition, error)
}

func (r FuncRunnable) run(ctx context.Context, _ testsuite.RunConfig, rcfg RunnerContext) (disposition.Disposition, error) {
	return r.Run(ctx, rcfg.Config, rcfg.Testbed)
}

// NewCase builds a Runnable scheduling a single bare TestCase, the
// Go equivalent of passing a TestCase class directly to runall.
func NewCase(c testcase.Case, args []interface{}, kwargs map[string]interface{}, resolver testsuite.CaseResolver) Runnable {
	return caseRunnable{Case: c, Args: args, Kwargs: kwargs, Resolver: resolver}
}

// bareCase is implemented only by caseRunnable. group detects contiguous
// runs of bare cases by asserting the concrete caseRunnable type.
type bareCase interface {
	isBareCase() bool
}

// group merges contiguous bare-case runnables into a single SuiteRunnable,
// leaving every other runnable untouched and in its original position.
func group(objects []Runnable) []Runnable {
	var out []Runnable
	var pending *testsuite.Suite

	flush := func() {
		if pending != nil {
			out = append(out, SuiteRunnable{Suite: pending})
			pending = nil
		}
	}

	for _, o := range objects {
		cr, ok := o.(caseRunnable)
		if !ok {
			flush()
			out = append(out, o)
			continue
		}
		if pending == nil {
			pending = testsuite.New("")
		}
		pending.Add(cr.Case, cr.Args, cr.Kwargs, cr.Resolver)
	}
	flush()
	return out
}

var _ bareCase = caseRunnable{}
