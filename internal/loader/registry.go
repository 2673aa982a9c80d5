// Package loader implements the loader: resolving implementation paths
// to runnable objects and selecting a runnable list for the runner.
//
// There is no runtime namespace walk in a statically-linked binary, so
// discovery is a build-time registry instead: every test package calls
// Registry.Register from an init func, and listing or selecting tests
// iterates the resulting map rather than a filesystem tree.
package loader

import (
	"fmt"
	"sort"

	"golang.org/x/exp/slices"

	"devtester/internal/errors"
	"devtester/internal/runner"
	"devtester/internal/testcase"
)

// Factory constructs a fresh instance of a registered runnable each time
// it is scheduled, so no state leaks between two invocations of the same
// implementation path.
type Factory func() interface{}

// entry is one registered implementation path.
type entry struct {
	implPath string
	factory Factory
}

// Registry holds every registered implementation path: test authors'
// init funcs populate it via Register, and the runner resolves and
// selects from it by path.
type Registry struct {
	byPath map[string]entry
	order []string // registration order; Paths sorts independently of it
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {	return &Registry{byPath: make(map[string]entry)}
}

// Register adds implPath to the registry. factory must return one of
// testcase.Case, runner.Scenario, *testsuite.Suite (wrapped in
// runner.SuiteRunnable), or a func matching runner.FuncRunnable.Run's
// signature wrapped in runner.FuncRunnable — whatever runner.RunAll
// accepts directly. Registering the same path twice is a
// TestImplementationError.
func (r *Registry) Register(implPath string, factory Factory) error {
	if _, ok := r.byPath[implPath]; ok {
		return errors.NewTestImplementationError(fmt.Sprintf("loader: %q already registered", implPath))
	}
	r.byPath[implPath] = entry{implPath: implPath, factory: factory}
	r.order = append(r.order, implPath)
	return nil
}

// Resolve implements testsuite.CaseResolver: it looks up implPath and, if
// its factory produces a testcase.Case, returns it. A path registered to
// a non-Case runnable (a Scenario or a bare suite) cannot be used as a
// prerequisite and resolves as not-found.
func (r *Registry) Resolve(implPath string) (testcase.Case, bool) {
	e, ok := r.byPath[implPath]
	if !ok {
		return nil, false
	}
	c, ok := e.factory().(testcase.Case)
	return c, ok
}

// Paths returns every registered implementation path, sorted primarily by
// prerequisite-free-ness (cases with no declared prerequisites first) and
// secondarily by path. Sorting rather than returning insertion order
// keeps repeated runs against the same binary in a stable, diffable
// order, with independent tests scheduled ahead of dependents.
func (r *Registry) Paths() []string {
	paths := make([]string, 0, len(r.byPath))
	for p := range r.byPath {
		paths = append(paths, p)
	}
	slices.Sort(paths) // stable tie-break before the prereq-free-ness pass below
	sort.SliceStable(paths, func(i, j int) bool {
		pi, pj := r.hasPrerequisites(paths[i]), r.hasPrerequisites(paths[j])
		return !pi && pj
	})
	return paths
}

// hasPrerequisites reports whether the runnable registered at path
// declares any TestOptions.Prerequisites. Paths registered to a non-Case
// runnable (a Scenario, a wrapped suite or func) are treated as
// prerequisite-free since they carry no TestOptions to inspect.
func (r *Registry) hasPrerequisites(path string) bool {
	e, ok := r.byPath[path]
	if !ok {
		return false
	}
	c, ok := e.factory().(testcase.Case)
	if !ok {
		return false
	}
	return len(c.Options().Prerequisites) > 0
}

// OnError is invoked by Select for a path that fails to resolve to a
// runnable; selection continues with the remaining paths. A registry has
// no import step to fail, so in practice this only fires for a path
// absent from the registry entirely.
type OnError func(path string, err error)

// Select resolves a list of (implementation-path, options) pairs into a
// runner.Runnable list: each path is looked up, and if it names a
// testcase.Case and resolver is non-nil, resolver applies the selection's
// options to it, enabling parameterized replays of the same type. onError, if
// non-nil, is called instead of aborting the whole selection when a path
// can't be resolved.
func Select(reg *Registry, selections []Selection, resolver TestCaseResolver, onError OnError) []runner.Runnable {
	var out []runner.Runnable
	for _, sel := range selections {
		e, ok := reg.byPath[sel.ImplPath]
		if !ok {
			if onError != nil {
				onError(sel.ImplPath, errors.NewConfigNotFoundError(sel.ImplPath))
			}
			continue
		}
		obj := e.factory()
		switch v := obj.(type) {
		case testcase.Case:
			if resolver != nil {
				resolver.ApplyOptions(v, sel.Options)
			}
			opts := v.Options().Normalized()
			if len(sel.Args) == 0 && len(sel.Kwargs) == 0 && len(opts.Params) > 0 {
				// Parameterized replay: one scheduled invocation per
				// ParamSpec, in declaration order.
				for _, ps := range opts.Params {
					out = append(out, runner.NewCase(v, ps.Args, ps.Kwargs, reg))
				}
				continue
			}
			out = append(out, runner.NewCase(v, sel.Args, sel.Kwargs, reg))
		case runner.Scenario:
			out = append(out, runner.ScenarioRunnable{Scenario: v})
		case runner.Runnable:
			out = append(out, v)
		default:
			if onError != nil {
				onError(sel.ImplPath, errors.NewTestImplementationError(fmt.Sprintf("%q resolved to unsupported type %T", sel.ImplPath, obj)))
			}
		}
	}
	return out
}

// Selection is one (implementation-path, options) pair Select resolves.
type Selection struct {
	ImplPath string
	Args []interface{}
	Kwargs map[string]interface{}
	Options map[string]interface{}
}

// TestCaseResolver applies per-invocation options to a freshly
// constructed Case before it is scheduled.
type TestCaseResolver interface {
	ApplyOptions(c testcase.Case, opts map[string]interface{})
}
