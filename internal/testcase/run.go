package testcase

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"devtester/internal/disposition"
	"devtester/internal/errors"
	"devtester/internal/signalbus"
	"devtester/internal/xcontext"
	"devtester/shutil"
)

// RunConfig carries everything about the enclosing suite/run a single
// TestEntry invocation needs but that is not part of the Case contract
// itself.
type RunConfig struct {
	Bus    *signalbus.Bus
	Sender interface{} // identity used for signal-bus sender filtering
	LogDir string
	Now    func() time.Time // defaults to time.Now
}

func (c RunConfig) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Run executes one invocation of c's full lifecycle (initialize, procedure,
// finalize) against cfg, implementing the run algorithm:
//
// 1. Initialize (if present); a non-nil error aborts the enclosing suite.
// 2. Emit test-start, test-version if a version is declared, and
// test-arguments (always, with an empty repr for a no-arg invocation).
// 3. Run Procedure. An assertion failure records Failed/ExpectedFail and
// continues to step 4; a call to tc.Abort unwinds to the suite; any
// other panic is recorded as Incomplete with a diagnostic describing
// it; a Procedure that returns without ever recording a disposition is
// likewise Incomplete.
// 4. Emit test-end, always, even when step 3 aborted.
// 5. Finalize (if present); a non-nil error aborts the enclosing suite.
//
// Run returns the entry's final disposition and, when the invocation (or
// its Initialize/Finalize hooks) requested an abort, the *errors.TestSuiteAbort
// (or, from Procedure, *errors.TestRunAbort) the caller should propagate.
func Run(ctx context.Context, c Case, args []interface{}, kwargs map[string]interface{}, cfg RunConfig) (disposition.Disposition, error) {
	opts := c.Options().Normalized()
	start := cfg.now()
	tc := newContext(cfg.Bus, cfg.Sender, opts.Name, opts.BugID, cfg.LogDir, opts.DataDir, func() time.Time { return start })

	if opts.Timeout > 0 {
		var cancel xcontext.CancelFunc
		ctx, cancel = xcontext.WithTimeout(ctx, opts.Timeout, errors.NewTestIncomplete("procedure timed out"))
		defer cancel(errors.NewTestIncomplete("run complete"))
	}

	if init, ok := c.(Initializer); ok {
		if err := runHook(func() error { return init.Initialize(ctx, tc) }); err != nil {
			tc.Diagnostic(fmt.Sprintf("initialize failed: %v", err))
			return disposition.Aborted, errors.NewTestSuiteAbort(err, "initialize failed")
		}
	}

	cfg.Bus.Send(signalbus.SigTestStart, cfg.Sender, signalbus.Payload{"time": start})
	if opts.Version != "" {
		cfg.Bus.Send(signalbus.SigTestVersion, cfg.Sender, signalbus.Payload{"version": opts.Version})
	}
	cfg.Bus.Send(signalbus.SigTestArguments, cfg.Sender, signalbus.Payload{"arguments": argumentsRepr(args, kwargs)})

	abortErr := runProcedure(ctx, c, tc, args, kwargs)
	tc.emitTiming()

	cfg.Bus.Send(signalbus.SigTestEnd, cfg.Sender, signalbus.Payload{"time": cfg.now()})

	if abortErr != nil {
		return disposition.Aborted, abortErr
	}

	if fin, ok := c.(Finalizer); ok {
		if err := runHook(func() error { return fin.Finalize(ctx, tc) }); err != nil {
			// The test's own disposition survives a finalize failure; only
			// the suite is aborted by it.
			d := disposition.Aborted
			if tc.recorder.HasDisposition() {
				d, _ = tc.recorder.Disposition()
			}
			return d, errors.NewTestSuiteAbort(err, "finalize failed")
		}
	}

	if tc.recorder.HasDisposition() {
		d, _ := tc.recorder.Disposition()
		return d, nil
	}
	tc.Incomplete("procedure returned without recording a terminal disposition")
	d, _ := tc.recorder.Disposition()
	return d, nil
}

// runProcedure invokes c.Procedure, translating panics into disposition
// recordings per the table in Run's doc comment. It returns non-nil only
// when the invocation must abort the enclosing suite.
func runProcedure(ctx context.Context, c Case, tc *Context, args []interface{}, kwargs map[string]interface{}) (abortErr error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		if abort, ok := asAbort(r); ok {
			abortErr = abort
			return
		}

		if af, ok := r.(assertionFailure); ok {
			tc.Failed(af.msg)
			return
		}

		// Any other panic (including *errors.TestImplementationError from
		// a second terminal-disposition call) is an unhandled exception: it
		// overrides whatever disposition had already been recorded, so a
		// swallowed violation never leaves the test looking like it passed.
		msg := panicMessage(r)
		tc.Diagnostic(msg + "\n" + string(debug.Stack()))
		tc.recorder.ForceSet(disposition.Incomplete, msg)
		tc.bus.Send(signalbus.SigTestIncomplete, tc.sender, signalbus.Payload{"message": msg})
	}()

	c.Procedure(ctx, tc, args, kwargs)
	return nil
}

func asAbort(r interface{}) (error, bool) {
	err, ok := r.(error)
	if !ok {
		return nil, false
	}
	var abort *errors.TestSuiteAbort
	if errors.As(err, &abort) {
		return abort, true
	}
	var runAbort *errors.TestRunAbort
	if errors.As(err, &runAbort) {
		return runAbort, true
	}
	return nil, false
}

func panicMessage(r interface{}) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("panic: %v", r)
}

// argumentsRepr builds the "printable repr" the test-arguments signal
// carries: positional args and sorted kwargs rendered as a shell-quoted
// word list, via shutil so the same quoting rules apply here as for
// prerequisite fingerprints.
func argumentsRepr(args []interface{}, kwargs map[string]interface{}) string {
	words := make([]string, 0, len(args)+len(kwargs))
	for _, a := range args {
		words = append(words, fmt.Sprintf("%v", a))
	}
	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		words = append(words, fmt.Sprintf("%s=%v", k, kwargs[k]))
	}
	return shutil.EscapeSlice(words)
}

// runHook guards an Initialize/Finalize call so a panic inside one is
// reported the same way a returned error is: fatal to the suite.
func runHook(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewTestImplementationError(panicMessage(r))
		}
	}()
	return f()
}
