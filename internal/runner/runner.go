package runner

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"devtester/internal/config"
	"devtester/internal/disposition"
	"devtester/internal/errors"
	"devtester/internal/logging"
	"devtester/internal/service"
	"devtester/internal/signalbus"
	"devtester/internal/testbed"
	"devtester/internal/testsuite"
)

// Runner is the top-level entry point: it owns the logdir, the
// signal bus, the testbed acquisition lifecycle, and the repeat-iteration
// loop over a mixed runnable list.
type Runner struct {
	Bus         *signalbus.Bus
	Config      *config.Tree
	Logger      *logging.MultiLogger
	ResultsDir  string
	TestbedSpec *TestbedSpec
	Functions   testbed.FunctionTable

	// Report, if non-nil, is finalized by RunAll after run-end has been
	// delivered, followed by the report-final signal. A caller that owns
	// its report's lifecycle itself (unit tests, embedders) leaves this
	// nil.
	Report interface{ Finalize() error }

	// ServiceProviders, if non-nil, is called once RunAll's logdir exists
	// (several built-ins, e.g. seriallog, write into it) to produce the
	// providers registered with the manager this Runner creates and
	// connects at RunAll's start; the manager is torn down at RunAll's
	// end. Nil means no built-in services are available this run (a bare
	// list/unit-test invocation).
	ServiceProviders func(logDir string) map[string]service.Provider

	logDir   string
	tb       *testbed.TestbedRuntime
	services *service.Manager
}

// New creates a Runner. bus must already have any report sinks connected
// the caller wants to observe this run.
func New(bus *signalbus.Bus, cfg *config.Tree, resultsDir string) *Runner {
	return &Runner{Bus: bus, Config: cfg, Logger: logging.NewMultiLogger(), ResultsDir: resultsDir}
}

// testbedRuntime lazily acquires the testbed on first access. A Runner
// with no TestbedSpec runs without one: fine for a selection of test
// cases that never touch equipment.
func (r *Runner) testbedRuntime() *testbed.TestbedRuntime {
	if r.tb != nil {
		return r.tb
	}
	if r.TestbedSpec == nil {
		return nil
	}
	r.tb = testbed.New(r.TestbedSpec.Name, r.TestbedSpec.Attrs, r.TestbedSpec.Equipment, r.Functions, r.Bus)
	return r.tb
}

// TestbedSpec is the inventory row a Runner acquires its testbed from.
type TestbedSpec struct {
	Name      string
	Attrs     map[string]interface{}
	Equipment []testbed.Row
}

func (r *Runner) releaseTestbed() {
	if r.tb == nil {
		return
	}
	if err := r.tb.Finalize(); err != nil {
		r.Bus.Send(signalbus.SigRunError, r, signalbus.Payload{"exception": err})
	}
	r.tb = nil
}

// RunAll executes objects, repeat times, returning the aggregate
// disposition across every iteration and runnable.
// repeat must be >= 1.
func (r *Runner) RunAll(ctx context.Context, objects []Runnable, repeat int) disposition.Disposition {
	if repeat < 1 {
		repeat = 1
	}

	ctx, stopSignals := r.installSignalHandlers(ctx)
	defer stopSignals()

	start := time.Now()
	logDir, err := r.createLogDir(start)
	if err != nil {
		r.Bus.Send(signalbus.SigRunError, r, signalbus.Payload{"exception": err})
		return disposition.Incomplete
	}
	r.logDir = logDir

	// The testbed is claimed before the first run-start subscriber runs
	// and held until the last run-end subscriber has returned.
	tb := r.testbedRuntime()
	restoreStderr := r.redirectStderr(logDir)

	r.Bus.Send(signalbus.SigRunStart, r, signalbus.Payload{"time": start})
	if tb != nil {
		r.Bus.Send(signalbus.SigReportTestbed, r, signalbus.Payload{"testbed": tb.Name})
	}
	r.Bus.Send(signalbus.SigLogdirLocation, r, signalbus.Payload{"path": logDir})
	if comment, err := r.Config.StringOr("comment", ""); err == nil && comment != "" {
		r.Bus.Send(signalbus.SigReportComment, r, signalbus.Payload{"message": comment})
	}

	r.initServices(logDir)

	agg := r.runIterations(ctx, objects, repeat, logDir)

	r.Bus.Send(signalbus.SigRunEnd, r, signalbus.Payload{"time": time.Now()})
	restoreStderr()
	r.finalizeReport()
	r.finalizeServices()
	r.releaseTestbed()

	return agg
}

// finalizeReport flushes the configured report sink and then announces
// report-final, the only event permitted after run-end.
func (r *Runner) finalizeReport() {
	if r.Report != nil {
		if err := r.Report.Finalize(); err != nil {
			r.Logger.Log(logging.LevelDiagnostic, time.Now(), fmt.Sprintf("report finalize failed: %v", err))
		}
	}
	r.Bus.Send(signalbus.SigReportFinal, r, nil)
}

// redirectStderr points the process's stderr at {logdir}/runner-stderr.txt
// for the duration of the run when flags.stderr is false, returning the
// restore function. Absent the key, stderr is left alone.
func (r *Runner) redirectStderr(logDir string) func() {
	keep, err := r.Config.BoolOr("flags.stderr", true)
	if err != nil || keep {
		return func() {}
	}
	f, err := os.Create(filepath.Join(logDir, "runner-stderr.txt"))
	if err != nil {
		r.Logger.Log(logging.LevelDiagnostic, time.Now(), fmt.Sprintf("creating runner-stderr.txt: %v", err))
		return func() {}
	}
	saved, err := unix.Dup(int(os.Stderr.Fd()))
	if err != nil {
		f.Close()
		return func() {}
	}
	if err := unix.Dup2(int(f.Fd()), int(os.Stderr.Fd())); err != nil {
		unix.Close(saved)
		f.Close()
		return func() {}
	}
	return func() {
		unix.Dup2(saved, int(os.Stderr.Fd()))
		unix.Close(saved)
		f.Close()
	}
}

// initServices connects a fresh service.Manager to the bus and registers
// every provider r.ServiceProviders builds for this run's logDir. This
// runs once per RunAll, after run-start, so a provider's own diagnostics
// land inside this run's logdir-scoped report.
func (r *Runner) initServices(logDir string) {
	r.services = service.New(r.Bus, r.Logger)
	if r.ServiceProviders == nil {
		return
	}
	for name, p := range r.ServiceProviders(logDir) {
		r.services.Register(name, p)
	}
}

// finalizeServices tears down every registered provider. It runs
// unconditionally, on every exit path, the same way releaseTestbed is.
func (r *Runner) finalizeServices() {
	if r.services == nil {
		return
	}
	if err := r.services.Close(); err != nil {
		r.Bus.Send(signalbus.SigRunError, r, signalbus.Payload{"exception": err})
	}
	r.services = nil
}

func (r *Runner) runIterations(ctx context.Context, objects []Runnable, repeat int, logDir string) disposition.Disposition {
	groups := group(objects)
	var all []disposition.Disposition

	rcfg := RunnerContext{Config: r.Config, Testbed: r.testbedRuntime()}
	cfg := testsuite.RunConfig{Bus: r.Bus, LogDir: logDir, DebugLevel: r.debugLevel()}

	for i := 0; i < repeat; i++ {
		if ctx.Err() != nil {
			all = append(all, disposition.Aborted)
			break
		}

		for _, ro := range groups {
			if ctx.Err() != nil {
				all = append(all, disposition.Aborted)
				break
			}
			d, err := ro.run(ctx, cfg, rcfg)
			all = append(all, d)
			if err != nil {
				// A TestSuiteAbort or TestRunAbort escaping a runnable ends
				// the whole run.
				r.Bus.Send(signalbus.SigRunError, r, signalbus.Payload{"exception": err})
				return disposition.Aborted
			}
		}
	}

	if len(all) == 0 {
		return disposition.NotApplicable
	}
	return disposition.Aggregate(all)
}

func (r *Runner) debugLevel() int {
	n, _ := r.Config.IntOr("flags.debug", 0)
	return n
}

func (r *Runner) createLogDir(t time.Time) (string, error) {
	name := t.Format("20060102_150405")
	dir := filepath.Join(r.ResultsDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.NewTestRunnerError(fmt.Sprintf("creating logdir %q: %v", dir, err))
	}
	return dir, nil
}

// installSignalHandlers arranges for SIGTERM/SIGHUP to cancel ctx so the
// current group finishes and the run proceeds to its finalize path,
// rather than the process dying mid-run.
func (r *Runner) installSignalHandlers(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGTERM, unix.SIGHUP)
	done := make(chan struct{})
	go func() {
		select {
		case <-ch:
			cancel()
		case <-done:
		}
	}()
	return ctx, func() {
		signal.Stop(ch)
		close(done)
		cancel()
	}
}
