package testcase

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"devtester/internal/disposition"
	"devtester/internal/errors"
	"devtester/internal/signalbus"
	"devtester/internal/timing"
)

// Context is the per-invocation handle a Procedure (and its optional
// Initialize/Finalize) uses to emit disposition, log, and data signals.
// It is created fresh for every TestEntry run and must not outlive it.
type Context struct {
	bus       *signalbus.Bus
	sender    interface{}
	recorder  *recorder
	name      string
	bugID     string
	logDir    string
	dataDir   string
	startTime func() time.Time
	timing    *timing.Log
}

func newContext(bus *signalbus.Bus, sender interface{}, name, bugID, logDir, dataDir string, startTime func() time.Time) *Context {
	return &Context{
		bus:       bus,
		sender:    sender,
		recorder:  &recorder{},
		name:      name,
		bugID:     bugID,
		logDir:    logDir,
		dataDir:   dataDir,
		startTime: startTime,
		timing:    timing.NewLog(),
	}
}

// StartSpan opens a named timing span nested under this invocation's root
// span. Callers must End the returned span; a span left open reports a
// zero duration rather than blocking anything.
func (tc *Context) StartSpan(name string) *timing.Stage {
	return tc.timing.StartTop(name)
}

// emitTiming records the accumulated span tree as a test-data signal, if
// any span was ever opened. Called once, after procedure/finalize, by
// Run.
func (tc *Context) emitTiming() {
	if tc.timing.Empty() {
		return
	}
	tc.RecordData(map[string]interface{}{"timing": tc.timing.Snapshot()})
}

func (tc *Context) emit(name string, payload signalbus.Payload) {
	tc.bus.Send(name, tc.sender, payload)
}

// Passed records a passing disposition. It panics with
// *errors.TestImplementationError if a terminal disposition was already
// recorded for this invocation.
func (tc *Context) Passed(msg string) {
	tc.recorder.Set(disposition.Passed, msg)
	tc.emit(signalbus.SigTestPassed, signalbus.Payload{"message": msg})
}

// Failed records a failing disposition, unless this case carries a bug id
// (TestOptions.BugID), in which case it is rewritten to ExpectedFail and
// emits test-expected-failure instead of test-failure.
func (tc *Context) Failed(msg string) {
	if tc.bugID != "" {
		tc.Diagnostic(fmt.Sprintf("known bug %s", tc.bugID))
		tc.recorder.Set(disposition.ExpectedFail, msg)
		tc.emit(signalbus.SigTestExpectedFailure, signalbus.Payload{"message": msg})
		return
	}
	tc.recorder.Set(disposition.Failed, msg)
	tc.emit(signalbus.SigTestFailure, signalbus.Payload{"message": msg})
}

// ExpectedFail records an expected-failure disposition directly,
// regardless of whether a bug id is set.
func (tc *Context) ExpectedFail(msg string) {
	tc.recorder.Set(disposition.ExpectedFail, msg)
	tc.emit(signalbus.SigTestExpectedFailure, signalbus.Payload{"message": msg})
}

// Incomplete records that the test could not determine pass/fail.
func (tc *Context) Incomplete(msg string) {
	tc.recorder.Set(disposition.Incomplete, msg)
	tc.emit(signalbus.SigTestIncomplete, signalbus.Payload{"message": msg})
}

// Abort emits test-abort and unwinds the calling Procedure with a
// TestSuiteAbort, terminating the enclosing suite without attempting any
// later entry. It never returns.
func (tc *Context) Abort(msg string) {
	tc.emit(signalbus.SigTestAbort, signalbus.Payload{"message": msg})
	panic(errors.NewTestSuiteAbort(nil, msg))
}

// Info emits a test-info signal.
func (tc *Context) Info(msg string) {
	tc.emit(signalbus.SigTestInfo, signalbus.Payload{"message": msg})
}

// Infof is Info with Sprintf-style formatting.
func (tc *Context) Infof(format string, args ...interface{}) {
	tc.Info(fmt.Sprintf(format, args...))
}

// Warning emits a test-warning signal.
func (tc *Context) Warning(msg string) {
	tc.emit(signalbus.SigTestWarning, signalbus.Payload{"message": msg})
}

// Diagnostic emits a test-diagnostic signal. Unlike Info/Warning this is
// meant for framework- or harness-level detail that a report sink should
// never filter out regardless of the run's verbosity.
func (tc *Context) Diagnostic(msg string) {
	tc.emit(signalbus.SigTestDiagnostic, signalbus.Payload{"message": msg})
}

// RecordData emits data as a test-data signal. Report sinks that persist
// structured results (the database sink, the jupyter sink) subscribe to
// this signal rather than parsing log text. The record is additionally
// appended to {logdir}/{name}_data.json; if that file already holds a
// document from an earlier run of the same test, its contents become a
// list.
func (tc *Context) RecordData(data interface{}) {
	tc.appendDataFile(data)
	tc.emit(signalbus.SigTestData, signalbus.Payload{"data": data})
}

func (tc *Context) appendDataFile(data interface{}) {
	if tc.logDir == "" || tc.name == "" {
		return
	}
	path := filepath.Join(tc.logDir, tc.name+"_data.json")

	docs := []interface{}{}
	if prev, err := os.ReadFile(path); err == nil && len(prev) > 0 {
		var existing interface{}
		if json.Unmarshal(prev, &existing) == nil {
			if list, ok := existing.([]interface{}); ok {
				docs = list
			} else {
				docs = []interface{}{existing}
			}
		}
	}
	docs = append(docs, data)

	var out interface{} = docs
	if len(docs) == 1 {
		out = docs[0]
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		tc.Diagnostic(fmt.Sprintf("test-data record is not JSON-serializable: %v", err))
		return
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		tc.Diagnostic(fmt.Sprintf("writing %s: %v", path, err))
	}
}

// GetFilename returns the path a data file for this invocation should use,
// derived from this test's start time so repeated runs of the same test
// never collide: {logDir}/{base}-{startTS}.{ext}.
func (tc *Context) GetFilename(base, ext string) string {
	ts := tc.startTime().Format("20060102150405.000000")
	return filepath.Join(tc.logDir, fmt.Sprintf("%s-%s.%s", base, ts, ext))
}

// OpenDataFile opens, read-only, a test-vector file bundled with this
// test's implementation, resolved against the TestOptions.DataDir its
// package registered. Files written under the logdir go through
// GetFilename and RecordData instead.
func (tc *Context) OpenDataFile(name string) (*os.File, error) {
	if tc.dataDir == "" {
		return nil, errors.NewConfigNotFoundError("datadir")
	}
	return os.Open(filepath.Join(tc.dataDir, name))
}
