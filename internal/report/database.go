package report

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"devtester/internal/signalbus"
)

// Store is the external inventory store's result-writing surface. A
// concrete Store is typically backed by the SQL schema the admin
// application owns; this package never talks to a database directly.
type Store interface {
	// InsertRun records a new top-level run row and returns its id.
	InsertRun(testbed string, start time.Time) (int64, error)
	// InsertNode records a suite or test-case row, linked to its parent
	// (0 for the run's direct children) and returns its id.
	InsertNode(parentID int64, kind, name string, start time.Time) (int64, error)
	// UpdateNode records a node's terminal state: disposition, end time,
	// every diagnostic emitted during the node joined by newline,
	// arguments repr, version, and any data blobs recorded via test-data.
	UpdateNode(id int64, disposition string, end time.Time, diagnostics []string, arguments, version string, data []interface{}) error
	// SetBuild records a DUT build/variant discovered during the run.
	SetBuild(runID int64, build, variant string) error
}

// Database is the report sink that writes a tree of result rows to
// Store: one row per runner, suite, and test case, linked by parent
// pointers.
type Database struct {
	store Store
	bus *signalbus.Bus

	mu sync.Mutex
	runID int64
	nodeOf map[interface{}]int64
	diagnostics map[interface{}][]string
	data map[interface{}][]interface{}
	args map[interface{}]string
	version map[interface{}]string
	terminal map[interface{}]string
	ended map[interface{}]time.Time

	handles []signalbus.Handle
}

// NewDatabase creates a Database report writing rows through store.
func NewDatabase(store Store) *Database {
	return &Database{
		store: store,
		nodeOf: make(map[interface{}]int64),
		diagnostics: make(map[interface{}][]string),
		data: make(map[interface{}][]interface{}),
		args: make(map[interface{}]string),
		version: make(map[interface{}]string),
		terminal: make(map[interface{}]string),
		ended: make(map[interface{}]time.Time),
	}
}

// Init connects the Database report's receivers.
func (d *Database) Init(bus *signalbus.Bus) error {
	d.bus = bus
	connect := func(name string, fn func(sender interface{}, p signalbus.Payload)) {
		d.handles = append(d.handles, bus.Connect(name, nil, false, func(sender interface{}, p signalbus.Payload) interface{} {
			fn(sender, p)
			return nil
		}))
	}

	connect(signalbus.SigReportTestbed, func(_ interface{}, p signalbus.Payload) {
		d.mu.Lock()
		defer d.mu.Unlock()
		name, _ := p["testbed"].(string)
		id, err := d.store.InsertRun(name, time.Now())
		if err == nil {
			d.runID = id
		}
	})
	connect(signalbus.SigSuiteStart, func(sender interface{}, p signalbus.Payload) {
		d.insertNode(sender, "suite", d.suiteName(sender), timeOf(p))
	})
	connect(signalbus.SigTestStart, func(sender interface{}, p signalbus.Payload) {
		d.insertNode(sender, "test", d.testName(sender), timeOf(p))
	})
	connect(signalbus.SigTestArguments, func(sender interface{}, p signalbus.Payload) {
		d.mu.Lock()
		d.args[sender] = fmt.Sprintf("%v", p["arguments"])
		d.mu.Unlock()
	})
	connect(signalbus.SigTestVersion, func(sender interface{}, p signalbus.Payload) {
		d.mu.Lock()
		d.version[sender] = fmt.Sprintf("%v", p["version"])
		d.mu.Unlock()
	})
	connect(signalbus.SigTestData, func(sender interface{}, p signalbus.Payload) {
		d.mu.Lock()
		d.data[sender] = append(d.data[sender], p["data"])
		d.mu.Unlock()
	})
	for _, name := range []string{
		signalbus.SigTestDiagnostic, signalbus.SigTestWarning, signalbus.SigTestInfo,
		signalbus.SigTestAbort, signalbus.SigSuiteInfo,
	} {
		connect(name, func(sender interface{}, p signalbus.Payload) {
			d.mu.Lock()
			d.diagnostics[sender] = append(d.diagnostics[sender], fmt.Sprintf("%v", p["message"]))
			d.mu.Unlock()
		})
	}
	for _, name := range []string{
		signalbus.SigTestPassed, signalbus.SigTestFailure, signalbus.SigTestExpectedFailure, signalbus.SigTestIncomplete,
	} {
		disposition := dispositionLabel(name)
		connect(name, func(sender interface{}, p signalbus.Payload) {
			d.mu.Lock()
			d.diagnostics[sender] = append(d.diagnostics[sender], fmt.Sprintf("%v", p["message"]))
			d.mu.Unlock()
			d.recordTerminal(sender, disposition)
		})
	}
	connect(signalbus.SigTestEnd, func(sender interface{}, p signalbus.Payload) {
		d.finishNode(sender, timeOf(p))
	})
	// A suite's disposition arrives via suite-summary, which follows
	// suite-end; its row is updated once both have been seen, whichever
	// order they land in.
	connect(signalbus.SigSuiteSummary, func(sender interface{}, p signalbus.Payload) {
		d.recordTerminal(sender, fmt.Sprintf("%v", p["result"]))
		d.mu.Lock()
		end, ended := d.ended[sender]
		d.mu.Unlock()
		if ended {
			d.finishNode(sender, end)
		}
	})
	connect(signalbus.SigSuiteEnd, func(sender interface{}, p signalbus.Payload) {
		end := timeOf(p)
		d.mu.Lock()
		_, haveTerminal := d.terminal[sender]
		if !haveTerminal {
			d.ended[sender] = end
		}
		d.mu.Unlock()
		if haveTerminal {
			d.finishNode(sender, end)
		}
	})
	connect(signalbus.SigTargetBuild, func(_ interface{}, p signalbus.Payload) {
		d.mu.Lock()
		runID := d.runID
		d.mu.Unlock()
		build, _ := p["build"].(string)
		variant, _ := p["variant"].(string)
		_ = d.store.SetBuild(runID, build, variant)
	})

	return nil
}

func timeOf(p signalbus.Payload) time.Time {
	if t, ok := p["time"].(time.Time); ok {
		return t
	}
	return time.Now()
}

func dispositionLabel(signal string) string {
	switch signal {
	case signalbus.SigTestPassed:
		return "Passed"
	case signalbus.SigTestFailure:
		return "Failed"
	case signalbus.SigTestExpectedFailure:
		return "ExpectedFail"
	case signalbus.SigTestIncomplete:
		return "Incomplete"
	default:
		return "Incomplete"
	}
}

func (d *Database) insertNode(sender interface{}, kind, name string, start time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, err := d.store.InsertNode(d.runID, kind, name, start)
	if err == nil {
		d.nodeOf[sender] = id
	}
}

// recordTerminal stashes a node's terminal disposition until both the
// disposition and the end time have been observed, whichever arrives
// first (test dispositions precede test-end; a suite's summary follows
// suite-end).
func (d *Database) recordTerminal(sender interface{}, disposition string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.terminal[sender] = disposition
}

func (d *Database) finishNode(sender interface{}, end time.Time) {
	d.mu.Lock()
	id, ok := d.nodeOf[sender]
	diag := d.diagnostics[sender]
	args := d.args[sender]
	version := d.version[sender]
	data := d.data[sender]
	disp := d.terminal[sender]
	delete(d.terminal, sender)
	delete(d.ended, sender)
	d.mu.Unlock()
	if !ok {
		return
	}

	_ = d.store.UpdateNode(id, disp, end, diag, args, version, data)
}

// named is implemented by senders that can describe themselves by name
// (test entries); senders that don't, but expose a Name field (suites),
// fall back to reflection; everything else is rendered by type name.
type named interface {
	Name() string
}

func (d *Database) suiteName(sender interface{}) string { return nameOf(sender) }

func (d *Database) testName(sender interface{}) string { return nameOf(sender) }

func nameOf(sender interface{}) string {
	if n, ok := sender.(named); ok {
		return n.Name()
	}
	v := reflect.ValueOf(sender)
	for v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() == reflect.Struct {
		if f := v.FieldByName("Name"); f.IsValid() && f.Kind() == reflect.String {
			return f.String()
		}
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", sender), "*")
}

// Finalize disconnects every receiver Init connected.
func (d *Database) Finalize() error {
	for i := len(d.handles) - 1; i >= 0; i-- {
		d.bus.Disconnect(d.handles[i])
	}
	d.handles = nil
	return nil
}
