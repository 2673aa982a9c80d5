package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"devtester/internal/signalbus"
)

type sender struct{ name string }

func (s sender) Name() string { return s.name }

func TestNullObservesEveryCatalogSignalAndDoesNothing(t *testing.T) {
	bus := signalbus.New(nil)
	n := NewNull()
	if err := n.Init(bus); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, name := range allSignals {
		if bus.SubscriberCount(name) != 1 {
			t.Errorf("signal %q: want 1 subscriber, got %d", name, bus.SubscriberCount(name))
		}
	}
	bus.Send(signalbus.SigTestPassed, sender{"t"}, signalbus.Payload{"message": "ok"})

	if err := n.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	for _, name := range allSignals {
		if bus.SubscriberCount(name) != 0 {
			t.Errorf("signal %q: want 0 subscribers after Finalize, got %d", name, bus.SubscriberCount(name))
		}
	}
}

func TestDefaultPrintsPassFailAndRespectsPlainWriter(t *testing.T) {
	bus := signalbus.New(nil)
	var buf bytes.Buffer
	d := NewDefault(&buf)
	if err := d.Init(bus); err != nil {
		t.Fatalf("Init: %v", err)
	}

	bus.Send(signalbus.SigTestStart, sender{"MyTest"}, signalbus.Payload{"time": time.Now()})
	bus.Send(signalbus.SigTestPassed, sender{"MyTest"}, signalbus.Payload{"message": "ok"})
	bus.Send(signalbus.SigTestEnd, sender{"MyTest"}, signalbus.Payload{"time": time.Now()})
	d.Finalize()

	out := buf.String()
	if !strings.Contains(out, "MyTest") || !strings.Contains(out, "PASSED") || !strings.Contains(out, "ok") {
		t.Errorf("output missing expected content: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("non-terminal writer should not be colorized: %q", out)
	}
}

func TestStackedDeliversToEachInConnectionOrder(t *testing.T) {
	bus := signalbus.New(nil)
	var order []string
	r1 := fakeReport{name: "r1", order: &order}
	r2 := fakeReport{name: "r2", order: &order}
	s := NewStacked(r1, r2)

	if err := s.Init(bus); err != nil {
		t.Fatalf("Init: %v", err)
	}
	bus.Send(signalbus.SigTestPassed, sender{"t"}, signalbus.Payload{"message": "ok"})

	if len(order) != 2 || order[0] != "r1" || order[1] != "r2" {
		t.Errorf("delivery order = %v, want [r1 r2]", order)
	}

	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(order) != 4 {
		t.Errorf("expected both sub-reports finalized, got order=%v", order)
	}
}

type fakeReport struct {
	name string
	order *[]string
}

func (f fakeReport) Init(bus *signalbus.Bus) error {
	bus.Connect(signalbus.SigTestPassed, nil, false, func(interface{}, signalbus.Payload) interface{} {
		*f.order = append(*f.order, f.name)
		return nil
	})
	return nil
}

func (f fakeReport) Finalize() error {
	*f.order = append(*f.order, f.name+":finalized")
	return nil
}

type fakeStore struct {
	runs []string
	nodes []string
	updated []string
	diags [][]string
}

func (s *fakeStore) InsertRun(testbed string, start time.Time) (int64, error) {
	s.runs = append(s.runs, testbed)
	return int64(len(s.runs)), nil
}

func (s *fakeStore) InsertNode(parentID int64, kind, name string, start time.Time) (int64, error) {
	s.nodes = append(s.nodes, kind+":"+name)
	return int64(len(s.nodes)), nil
}

func (s *fakeStore) UpdateNode(id int64, disposition string, end time.Time, diagnostics []string, arguments, version string, data []interface{}) error {
	s.updated = append(s.updated, disposition)
	s.diags = append(s.diags, diagnostics)
	return nil
}

func (s *fakeStore) SetBuild(runID int64, build, variant string) error { return nil }

func TestDatabaseWritesOneRowPerNodeWithDiagnosticsJoined(t *testing.T) {
	bus := signalbus.New(nil)
	store := &fakeStore{}
	d := NewDatabase(store)
	if err := d.Init(bus); err != nil {
		t.Fatalf("Init: %v", err)
	}

	bus.Send(signalbus.SigReportTestbed, sender{"runner"}, signalbus.Payload{"testbed": "lab1"})
	s := sender{"MySuite"}
	c := sender{"MyTest"}
	bus.Send(signalbus.SigSuiteStart, s, signalbus.Payload{"time": time.Now()})
	bus.Send(signalbus.SigTestStart, c, signalbus.Payload{"time": time.Now()})
	bus.Send(signalbus.SigTestDiagnostic, c, signalbus.Payload{"message": "note one"})
	bus.Send(signalbus.SigTestFailure, c, signalbus.Payload{"message": "nope"})
	bus.Send(signalbus.SigTestEnd, c, signalbus.Payload{"time": time.Now()})
	bus.Send(signalbus.SigSuiteEnd, s, signalbus.Payload{"time": time.Now()})
	bus.Send(signalbus.SigSuiteSummary, s, signalbus.Payload{"result": "Failed"})
	d.Finalize()

	if len(store.runs) != 1 || store.runs[0] != "lab1" {
		t.Errorf("runs = %v", store.runs)
	}
	if len(store.nodes) != 2 {
		t.Fatalf("nodes = %v", store.nodes)
	}
	if len(store.updated) != 2 || store.updated[0] != "Failed" || store.updated[1] != "Failed" {
		t.Errorf("updated = %v", store.updated)
	}
	if got := strings.Join(store.diags[0], "\n"); got != "note one\nnope" {
		t.Errorf("test row diagnostics = %q, want %q", got, "note one\nnope")
	}
}

func TestFindResolvesKnownNamesAndRejectsUnknown(t *testing.T) {
	r, err := Find([]string{"null", "default"}, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if _, ok := r.(*Stacked); !ok {
		t.Errorf("expected a Stacked report for multiple names, got %T", r)
	}

	if _, err := Find([]string{"nonexistent"}, nil); err == nil {
		t.Errorf("expected ReportFindError for an unknown name")
	}
}
