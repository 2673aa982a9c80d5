// Package report implements the report sinks: signal-bus
// subscribers that render or persist the events every other subsystem
// emits. Reports are composable (stacked): each sub-report connects to
// every signal independently and is finalized independently. A report is
// a bus subscriber rather than a fixed method set, so new signals never
// require a new Report method.
package report

import (
	"devtester/internal/errors"
	"devtester/internal/signalbus"

	"golang.org/x/sync/errgroup"
)

// Report is a composable sink connected to a Bus for the duration of one
// run. Init connects it (usually with Bus.Connect for every signal it
// cares about); Finalize disconnects and flushes it.
type Report interface {
	// Init connects this report's receivers to bus. Called once, before
	// run-start is sent.
	Init(bus *signalbus.Bus) error
	// Finalize disconnects this report and flushes any buffered state.
	// Called once, after run-end is sent (report-final, ordering
	// guarantee "run-end after every other event except report-final").
	Finalize() error
}

// Find resolves a comma-separated reportname config value into a
// single, possibly-stacked Report. Only "null" and "default" are built
// in; every other name, including "database" and "jupyter" (which need an
// injected Store or Widget), is looked up in registry, and a
// ReportFindError is returned if it isn't registered there.
func Find(names []string, registry map[string]func() (Report, error)) (Report, error) {
	if len(names) == 0 {
		names = []string{"default"}
	}
	reports := make([]Report, 0, len(names))
	for _, name := range names {
		r, err := findOne(name, registry)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	if len(reports) == 1 {
		return reports[0], nil
	}
	return NewStacked(reports...), nil
}

func findOne(name string, registry map[string]func() (Report, error)) (Report, error) {
	switch name {
	case "null":
		return NewNull(), nil
	case "default":
		return NewDefault(nil), nil
	}
	if registry != nil {
		if f, ok := registry[name]; ok {
			return f()
		}
	}
	return nil, errors.NewReportFindError(name)
}

// Stacked composes N reports: every event emitted in the run is observed
// by each sub-report, in the order they were supplied, and Finalize
// finalizes each independently, collecting (not short-circuiting on) the
// first error.
type Stacked struct {
	reports []Report
}

// NewStacked composes reports into one Report.
func NewStacked(reports...Report) *Stacked {
	return &Stacked{reports: reports}
}

// Init initializes every sub-report in order.
func (s *Stacked) Init(bus *signalbus.Bus) error {
	for _, r := range s.reports {
		if err := r.Init(bus); err != nil {
			return err
		}
	}
	return nil
}

// Finalize finalizes every sub-report concurrently (flushing a database
// or jupyter sink is independent I/O per sink), continuing past
// individual failures so one broken sink does not prevent the others
// from flushing.
func (s *Stacked) Finalize() error {
	var g errgroup.Group
	for _, r := range s.reports {
		r := r
		g.Go(r.Finalize)
	}
	return g.Wait()
}
