package report

import "devtester/internal/signalbus"

// allSignals is every name in the catalog a report needs to connect to in
// order to observe a complete run; Null connects to all of them without
// the boilerplate of one receiver per name.
var allSignals = []string{
	signalbus.SigTestStart, signalbus.SigTestVersion, signalbus.SigTestArguments,
	signalbus.SigTestPassed, signalbus.SigTestFailure, signalbus.SigTestExpectedFailure,
	signalbus.SigTestIncomplete, signalbus.SigTestAbort, signalbus.SigTestInfo,
	signalbus.SigTestWarning, signalbus.SigTestDiagnostic, signalbus.SigTestData,
	signalbus.SigTestEnd,
	signalbus.SigSuiteStart, signalbus.SigSuiteEnd, signalbus.SigSuiteSummary, signalbus.SigSuiteInfo,
	signalbus.SigRunStart, signalbus.SigRunEnd, signalbus.SigRunError,
	signalbus.SigReportTestbed, signalbus.SigReportComment, signalbus.SigReportFinal,
	signalbus.SigLogdirLocation,
	signalbus.SigTargetBuild, signalbus.SigDeviceChange,
	signalbus.SigServiceWant, signalbus.SigServiceDontwant, signalbus.SigServiceProvide,
	signalbus.SigDataConvert,
}

// Null is the report sink that observes every signal and does nothing
// with any of them; useful for dry runs and for tests that want a run to
// proceed without a report's side effects.
type Null struct {
	bus *signalbus.Bus
	handles []signalbus.Handle
}

// NewNull creates a Null report.
func NewNull() *Null { return &Null{} }
// Init connects a no-op receiver to every cataloged signal.
func (n *Null) Init(bus *signalbus.Bus) error {
	n.bus = bus
	noop := func(interface{}, signalbus.Payload) interface{} { return nil }
	for _, name := range allSignals {
		n.handles = append(n.handles, bus.Connect(name, nil, false, noop))
	}
	return nil
}

// Finalize disconnects every receiver Init connected.
func (n *Null) Finalize() error {
	for i := len(n.handles) - 1; i >= 0; i-- {
		n.bus.Disconnect(n.handles[i])
	}
	n.handles = nil
	return nil
}
