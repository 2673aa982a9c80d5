package signalbus

import "time"

// timeNow stamps the bus's diagnostic log entries; a test can substitute
// it so that those timestamps are deterministic.
var timeNow = time.Now

// The signal catalog: every name the framework is contractually
// required to emit, with the field(s) each payload carries. Implementers of
// new report sinks or services should connect only to names in this file;
// any other string is not part of the public contract.
const (
	// Test case signals.
	SigTestStart = "test-start" // time
	SigTestVersion = "test-version" // version
	SigTestArguments = "test-arguments" // arguments
	SigTestPassed = "test-passed" // message
	SigTestFailure = "test-failure" // message
	SigTestExpectedFailure = "test-expected-failure" // message
	SigTestIncomplete = "test-incomplete" // message
	SigTestAbort = "test-abort" // message
	SigTestInfo = "test-info" // message
	SigTestWarning = "test-warning" // message
	SigTestDiagnostic = "test-diagnostic" // message
	SigTestData = "test-data" // data
	SigTestEnd = "test-end" // time

	// Suite signals.
	SigSuiteStart = "suite-start" // time
	SigSuiteEnd = "suite-end" // time
	SigSuiteSummary = "suite-summary" // result
	SigSuiteInfo = "suite-info" // message

	// Runner signals.
	SigRunStart = "run-start" // time
	SigRunEnd = "run-end" // time
	SigRunError = "run-error" // exception
	SigReportTestbed = "report-testbed" // testbed
	SigReportComment = "report-comment" // message
	SigReportFinal = "report-final" // (no fields)
	SigLogdirLocation = "logdir-location" // path

	// Device/testbed signals.
	SigTargetBuild = "target-build" // build, variant
	SigDeviceChange = "device-change" // state

	// Service manager signals.
	SigServiceWant = "service-want" // service,...
	SigServiceDontwant = "service-dontwant" // service,...
	SigServiceProvide = "service-provide" // provider, name

	// Report/analyzer signals.
	SigDataConvert = "data-convert" // data, config
)
