package errors

// This file defines the error taxonomy: disposition errors that
// TestCase.Run recovers locally, abort errors that unwind an arbitrary
// number of call frames, framework-internal contract violations, and
// configuration/report/controller errors. Each kind embeds *E so a
// caller can still format and unwrap it like any other error, while
// errors.As can recover the concrete kind at the catch site that cares.

// TestFailure is raised by a test's disposition helpers to record a
// failed assertion or explicit self.failed call.
type TestFailure struct{ *E }

// NewTestFailure creates a TestFailure with the given message.
func NewTestFailure(msg string) *TestFailure { return &TestFailure{New(msg)} }

// TestIncomplete is raised when a test cannot determine pass/fail.
type TestIncomplete struct{ *E }

// NewTestIncomplete creates a TestIncomplete with the given message.
func NewTestIncomplete(msg string) *TestIncomplete { return &TestIncomplete{New(msg)} }

// TestExpectedFail is raised when a test with a bug id fails as expected.
type TestExpectedFail struct{ *E }

// NewTestExpectedFail creates a TestExpectedFail with the given message.
func NewTestExpectedFail(msg string) *TestExpectedFail { return &TestExpectedFail{New(msg)} }

// CriticalTestFailed marks a failure severe enough that dependents must
// be skipped even if the suite would otherwise tolerate failures.
type CriticalTestFailed struct{ *E }

// NewCriticalTestFailed creates a CriticalTestFailed with the given message.
func NewCriticalTestFailed(msg string) *CriticalTestFailed { return &CriticalTestFailed{New(msg)} }

// TestSuiteAbort unwinds to the enclosing suite, terminating it without
// running further entries.
type TestSuiteAbort struct{ *E }

// NewTestSuiteAbort wraps cause (which may be nil) as a TestSuiteAbort.
func NewTestSuiteAbort(cause error, msg string) *TestSuiteAbort {
	return &TestSuiteAbort{Wrap(cause, msg)}
}

// TestRunAbort unwinds to the top-level runner, terminating the entire run.
type TestRunAbort struct{ *E }

// NewTestRunAbort wraps cause (which may be nil) as a TestRunAbort.
func NewTestRunAbort(cause error, msg string) *TestRunAbort {
	return &TestRunAbort{Wrap(cause, msg)}
}

// TestRunnerError denotes a framework-internal contract violation that is
// not the test author's fault, e.g. a malfunctioning report sink.
type TestRunnerError struct{ *E }

// NewTestRunnerError creates a TestRunnerError with the given message.
func NewTestRunnerError(msg string) *TestRunnerError { return &TestRunnerError{New(msg)} }

// TestImplementationError denotes a contract violation by test-author code,
// e.g. emitting two terminal dispositions for one test case.
type TestImplementationError struct{ *E }

// NewTestImplementationError creates a TestImplementationError.
func NewTestImplementationError(msg string) *TestImplementationError {
	return &TestImplementationError{New(msg)}
}

// ConfigError is the base for configuration-related failures.
type ConfigError struct{ *E }

// NewConfigError wraps cause (which may be nil) as a ConfigError.
func NewConfigError(cause error, msg string) *ConfigError {
	return &ConfigError{Wrap(cause, msg)}
}

// ConfigNotFoundError is raised when a configuration key is missing.
type ConfigNotFoundError struct{ *E }

// NewConfigNotFoundError creates a ConfigNotFoundError for the given key.
func NewConfigNotFoundError(key string) *ConfigNotFoundError {
	return &ConfigNotFoundError{Errorf("config key %q not found", key)}
}

// ConfigValueError is raised when a configuration value has the wrong type
// or fails validation.
type ConfigValueError struct{ *E }

// NewConfigValueError creates a ConfigValueError for the given key.
func NewConfigValueError(key, msg string) *ConfigValueError {
	return &ConfigValueError{Errorf("config key %q: %s", key, msg)}
}

// ReportFindError is raised at runner init if a requested report name
// cannot be resolved.
type ReportFindError struct{ *E }

// NewReportFindError creates a ReportFindError for the given report name.
func NewReportFindError(name string) *ReportFindError {
	return &ReportFindError{Errorf("report %q not found", name)}
}

// ControllerError wraps a transport-level error from a device controller.
// Tests may recover from it and convert it to a disposition or diagnostic.
type ControllerError struct{ *E }

// NewControllerError wraps cause as a ControllerError.
func NewControllerError(cause error, msg string) *ControllerError {
	return &ControllerError{Wrap(cause, msg)}
}
