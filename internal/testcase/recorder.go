package testcase

import (
	"sync"

	"devtester/internal/disposition"
	"devtester/internal/errors"
)

// recorder enforces the lifecycle invariant "exactly one terminal
// disposition per test case lifetime". A second call to Set panics
// with a *errors.TestImplementationError, which Run's outer recover
// treats like any other unexpected exception: it is recorded as
// Incomplete with a diagnostic describing the violation.
type recorder struct {
	mu  sync.Mutex
	set bool
	d   disposition.Disposition
	msg string
}

func (r *recorder) Set(d disposition.Disposition, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set {
		panic(errors.NewTestImplementationError("terminal disposition already recorded for this invocation"))
	}
	r.set = true
	r.d = d
	r.msg = msg
}

// ForceSet overwrites any previously recorded disposition unconditionally.
// It exists for exactly one caller: the generic panic handler in Run,
// which must report Incomplete for an unhandled exception even if the
// test had already recorded Passed before the exception occurred.
func (r *recorder) ForceSet(d disposition.Disposition, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set = true
	r.d = d
	r.msg = msg
}

func (r *recorder) HasDisposition() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set
}

func (r *recorder) Disposition() (disposition.Disposition, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.d, r.msg
}
