// Package xcontext provides context.Context values that can be canceled
// with an arbitrary error rather than only context.Canceled /
// context.DeadlineExceeded.
//
// This backs two mechanisms: the grace period granted to a coprocess
// worker after it is sent SIGINT, and the TestOptions.Timeout deadline
// testcase.Run places on a test's initialize/procedure/finalize stages.
// Both need to distinguish "interrupted" from "timed
// out" from "parent canceled" in the error they observe, which a plain
// context.WithTimeout cannot express.
package xcontext

import (
	"context"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
)

// clk backs all deadline computation; tests substitute a fake clock so
// grace-period expiry is deterministic.
var clk clock.Clock = clock.NewClock()

// CancelFunc cancels the associated context with a specific error. Calling
// it on an already-canceled context has no effect. It panics if err is
// nil. By the time it returns, Done is closed and Err is non-nil.
type CancelFunc func(err error)

type errContext struct {
	parent context.Context
	hasDeadline bool
	deadline time.Time
	done chan struct{}
	req chan error // capacity 1
	errValue atomic.Value
}

func newErrContext(parent context.Context, deadlineErr error, reqDeadline time.Time) (context.Context, CancelFunc) {
	applyDeadline := false
	deadline, hasDeadline := parent.Deadline()
	if deadlineErr != nil && (!hasDeadline || reqDeadline.Before(deadline)) {
		deadline = reqDeadline
		hasDeadline = true
		applyDeadline = true
	}

	c := &errContext{
		parent: parent,
		hasDeadline: hasDeadline,
		deadline: deadline,
		done: make(chan struct{}),
		req: make(chan error, 1),
	}

	if err := func() error {
		if err := parent.Err(); err != nil {
			return err
		}
		if applyDeadline && !deadline.After(clk.Now()) {
			return deadlineErr
		}
		return nil
	}(); err != nil {
		c.errValue.Store(err)
		close(c.done)
		return c, c.cancel
	}

	go func() {
		err := func() error {
			var expired <-chan time.Time
			if applyDeadline {
				tm := clk.NewTimer(deadline.Sub(clk.Now()))
				defer tm.Stop()
				expired = tm.C()
			}
			select {
			case <-parent.Done():
				return parent.Err()
			case <-expired:
				return deadlineErr
			case err := <-c.req:
				return err
			}
		}()
		c.errValue.Store(err)
		close(c.done)
	}()

	return c, c.cancel
}

func (c *errContext) Deadline() (time.Time, bool) { return c.deadline, c.hasDeadline }
func (c *errContext) Done() <-chan struct{} { return c.done }

func (c *errContext) Err() error {
	if v := c.errValue.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (c *errContext) Value(key interface{}) interface{} { return c.parent.Value(key) }

func (c *errContext) cancel(err error) {
	if err == nil {
		panic("xcontext: cancel called with nil error")
	}
	select {
	case c.req <- err:
	default:
	}
	<-c.done
}

// WithCancel returns a context cancelable with an arbitrary error.
func WithCancel(parent context.Context) (context.Context, CancelFunc) {
	return newErrContext(parent, nil, time.Time{})
}

// WithDeadline returns a context that is canceled with err once t is
// reached (or sooner, if parent is itself canceled first).
func WithDeadline(parent context.Context, t time.Time, err error) (context.Context, CancelFunc) {
	if err == nil {
		panic("xcontext: WithDeadline called with nil err")
	}
	return newErrContext(parent, err, t)
}

// WithTimeout returns a context that is canceled with err after d elapses.
func WithTimeout(parent context.Context, d time.Duration, err error) (context.Context, CancelFunc) {
	if err == nil {
		panic("xcontext: WithTimeout called with nil err")
	}
	return WithDeadline(parent, clk.Now().Add(d), err)
}

// ErrGracePeriodExpired is the error observed by a coprocess worker's
// context once its post-interrupt grace period elapses without it having
// returned a final result.
var ErrGracePeriodExpired = context.DeadlineExceeded

// WithGracePeriod returns a derived context that is canceled with
// ErrGracePeriodExpired if grace elapses before the caller invokes the
// returned CancelFunc itself (normal completion). This is the shape used
// by the coprocess manager after sending SIGINT: the worker is expected to
// wind down and return within grace; if it doesn't, the manager treats it
// as abandoned.
func WithGracePeriod(parent context.Context, grace time.Duration) (context.Context, CancelFunc) {
	return WithTimeout(parent, grace, ErrGracePeriodExpired)
}
