// Package errors provides the error taxonomy used throughout devtester.
//
// To construct new errors or wrap other errors, use this package rather
// than the standard library's errors/fmt.Errorf. This package records
// stack traces and chained causes, and leaves nicely formatted diagnostics
// when tests fail.
//
// Simple usage:
//
//	errors.New("equipment row not found")
//	errors.Errorf("equipment row %q not found", name)
//
// Adding context to an existing error:
//
//	errors.Wrap(err, "failed to resolve DUT role")
//	errors.Wrapf(err, "failed to resolve role %q", role)
//
// A stack trace can be printed with the "%+v" verb.
package errors

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"devtester/internal/errors/stack"
)

// E is the error implementation used by this package.
type E struct {
	msg   string
	stk   stack.Stack
	cause error
}

// Error implements the error interface.
func (e *E) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.msg, e.cause.Error())
}

// Unwrap implements the implicit error-chain interface from go1.13.
func (e *E) Unwrap() error {
	return e.cause
}

type unwrapper interface {
	unwrap() (msg string, stk stack.Stack, cause error)
}

func (e *E) unwrap() (msg string, stk stack.Stack, cause error) {
	return e.msg, e.stk, e.cause
}

func formatChain(err error) string {
	var chain []string
	for err != nil {
		if e, ok := err.(unwrapper); ok {
			msg, stk, cause := e.unwrap()
			chain = append(chain, fmt.Sprintf("%s\n%v", msg, stk))
			err = cause
		} else {
			chain = append(chain, fmt.Sprintf("%s\n\tat ???", err.Error()))
			err = nil
		}
	}
	return strings.Join(chain, "\n")
}

// Format implements fmt.Formatter; "%+v" prints the full error chain.
func (e *E) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		io.WriteString(s, formatChain(e))
	} else {
		io.WriteString(s, e.Error())
	}
}

// New creates a new error with the given message, recording the call site.
func New(msg string) *E {
	return &E{msg, stack.New(1), nil}
}

// Errorf creates a new formatted error, recording the call site.
func Errorf(format string, args ...interface{}) *E {
	return &E{fmt.Sprintf(format, args...), stack.New(1), nil}
}

// Wrap creates a new error with the given message, wrapping cause.
// If cause is nil, this is equivalent to New.
func Wrap(cause error, msg string) *E {
	return &E{msg, stack.New(1), cause}
}

// Wrapf creates a new formatted error, wrapping cause.
func Wrapf(cause error, format string, args ...interface{}) *E {
	return &E{fmt.Sprintf(format, args...), stack.New(1), cause}
}

// Unwrap wraps the standard library's errors.Unwrap.
func Unwrap(err error) error { return errors.Unwrap(err) }

// As wraps the standard library's errors.As.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is wraps the standard library's errors.Is.
func Is(err, target error) bool { return errors.Is(err, target) }
