// Package fault defines the error kinds surfaced by synthesis calls.
//
// Every error produced by the core wraps exactly one of the sentinel kinds so
// callers can branch with errors.Is:
//
//	if errors.Is(err, fault.ErrInput) { /* reject request */ }
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrInput marks bad or missing caller input. Never retried.
	ErrInput = errors.New("input error")
	// ErrCapability marks a failed call into an external model capability.
	ErrCapability = errors.New("capability error")
	// ErrConsistency marks a violated internal invariant, such as a phoneme
	// count that does not match the feature width.
	ErrConsistency = errors.New("consistency error")
)

// Error carries the kind, the failing operation and an optional cause.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Input returns an ErrInput-kind error.
func Input(op, format string, args ...any) error {
	return &Error{Kind: ErrInput, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Consistency returns an ErrConsistency-kind error.
func Consistency(op, format string, args ...any) error {
	return &Error{Kind: ErrConsistency, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Capability wraps err as an ErrCapability-kind error. A nil err yields nil.
// Errors that already carry a kind are returned unchanged.
func Capability(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: ErrCapability, Op: op, Msg: "call failed", Err: err}
}

// KindOf returns the sentinel kind of err, or nil when err carries none.
func KindOf(err error) error {
	for _, k := range []error{ErrInput, ErrCapability, ErrConsistency} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
