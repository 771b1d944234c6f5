package proxy

import (
	"errors"
	"fmt"
)

// ErrTimeout is wrapped by dispatch errors when the route timeout elapsed.
var ErrTimeout = errors.New("upstream request timed out")

// Kind classifies pipeline failures.
type Kind string

const (
	KindFilter     Kind = "filter"
	KindResolution Kind = "resolution"
	KindAssembly   Kind = "assembly"
	KindDispatch   Kind = "dispatch"
	KindDecoration Kind = "decoration"
	KindDelivery   Kind = "delivery"
)

// Error is returned for every pipeline failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("proxy %s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a dispatch timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// KindOf returns the Kind of a pipeline error, or "" for foreign errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
