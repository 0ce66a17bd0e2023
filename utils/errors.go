package utils

import (
	"errors"
	"fmt"
)

// Error kinds, usable with errors.Is against any *Error.
var (
	ErrConfig    = errors.New("config error")
	ErrNumerical = errors.New("numerical error")
	ErrIO        = errors.New("io error")
	ErrRuntime   = errors.New("runtime error")
	ErrExternal  = errors.New("external error")
)

// Error wraps a failure with the kind and the operation that produced it.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, format string, args ...any) *Error {
	var err error
	if format != "" {
		err = fmt.Errorf(format, args...)
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func NewConfigError(op, format string, args ...any) *Error {
	return newError(ErrConfig, op, format, args...)
}

func NewNumericalError(op, format string, args ...any) *Error {
	return newError(ErrNumerical, op, format, args...)
}

func NewIOError(op, format string, args ...any) *Error {
	return newError(ErrIO, op, format, args...)
}

func NewRuntimeError(op, format string, args ...any) *Error {
	return newError(ErrRuntime, op, format, args...)
}

func NewExternalError(op, format string, args ...any) *Error {
	return newError(ErrExternal, op, format, args...)
}

// Wrap attaches a kind to an existing error, keeping it in the chain.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err, or nil when err carries none.
func KindOf(err error) error {
	for _, k := range []error{ErrConfig, ErrNumerical, ErrIO, ErrRuntime, ErrExternal} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Assert panics with a RuntimeError when cond is false.
func Assert(cond bool, op, format string, args ...any) {
	if !cond {
		panic(NewRuntimeError(op, format, args...))
	}
}
