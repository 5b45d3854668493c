// Package rterr provides the structured error taxonomy for the sequencer
// core: setup errors, boot-flag absences, transient and sustained service
// errors, tick misses, and registration errors (see spec §7).
package rterr

import (
	"errors"
	"fmt"
	"syscall"
)

// Code categorizes an Error into one of the taxonomy rows of spec §7.
type Code string

const (
	CodeSetup        Code = "setup"        // affinity/priority/timer/privilege failure, fatal
	CodeBootFlag     Code = "boot-flag"     // missing isolation flag, logged only
	CodeTransient    Code = "transient"     // capture overrun, handshake timeout
	CodeSustained    Code = "sustained"     // consecutive release-miss threshold reached
	CodeTickMiss     Code = "tick-miss"     // sequencer tick watchdog fired
	CodeRegistration Code = "registration"  // non-divisible period at AddService
)

// Error is a structured error carrying enough context to distinguish
// sequencer jitter from service overrun during post-run analysis.
type Error struct {
	Op      string        // operation that failed, e.g. "AddService", "SchedSetaffinity"
	Service string        // service name, empty if not applicable
	Code    Code          // taxonomy category
	Errno   syscall.Errno // kernel errno, 0 if not applicable
	Msg     string        // human-readable message
	Inner   error         // wrapped error
}

func (e *Error) Error() string {
	switch {
	case e.Service != "" && e.Errno != 0:
		return fmt.Sprintf("rtaudio: %s: %s (service=%s errno=%d)", e.Op, e.Msg, e.Service, e.Errno)
	case e.Service != "":
		return fmt.Sprintf("rtaudio: %s: %s (service=%s)", e.Op, e.Msg, e.Service)
	case e.Errno != 0:
		return fmt.Sprintf("rtaudio: %s: %s (errno=%d)", e.Op, e.Msg, e.Errno)
	default:
		return fmt.Sprintf("rtaudio: %s: %s", e.Op, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

// New creates a structured error with no service context.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewErrno wraps a syscall errno encountered during a setup operation.
func NewErrno(op string, code Code, errno syscall.Errno) *Error {
	return &Error{Op: op, Code: code, Errno: errno, Msg: errno.Error()}
}

// NewService creates a service-scoped error (transient or sustained rows).
func NewService(op, service string, code Code, msg string) *Error {
	return &Error{Op: op, Service: service, Code: code, Msg: msg}
}

// Wrap adds operation context to an existing error without discarding the
// original's category when it is already an *Error.
func Wrap(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	var ie *Error
	if errors.As(inner, &ie) {
		return &Error{Op: op, Service: ie.Service, Code: ie.Code, Errno: ie.Errno, Msg: ie.Msg, Inner: ie.Inner}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Code: CodeSetup, Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: CodeSetup, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err carries the given taxonomy category.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
