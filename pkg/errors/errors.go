package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Prefix is prepended to every SnowballError message.
const Prefix = "[Snowball]"

// Common sentinel errors for quick checks
var (
	// ErrMissingChain is returned when the orchestrator has no current chain entry.
	ErrMissingChain = errors.New("chain not initialized")

	// ErrMissingSmartWallet is returned when no smart-wallet factory was configured.
	ErrMissingSmartWallet = errors.New("no smart wallet factory provided")

	// ErrUnknownAuth is returned when an auth provider name is not configured.
	ErrUnknownAuth = errors.New("unknown auth provider")

	// ErrNoSession is returned when a session-only call is attempted without a session.
	ErrNoSession = errors.New("no session")
)

// Error is the base interface for typed errors in the SDK.
type Error interface {
	error
	// Code returns the taxonomy code
	Code() string
	// Message returns the human-readable message
	Message() string
	// Unwrap returns the underlying cause
	Unwrap() error
}

var _ Error = (*SnowballError)(nil)

// SnowballError carries a dotted name chain ("outer.inner") identifying where
// a failure happened, a message chain, and the original cause.
type SnowballError struct {
	Name    string
	message string
	code    string
	cause   error
	stack   []uintptr
}

// Error implements the error interface.
func (e *SnowballError) Error() string {
	return e.message
}

// Code returns the taxonomy code. Errors without one are CodeUnexpected.
func (e *SnowballError) Code() string {
	if e.code == "" {
		return CodeUnexpected
	}
	return e.code
}

// Message returns the message without the [Snowball] prefix.
func (e *SnowballError) Message() string {
	return strings.TrimPrefix(strings.TrimPrefix(e.message, Prefix), " ")
}

// Unwrap returns the underlying cause.
func (e *SnowballError) Unwrap() error {
	return e.cause
}

// Stack returns the captured stack trace.
func (e *SnowballError) Stack() []uintptr {
	return e.stack
}

// WithCode sets the taxonomy code.
func (e *SnowballError) WithCode(code string) *SnowballError {
	e.code = code
	return e
}

// captureStack captures the current stack trace.
func captureStack(skip int) []uintptr {
	const maxDepth = 32
	stack := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, stack)
	return stack[:n]
}

// StackTrace returns a formatted stack trace string.
func (e *SnowballError) StackTrace() string {
	if len(e.stack) == 0 {
		return ""
	}

	var buf strings.Builder
	frames := runtime.CallersFrames(e.stack)
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			fmt.Fprintf(&buf, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return buf.String()
}

func prefixed(message string) string {
	if strings.HasPrefix(message, "[") {
		return Prefix + message
	}
	return Prefix + " " + message
}

// New creates a SnowballError with no cause.
func New(name, message string) *SnowballError {
	return &SnowballError{
		Name:    name,
		message: prefixed(message),
		stack:   captureStack(1),
	}
}

// Newf creates a SnowballError with a formatted message.
func Newf(name, format string, args ...interface{}) *SnowballError {
	e := New(name, fmt.Sprintf(format, args...))
	e.stack = captureStack(1)
	return e
}

// Make wraps cause with a name and message.
//
// When cause is already a *SnowballError it is extended in place: the outer
// name is prepended to the name chain and the outer message is prepended to
// the message chain, so nested wrapping reads outer-to-inner in both.
// A string cause becomes a plain error.
func Make(name, message string, cause interface{}) *SnowballError {
	if se, ok := cause.(*SnowballError); ok && se != nil {
		se.Name = name + "." + se.Name
		se.message = prefixed(message) + ": " + strings.TrimPrefix(strings.TrimPrefix(se.message, Prefix), " ")
		return se
	}

	var causeErr error
	switch c := cause.(type) {
	case nil:
	case error:
		causeErr = c
	case string:
		causeErr = errors.New(c)
	default:
		causeErr = fmt.Errorf("%v", c)
	}

	return &SnowballError{
		Name:    name,
		message: prefixed(message),
		cause:   causeErr,
		stack:   captureStack(1),
	}
}

// Builder returns a constructor for errors identified by (scope, index).
// Each call produces Make("<name>.<index>", message, cause).
func Builder(name, message string) func(index int, cause interface{}) *SnowballError {
	return func(index int, cause interface{}) *SnowballError {
		return Make(fmt.Sprintf("%s.%d", name, index), message, cause)
	}
}

// Wrap wraps a non-nil error with additional context, preserving the
// SnowballError name chain when present.
func Wrap(err error, name, message string) error {
	if err == nil {
		return nil
	}
	return Make(name, message, err)
}

// Chain renders the cause chain of err, separated by "::caused by::".
// The walk stops after 100 links.
func Chain(err error) string {
	var parts []string
	for i := 0; err != nil && i < 100; i++ {
		parts = append(parts, err.Error())
		err = errors.Unwrap(err)
	}
	return strings.Join(parts, " ::caused by:: ")
}
