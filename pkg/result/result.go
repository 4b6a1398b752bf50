// Package result provides the tagged Ok/Err value returned by every fallible
// SDK operation. Expected failures travel as values; only programming errors panic.
package result

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// DefaultStatus is the status code given to failures created without one.
const DefaultStatus = 400

// Failure is the Err half of a Result. It implements error so a failed
// transition can be returned directly to callers.
type Failure struct {
	Reason     string         `json:"reason"`
	Code       string         `json:"code"`
	StatusCode int            `json:"statusCode"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("ErrResult (%d/%s: %s)", f.StatusCode, f.Code, f.Reason)
}

// Unwrap exposes meta.cause when it is an error.
func (f *Failure) Unwrap() error {
	if f == nil || f.Meta == nil {
		return nil
	}
	if cause, ok := f.Meta["cause"].(error); ok {
		return cause
	}
	return nil
}

// Cause returns meta.cause, whatever its type.
func (f *Failure) Cause() any {
	if f == nil || f.Meta == nil {
		return nil
	}
	return f.Meta["cause"]
}

// Result holds exactly one of a value or a failure.
type Result[T any] struct {
	value   T
	failure *Failure
}

// ErrOption customizes a failure built by Err or NewFailure.
type ErrOption func(*Failure)

// WithStatus overrides the default status code.
func WithStatus(status int) ErrOption {
	return func(f *Failure) {
		if status != 0 {
			f.StatusCode = status
		}
	}
}

// WithMeta merges the given entries into the failure meta.
func WithMeta(meta map[string]any) ErrOption {
	return func(f *Failure) {
		for k, v := range meta {
			f.Meta[k] = v
		}
	}
}

// WithCause records cause under meta.cause.
func WithCause(cause any) ErrOption {
	return func(f *Failure) {
		f.Meta["cause"] = cause
	}
}

// NewFailure builds a failure. Status defaults to DefaultStatus.
func NewFailure(reason, code string, opts ...ErrOption) *Failure {
	f := &Failure{
		Reason:     reason,
		Code:       code,
		StatusCode: DefaultStatus,
		Meta:       map[string]any{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Ok wraps a successful value.
func Ok[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Err builds a failed result.
func Err[T any](reason, code string, opts ...ErrOption) Result[T] {
	return Result[T]{failure: NewFailure(reason, code, opts...)}
}

// Fail re-types an existing failure. A nil failure is turned into an
// "unexpected" one so the Err variant is never empty.
func Fail[T any](f *Failure) Result[T] {
	if f == nil {
		f = NewFailure("unexpected", "result-nil-failure", WithStatus(500))
	}
	return Result[T]{failure: f}
}

// IsOk reports whether the result holds a value.
func (r Result[T]) IsOk() bool {
	return r.failure == nil
}

// Value returns the value, or the zero value for failures.
func (r Result[T]) Value() T {
	return r.value
}

// Failure returns the failure, or nil for successful results.
func (r Result[T]) Failure() *Failure {
	return r.failure
}

// Unwrap returns the value or an *UnwrapError.
func (r Result[T]) Unwrap() (T, error) {
	if r.failure != nil {
		var zero T
		return zero, &UnwrapError{Failure: r.failure}
	}
	return r.value, nil
}

// MustUnwrap returns the value and panics with *UnwrapError on failure.
func (r Result[T]) MustUnwrap() T {
	v, err := r.Unwrap()
	if err != nil {
		panic(err)
	}
	return v
}

// UnwrapMaybe returns the value and whether it is present.
func (r Result[T]) UnwrapMaybe() (T, bool) {
	return r.value, r.failure == nil
}

// Map transforms a successful value, passing failures through.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	if r.failure != nil {
		return Result[U]{failure: r.failure}
	}
	return Ok(fn(r.value))
}

// UnwrapError is returned when unwrapping a failed result.
type UnwrapError struct {
	Failure *Failure
}

func (e *UnwrapError) Error() string {
	return e.Failure.Error()
}

func (e *UnwrapError) Unwrap() error {
	return e.Failure
}

// Catch adapts an operation that reports failure through an error (or a
// panic) into a Result. The cause is logged once and kept in meta.cause.
func Catch[T any](reason, code string, fn func() (T, error)) (res Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			cause, ok := p.(error)
			if !ok {
				cause = fmt.Errorf("%v", p)
			}
			zap.L().Error("caught panic", zap.String("reason", reason), zap.String("code", code), zap.Error(cause))
			res = Err[T](reason, code, WithCause(cause))
		}
	}()

	v, err := fn()
	if err != nil {
		zap.L().Error("caught error", zap.String("reason", reason), zap.String("code", code), zap.Error(err))
		return Err[T](reason, code, WithCause(err))
	}
	return Ok(v)
}

// AsFailure extracts a *Failure from an error chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
