// Package state holds the reactive container behind every auth state machine.
package state

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	sberrors "github.com/DeBrosOfficial/snowball/pkg/errors"
	"github.com/DeBrosOfficial/snowball/pkg/logging"
	"github.com/DeBrosOfficial/snowball/pkg/result"
)

// CodeSetError is the failure code used when SetError wraps a plain error.
const CodeSetError = "e-Auth.setError"

// Loading describes the step currently in flight.
type Loading struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Snapshot is one observable value of a container: the state variant plus
// the loading and error attributes every variant carries.
type Snapshot[S any] struct {
	State   S
	Loading *Loading
	Error   *result.Failure
}

// IsLoading reports whether a step is in flight.
func (s Snapshot[S]) IsLoading() bool {
	return s.Loading != nil
}

// Container holds a Snapshot and notifies a single subscriber on every change.
// There is no diffing: every setter call notifies, even when nothing changed.
type Container[S any] struct {
	mu       sync.RWMutex
	snap     Snapshot[S]
	onChange func(Snapshot[S])
	logger   *logging.ColoredLogger
}

// New creates a container holding initial.
func New[S any](initial S, logger *zap.Logger) *Container[S] {
	return &Container[S]{snap: Snapshot[S]{State: initial}, logger: logging.Wrap(logger)}
}

// OnChange registers the subscriber, replacing any previous one.
func (c *Container[S]) OnChange(fn func(Snapshot[S])) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Get returns the current snapshot.
func (c *Container[S]) Get() Snapshot[S] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// State returns the current variant.
func (c *Container[S]) State() S {
	return c.Get().State
}

// Load replaces the whole snapshot without notifying. Used when an instance
// takes over the state of its predecessor.
func (c *Container[S]) Load(snap Snapshot[S]) {
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
}

// update applies fn under the lock and notifies outside it, so subscribers
// may read the container.
func (c *Container[S]) update(fn func(*Snapshot[S])) {
	c.mu.Lock()
	fn(&c.snap)
	snap := c.snap
	cb := c.onChange
	c.mu.Unlock()

	if cb != nil {
		cb(snap)
	}
}

// Set replaces the variant. Loading and error are cleared.
func (c *Container[S]) Set(s S) {
	c.update(func(snap *Snapshot[S]) {
		*snap = Snapshot[S]{State: s}
	})
}

// SetKeepLoading replaces the variant but keeps the in-flight loading step,
// for transitions that continue into another step.
func (c *Container[S]) SetKeepLoading(s S) {
	c.update(func(snap *Snapshot[S]) {
		snap.State = s
		snap.Error = nil
	})
}

// SetLoading marks a step as in flight, keeping the variant and any error.
func (c *Container[S]) SetLoading(code, message string) {
	c.logger.ComponentDebug(logging.ComponentState, message, zap.String("code", code))
	c.update(func(snap *Snapshot[S]) {
		snap.Loading = &Loading{Code: code, Message: message}
	})
}

// ClearLoading removes the loading attribute.
func (c *Container[S]) ClearLoading() {
	c.update(func(snap *Snapshot[S]) {
		snap.Loading = nil
	})
}

// SetErr records f as the current error, clears loading and returns f.
func (c *Container[S]) SetErr(f *result.Failure) *result.Failure {
	if f == nil {
		f = result.NewFailure(sberrors.ReasonUnexpected, "state-nil-failure", result.WithStatus(500))
	}
	c.logger.ComponentWarn(logging.ComponentState, "transition failed",
		zap.String("reason", f.Reason),
		zap.String("code", f.Code),
		zap.Int("status", f.StatusCode))
	c.update(func(snap *Snapshot[S]) {
		snap.Error = f
		snap.Loading = nil
	})
	return f
}

// SetError wraps cause as a failure and records it. A cause that already is
// a *result.Failure is recorded as is; a SnowballError contributes its name
// as the reason. The recorded failure is returned for the caller to propagate.
func (c *Container[S]) SetError(cause error) *result.Failure {
	var f *result.Failure
	if errors.As(cause, &f) {
		return c.SetErr(f)
	}

	reason := sberrors.ReasonUnexpected
	var se *sberrors.SnowballError
	if errors.As(cause, &se) {
		reason = se.Name
		c.logger.ComponentDebug(logging.ComponentState, "wrapped error chain", zap.String("chain", sberrors.Chain(cause)))
	}
	return c.SetErr(result.NewFailure(reason, CodeSetError, result.WithCause(cause)))
}

// ClearError removes the error attribute.
func (c *Container[S]) ClearError() {
	c.update(func(snap *Snapshot[S]) {
		snap.Error = nil
	})
}
