// Package retry re-runs a failing call a bounded number of times. Nothing in
// the SDK retries on its own; this is for callers.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Options tunes Do. The zero value retries immediately.
type Options struct {
	// Interval between attempts. Zero retries immediately.
	Interval time.Duration
	// Exponential grows the interval between attempts instead of keeping it constant.
	Exponential bool
	// OnRetry is called before each retry with the error that caused it.
	OnRetry func(err error, next time.Duration)
}

// Do calls fn until it succeeds or maxRetries retries have failed, so fn
// runs at most maxRetries+1 times. The last error is returned. Wrap an
// error with Permanent to stop early.
func Do[T any](ctx context.Context, maxRetries uint, fn func(ctx context.Context) (T, error), opts ...Options) (T, error) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if o.Interval > 0 {
		if o.Exponential {
			exp := backoff.NewExponentialBackOff()
			exp.InitialInterval = o.Interval
			b = exp
		} else {
			b = backoff.NewConstantBackOff(o.Interval)
		}
	}

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxRetries + 1),
		backoff.WithMaxElapsedTime(0),
	}
	if o.OnRetry != nil {
		retryOpts = append(retryOpts, backoff.WithNotify(o.OnRetry))
	}

	return backoff.Retry(ctx, func() (T, error) { return fn(ctx) }, retryOpts...)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
