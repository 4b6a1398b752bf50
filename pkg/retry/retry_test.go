package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name       string
		maxRetries uint
		failFirst  int
		wantCalls  int
		wantErr    bool
	}{
		{name: "succeeds first time", maxRetries: 3, failFirst: 0, wantCalls: 1},
		{name: "succeeds on last retry", maxRetries: 2, failFirst: 2, wantCalls: 3},
		{name: "exhausts retries", maxRetries: 2, failFirst: 10, wantCalls: 3, wantErr: true},
		{name: "no retries", maxRetries: 0, failFirst: 10, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := Do(context.Background(), tt.maxRetries, func(context.Context) (int, error) {
				calls++
				if calls <= tt.failFirst {
					return 0, boom
				}
				return calls, nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.ErrorIs(t, err, boom)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, got)
		})
	}
}

func TestPermanentStopsEarly(t *testing.T) {
	boom := errors.New("fatal")
	calls := 0
	_, err := Do(context.Background(), 5, func(context.Context) (string, error) {
		calls++
		return "", Permanent(boom)
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestOnRetryAndInterval(t *testing.T) {
	var notified []time.Duration
	calls := 0
	_, err := Do(context.Background(), 2, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("again")
		}
		return 1, nil
	}, Options{
		Interval: time.Millisecond,
		OnRetry:  func(_ error, next time.Duration) { notified = append(notified, next) },
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Millisecond, time.Millisecond}, notified)
}

func TestContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, 3, func(context.Context) (int, error) {
		return 0, errors.New("never")
	}, Options{Interval: time.Second})
	assert.Error(t, err)
}
