package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	// Must not panic.
	m.ObserveRPC("sendOtp", OutcomeOK, time.Millisecond)
	m.ObserveTransition("embedded", "no-session")
	m.ObserveSmartWallet("embedded")
}

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveRPC("sendOtp", OutcomeOK, 20*time.Millisecond)
	m.ObserveRPC("sendOtp", OutcomeOK, 30*time.Millisecond)
	m.ObserveRPC("pu_whoami", OutcomeNoSession, 0)
	m.ObserveTransition("embedded", "wallet-ready")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RPCCalls.WithLabelValues("sendOtp", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCCalls.WithLabelValues("pu_whoami", OutcomeNoSession)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthTransitions.WithLabelValues("embedded", "wallet-ready")))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
