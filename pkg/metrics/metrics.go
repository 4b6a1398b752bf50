// Package metrics exposes optional Prometheus collectors for the SDK.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every collector name.
const Namespace = "snowball"

// RPC call outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeErr       = "err"
	OutcomeTransport = "transport_error"
	OutcomeNoSession = "no_session"
)

// Metrics holds the SDK collectors.
type Metrics struct {
	// RPC calls by procedure and outcome
	RPCCalls *prometheus.CounterVec
	// RPC latency
	RPCDuration *prometheus.HistogramVec
	// Auth state transitions by provider and resulting state
	AuthTransitions *prometheus.CounterVec
	// Smart wallets built by provider
	SmartWalletsBuilt *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg returns
// nil, which disables metrics.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		RPCCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "rpc_calls_total",
				Help:      "RPC calls by procedure and outcome",
			},
			[]string{"procedure", "outcome"},
		),
		RPCDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "rpc_duration_seconds",
				Help:      "RPC call latency in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"procedure"},
		),
		AuthTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "auth_transitions_total",
				Help:      "Auth state transitions by provider and state",
			},
			[]string{"provider", "state"},
		),
		SmartWalletsBuilt: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "smart_wallets_built_total",
				Help:      "Smart wallet clients constructed by provider",
			},
			[]string{"provider"},
		),
	}

	for _, c := range []prometheus.Collector{m.RPCCalls, m.RPCDuration, m.AuthTransitions, m.SmartWalletsBuilt} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

// ObserveRPC records one RPC call.
func (m *Metrics) ObserveRPC(procedure, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCCalls.WithLabelValues(procedure, outcome).Inc()
	m.RPCDuration.WithLabelValues(procedure).Observe(d.Seconds())
}

// ObserveTransition records an auth state change.
func (m *Metrics) ObserveTransition(provider, state string) {
	if m == nil {
		return
	}
	m.AuthTransitions.WithLabelValues(provider, state).Inc()
}

// ObserveSmartWallet records a smart wallet construction.
func (m *Metrics) ObserveSmartWallet(provider string) {
	if m == nil {
		return
	}
	m.SmartWalletsBuilt.WithLabelValues(provider).Inc()
}
