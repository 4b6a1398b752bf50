// Package pubsub is the in-process "something changed" broadcaster the
// orchestrator republishes auth state changes through.
package pubsub

import (
	"sync"

	"go.uber.org/zap"
)

// Manager fans a change signal out to every subscriber.
type Manager struct {
	mu       sync.RWMutex
	handlers map[HandlerID]Handler
	order    []HandlerID
	nextID   HandlerID
	logger   *zap.Logger
}

// NewManager creates a new pubsub manager
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		handlers: make(map[HandlerID]Handler),
		logger:   logger,
	}
}

// Len returns the number of live subscriptions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers)
}
