package pubsub

import (
	"fmt"

	"go.uber.org/zap"
)

// Publish calls every subscriber synchronously in subscription order.
// Handlers may subscribe or unsubscribe while being called; a panicking
// handler is logged and does not stop the others.
func (m *Manager) Publish() {
	m.mu.RLock()
	handlers := make([]Handler, 0, len(m.order))
	for _, id := range m.order {
		handlers = append(handlers, m.handlers[id])
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		m.call(h)
	}
}

func (m *Manager) call(h Handler) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("subscriber panicked", zap.String("panic", fmt.Sprint(p)))
		}
	}()
	h()
}
