package pubsub

// Subscribe registers handler and returns a function that removes it.
// The returned function is idempotent.
func (m *Manager) Subscribe(handler Handler) (unsubscribe func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.handlers[id] = handler
	m.order = append(m.order, id)
	m.mu.Unlock()

	return func() { m.unsubscribe(id) }
}

func (m *Manager) unsubscribe(id HandlerID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.handlers[id]; !ok {
		return // Already unsubscribed
	}
	delete(m.handlers, id)
	for i, h := range m.order {
		if h == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Close drops every subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = make(map[HandlerID]Handler)
	m.order = nil
}
