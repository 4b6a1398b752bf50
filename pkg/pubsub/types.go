package pubsub

// Handler is invoked on every Publish. It receives no payload: subscribers
// pull whatever state they need when notified.
type Handler func()

// HandlerID uniquely identifies a handler registration.
// Each call to Subscribe generates a new HandlerID, allowing
// the same function to be subscribed more than once with independent lifecycles.
type HandlerID uint64
