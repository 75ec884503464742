package ocr

// Event represents a worker lifecycle event.
// Minimal and stable: name + config label and optional fields via key/values.
type Event struct {
	Name   string
	Config string
	Fields map[string]any
}

// Event names published by the pool.
const (
	EventWorkerStart = "worker_start"
	EventWorkerStop  = "worker_stop"
	EventWorkerCrash = "worker_crash"
	EventWorkerFatal = "worker_fatal"
)

// EventPublisher receives events from the pool. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
