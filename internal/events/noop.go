package events

import (
	"context"
	"sync"
)

// NoopPublisher is a Publisher that does nothing (used when NATS is not configured).
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}

// Recorded is one event captured by a MemoryPublisher.
type Recorded struct {
	Topic string
	Event any
}

// MemoryPublisher keeps every published event in order. Scenario runs and
// tests use it to assert on lifecycle events without a broker.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Recorded
}

func (m *MemoryPublisher) Publish(ctx context.Context, topic string, event any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Recorded{Topic: topic, Event: event})
	return nil
}

// Events returns a copy of the recorded events.
func (m *MemoryPublisher) Events() []Recorded {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Recorded(nil), m.events...)
}

// Topic returns the recorded events published on topic.
func (m *MemoryPublisher) Topic(topic string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []any
	for _, r := range m.events {
		if r.Topic == topic {
			out = append(out, r.Event)
		}
	}
	return out
}

// Reset discards the recorded events.
func (m *MemoryPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func (m *MemoryPublisher) Close() error {
	return nil
}

// Tee fans every event out to several publishers and reports the first
// error.
type Tee []Publisher

func (t Tee) Publish(ctx context.Context, topic string, event any) error {
	var first error
	for _, p := range t {
		if err := p.Publish(ctx, topic, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t Tee) Close() error {
	var first error
	for _, p := range t {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
