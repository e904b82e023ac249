package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
)

// subscriptionBuffer is how many undelivered messages a subscription holds
// before newer ones are dropped.
const subscriptionBuffer = 64

func connect(url, name string, opts ...nats.Option) (*nats.Conn, error) {
	nc, err := nats.Connect(url, append([]nats.Option{nats.Name(name)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher sends each event as a JSON message on the subject named by
// its topic.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := connect(url, "structs")
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", topic, err)
	}
	if err := p.conn.Publish(topic, data); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

// Flush waits until the server has processed every published event.
func (p *NATSPublisher) Flush() error {
	return p.conn.Flush()
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSubscriber receives events published by a NATSPublisher. It
// reconnects forever; opts may add disconnect or reconnect handlers.
type NATSSubscriber struct {
	conn *nats.Conn
}

func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	base := []nats.Option{nats.MaxReconnects(-1), nats.ReconnectWait(time.Second)}
	nc, err := connect(url, "structs-watch", append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

// subscription forwards NATS messages to a channel until stopped.
type subscription struct {
	mu      sync.Mutex
	ch      chan Message
	stopped bool
	sub     *nats.Subscription
	once    sync.Once
}

func (s *subscription) deliver(msg *nats.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	select {
	case s.ch <- Message{Topic: msg.Subject, Data: msg.Data}:
	default:
		// full; the NATS dispatcher must not block
	}
}

func (s *subscription) stop() {
	s.once.Do(func() {
		if s.sub != nil {
			_ = s.sub.Unsubscribe()
		}
		s.mu.Lock()
		s.stopped = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// Subscribe delivers the events whose topic matches the subject pattern
// topic, such as TopicAll. The channel is closed by cancel, which may be
// called more than once.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan Message, func(), error) {
	sn := &subscription{ch: make(chan Message, subscriptionBuffer)}
	sub, err := s.conn.Subscribe(topic, sn.deliver)
	if err != nil {
		sn.stop()
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	sn.sub = sub
	// The subscription must reach the server before events published on
	// other connections are expected.
	if err := s.conn.Flush(); err != nil {
		sn.stop()
		return nil, nil, fmt.Errorf("registering subscription to %s: %w", topic, err)
	}
	return sn.ch, sn.stop, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
