package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Message is one event received from the bus.
type Message struct {
	Topic string
	Data  []byte
	// Header carries the publisher's trace context, if any.
	Header map[string][]string
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers messages on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}

// NATSSubscriber subscribes to events from NATS subjects.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects to NATS and reconnects forever. Extra options
// such as disconnect handlers are applied after the defaults.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	all := append([]nats.Option{
		nats.Name("workq-subscriber"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}, opts...)
	nc, err := nats.Connect(url, all...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Subscribe returns a channel of messages for topic, which may use NATS
// wildcards such as TopicAll. The returned cancel function unsubscribes
// and closes the channel.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan Message, func(), error) {
	sub := &subscription{ch: make(chan Message, 64)}

	var err error
	sub.nsub, err = s.conn.Subscribe(topic, sub.deliver)
	if err != nil {
		close(sub.ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// The subscription must reach the server before messages published on
	// other connections are routed to it.
	if err := s.conn.Flush(); err != nil {
		sub.cancel()
		return nil, nil, fmt.Errorf("flushing subscription to %s: %w", topic, err)
	}
	return sub.ch, sub.cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}

// subscription bridges a NATS subscription to a buffered channel.
type subscription struct {
	ch   chan Message
	nsub *nats.Subscription

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// deliver runs on the NATS dispatch goroutine and never blocks it: when
// the channel is full the message is dropped.
func (s *subscription) deliver(msg *nats.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- Message{Topic: msg.Subject, Data: msg.Data, Header: msg.Header}:
	default:
	}
}

func (s *subscription) cancel() {
	s.once.Do(func() {
		_ = s.nsub.Unsubscribe()
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}
