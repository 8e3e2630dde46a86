// Package bus defines the publish/subscribe abstraction the core's other
// subsystems build on: hierarchical subjects, per-subject streams, consumer
// groups, and the header set required on every message (spec §6 "External
// Interfaces"). Concrete transports live in subpackages (redisstreams,
// amqptransport); this package also provides an in-memory Transport for
// unit tests that don't need a real broker.
package bus

import (
	"context"
	"sync"
)

// Headers carries the envelope fields required on every bus message.
type Headers struct {
	ContentType    string
	MessageType    string
	MessageVersion string
	MessageID      string
	ReplyInboxName string // optional
	DbName         string // LHC messages only
	InstanceID     string // LHC messages only
	Key            string // LHC messages only
}

// Message is one bus message: a subject it was published to (or will be
// published to), its headers, and an opaque body.
type Message struct {
	Subject string
	Headers Headers
	Body    []byte

	// DeliveryTag is a transport-assigned opaque token identifying this
	// delivery (a Redis Streams entry ID, an AMQP delivery tag, ...). It
	// is only meaningful to Subscription.Ack on the transport that
	// produced it and must not be inspected by callers.
	DeliveryTag string
}

// PublishOptions controls delivery-time behavior.
type PublishOptions struct {
	// DedupKey, if non-empty, collapses bursts of identical publishes:
	// a transport that supports dedup drops the publish if a message with
	// the same key was already accepted within its retention window. This
	// backs the Rebaser's two-message wakeup-stream pattern (spec §4.G).
	DedupKey string
}

// Transport is the pub/sub contract every subsystem codes against.
type Transport interface {
	// Publish sends msg to subject. At-least-once: a transport may deliver
	// a message more than once to a subscriber; consumers must be
	// idempotent or dedupe by MessageID.
	Publish(ctx context.Context, msg Message, opts PublishOptions) error

	// Subscribe opens a subscription on subject within consumerGroup. Two
	// subscriptions in the same group load-balance messages; subscriptions
	// in different groups each see every message (fan-out).
	Subscribe(ctx context.Context, subject, consumerGroup string) (Subscription, error)

	// Close releases any connections held by the transport.
	Close() error
}

// Subscription is a live consumer handle.
type Subscription interface {
	// Messages returns the channel new messages arrive on. It is closed
	// when the subscription is closed or the transport disconnects.
	Messages() <-chan Message

	// Ack acknowledges a message was processed; required for at-least-once
	// redelivery semantics on backends that track delivery.
	Ack(ctx context.Context, msg Message) error

	// Close stops the subscription.
	Close() error
}

// MemTransport is an in-process Transport backed by channels, for tests
// that exercise bus-dependent code without a real broker.
type MemTransport struct {
	mu   sync.Mutex
	subs map[string][]*memSubscription // subject -> subscriptions
	seen map[string]struct{}           // dedup keys already accepted
}

// NewMemTransport creates an empty in-memory transport.
func NewMemTransport() *MemTransport {
	return &MemTransport{
		subs: make(map[string][]*memSubscription),
		seen: make(map[string]struct{}),
	}
}

type memSubscription struct {
	mu     *sync.Mutex // the owning transport's lock
	ch     chan Message
	closed bool
}

func (s *memSubscription) Messages() <-chan Message { return s.ch }

func (s *memSubscription) Ack(_ context.Context, _ Message) error { return nil }

func (s *memSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// Publish delivers msg to every subscription on msg.Subject. Delivery
// across distinct consumer groups fans out; delivery within the same
// group would need a real broker's consumer-group semantics, which this
// test double does not model — every subscriber gets every message.
func (t *MemTransport) Publish(_ context.Context, msg Message, opts PublishOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if opts.DedupKey != "" {
		if _, ok := t.seen[opts.DedupKey]; ok {
			return nil
		}
		t.seen[opts.DedupKey] = struct{}{}
	}

	for _, sub := range t.subs[msg.Subject] {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// Slow consumer: drop rather than block the publisher,
			// mirroring BusConsumerLag backpressure (spec §7).
		}
	}
	return nil
}

// Subscribe registers a new subscription on subject. consumerGroup is
// accepted for interface compatibility but not enforced by this test
// double.
func (t *MemTransport) Subscribe(_ context.Context, subject, _ string) (Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub := &memSubscription{mu: &t.mu, ch: make(chan Message, 64)}
	t.subs[subject] = append(t.subs[subject], sub)
	return sub, nil
}

// Close is a no-op for the in-memory transport.
func (t *MemTransport) Close() error { return nil }
