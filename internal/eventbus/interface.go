// Package eventbus implements the event log contract from §4.8: producers
// publish PAYMENT_REQUESTED before adapter invocation and
// PAYMENT_COMPLETED/PAYMENT_FAILED after, keyed by idempotencyKey for
// per-key ordering; delivery is at-least-once and consumer-side
// idempotency is by eventId. Grounded on the teacher's Redis Streams
// consumer-group transport (worker/internal/eventbus/redis_eventbus.go).
package eventbus

import "context"

// EventHandler processes one delivered message. A returned error leaves
// the message un-acked, so it remains in the consumer group's pending
// entries list for redelivery (at-least-once).
type EventHandler func(ctx context.Context, payload []byte) error

// Subscription represents one active consumer registration.
type Subscription interface {
	Topic() string
	Unsubscribe() error
}

// Bus is the event log transport. Publish must never block request
// completion on delivery confirmation (§4.8) — implementations return as
// soon as the broker has accepted the write.
type Bus interface {
	// Publish writes event, serialized as JSON, to topic keyed by key (so
	// all messages for the same key are ordered relative to each other).
	Publish(ctx context.Context, topic, key string, event interface{}) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) (Subscription, error)
	Close() error
}
