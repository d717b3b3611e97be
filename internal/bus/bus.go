// Package bus is the downstream message bus boundary. Delivery is
// at-most-once: a failed publish is logged by the caller and never retried.
package bus

import "context"

// Publisher delivers a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Func adapts a plain function to a Publisher; tests use it to capture
// publishes.
type Func func(ctx context.Context, topic string, payload []byte) error

func (f Func) Publish(ctx context.Context, topic string, payload []byte) error {
	return f(ctx, topic, payload)
}

// Nop drops every publish.
type Nop struct{}

func (Nop) Publish(context.Context, string, []byte) error { return nil }
