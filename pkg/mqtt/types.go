package mqtt

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by Publish while the broker connection is down.
// Nodes publish periodic samples, so callers drop the sample rather than queue it.
var ErrNotConnected = errors.New("mqtt client not connected")

// MessageHandler processes a message received on a subscribed topic.
// It runs on its own goroutine with the context the client was started with.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is the broker connection used by a node and its tools.
type Client interface {
	// Start connects in the background and keeps reconnecting until ctx ends.
	Start(ctx context.Context) error

	// Disconnect sends DISCONNECT and stops reconnecting.
	Disconnect(ctx context.Context)

	// Publish sends payload to topic. It returns ErrNotConnected while offline.
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe registers handler for a topic filter. Subscriptions survive reconnects.
	Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error

	// Unsubscribe removes the handler of a topic filter.
	Unsubscribe(ctx context.Context, topic string) error

	// AwaitConnection blocks until the client is connected or ctx ends.
	AwaitConnection(ctx context.Context) error

	// IsConnected reports whether the broker connection is up.
	IsConnected() bool
}
