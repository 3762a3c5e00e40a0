package mqtt

import (
	"context"
)

// MessageHandler receives one inbound publish. It runs on its own goroutine,
// under the context passed to Start.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is the broker connection used by vehicle agents and the arbiter.
type Client interface {
	// Start launches the connection manager and returns without waiting for
	// the broker. Reconnects happen in the background until ctx is done.
	Start(ctx context.Context) error

	// Disconnect sends DISCONNECT, which suppresses the will message.
	Disconnect(ctx context.Context)

	// Publish sends payload to topic. At QoS 1 it returns after PUBACK.
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe routes publishes matching filter to handler. Filters may use
	// wildcards and $share groups and survive reconnects.
	Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error

	// Unsubscribe drops the handler for filter.
	Unsubscribe(ctx context.Context, filter string) error

	// AwaitConnection blocks until the broker accepted the connection or ctx ends.
	AwaitConnection(ctx context.Context) error

	IsConnected() bool
}
