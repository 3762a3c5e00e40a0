package beacon

import (
	"context"
)

// Transport is an unreliable broadcast medium. Payloads may be lost,
// duplicated or reordered.
type Transport interface {
	// Broadcast sends payload to every listener on the medium, including,
	// possibly, the sender itself.
	Broadcast(ctx context.Context, payload []byte) error

	// Receive calls fn for every inbound payload until ctx is done or the
	// transport is closed. fn must not retain payload.
	Receive(ctx context.Context, fn func(payload []byte)) error

	Close() error
}
