package core

import (
	"context"
)

// MotionController drives the vehicle. The daemon only ever commands it.
type MotionController interface {
	// Pause holds the vehicle in place; Resume continues.
	Pause()
	Resume()

	// Stop halts the vehicle for good.
	Stop()
}

// Detector produces intersection events until ctx is done.
type Detector interface {
	Run(ctx context.Context, emit func(IntersectionEvent)) error
}

// Messenger is the point-to-point link to the arbiter.
type Messenger interface {
	// Send delivers msg to the arbiter. A nil error means the transport
	// acknowledged it. Send honors ctx's deadline.
	Send(ctx context.Context, msg Message) error

	// Listen delivers inbound messages to fn until ctx is done.
	Listen(ctx context.Context, fn func(Message)) error
}

// Coordinator decides when the vehicle may enter the intersection.
// All methods are called from the daemon's control loop only.
type Coordinator interface {
	// SeekAccess starts an access episode.
	SeekAccess(ctx context.Context)

	// IsGranted reports whether access was obtained in the current episode.
	IsGranted() bool

	// Announce publishes the local status where the strategy has a use for it.
	Announce(status VehicleStatus)

	// NotifyExiting closes the episode and releases any reservation.
	NotifyExiting(ctx context.Context)

	// Step runs one control-loop cycle: sampling, eviction, retries.
	Step(ctx context.Context)
}
