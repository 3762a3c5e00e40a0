package paths

// Topic segments of the crossway vehicle/arbiter protocol.
// Every topic is {root}/{segment}/{vehicleID}; changing a value breaks
// compatibility with deployed vehicles.

// Upstream: vehicle -> arbiter
const (
	// Request carries RequestAccess messages.
	// Pattern: {root}/request/{vehicleID}
	Request = "request"

	// Exiting carries the fire-and-forget Exiting message.
	// Pattern: {root}/exiting/{vehicleID}
	Exiting = "exiting"

	// Online is the retained presence flag, cleared by the broker through the last will.
	// Pattern: {root}/online/{vehicleID}
	Online = "online"
)

// Downstream: arbiter -> vehicle
const (
	// Grant carries GrantAccess messages.
	// Pattern: {root}/grant/{vehicleID}
	Grant = "grant"
)

// GroupArbiter is the shared subscription group of arbiter replicas.
const GroupArbiter = "crossway-arbiter"
