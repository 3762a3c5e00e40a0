package core

import (
	"time"
)

// MessageKind tags the variants of Message on the wire.
type MessageKind uint8

const (
	KindBeacon MessageKind = iota + 1
	KindRequestAccess
	KindGrantAccess
	KindExiting
)

func (k MessageKind) String() string {
	switch k {
	case KindBeacon:
		return "Beacon"
	case KindRequestAccess:
		return "RequestAccess"
	case KindGrantAccess:
		return "GrantAccess"
	case KindExiting:
		return "Exiting"
	default:
		return "Unknown"
	}
}

// Message is the closed set of values exchanged between vehicles and the
// arbiter: *Beacon, *RequestAccess, *GrantAccess and *Exiting. Transports
// decode bytes into one of these exactly once and switch on the concrete type.
type Message interface {
	Kind() MessageKind
	isMessage()
}

// Beacon is the periodic ad hoc status broadcast.
type Beacon struct {
	SenderID      PeerID
	SenderAddress string
	SenderPort    int
	Lane          LaneSpec
	Status        VehicleStatus

	// RequestTimestamp is fixed when the vehicle starts REQUESTING and is
	// carried unchanged through CROSSING and EXITING. Zero while IDLE.
	RequestTimestamp time.Time
}

// RequestAccess asks the arbiter for permission to cross.
type RequestAccess struct {
	VehicleID      PeerID
	VehicleAddress string
	VehiclePort    int
	EntryPoint     int
	ExitPoint      int
	RequestTime    time.Time
}

// Lane returns the lane the request is for.
func (r *RequestAccess) Lane() LaneSpec {
	return LaneSpec{EntryPoint: r.EntryPoint, ExitPoint: r.ExitPoint}
}

// GrantAccess is the arbiter's permission to cross. RequestTime echoes the
// RequestAccess it answers, so a vehicle can tell a late grant for an
// earlier episode from one for its current request.
type GrantAccess struct {
	VehicleID   PeerID
	RequestTime time.Time
}

// Exiting tells the arbiter the vehicle has left. It is never acknowledged.
type Exiting struct {
	VehicleID      PeerID
	VehicleAddress string
	VehiclePort    int
}

func (*Beacon) Kind() MessageKind        { return KindBeacon }
func (*RequestAccess) Kind() MessageKind { return KindRequestAccess }
func (*GrantAccess) Kind() MessageKind   { return KindGrantAccess }
func (*Exiting) Kind() MessageKind       { return KindExiting }

func (*Beacon) isMessage()        {}
func (*RequestAccess) isMessage() {}
func (*GrantAccess) isMessage()   {}
func (*Exiting) isMessage()       {}
