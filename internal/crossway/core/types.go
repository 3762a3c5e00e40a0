package core

import (
	"fmt"
	"strings"
)

// PeerID identifies a vehicle. It doubles as the tie-breaker between
// requests carrying the same timestamp.
type PeerID string

// VehicleStatus is the coordination status a vehicle advertises.
// Within one crossing episode it only moves forward:
// IDLE -> REQUESTING -> CROSSING -> EXITING -> IDLE.
type VehicleStatus uint8

const (
	StatusIdle VehicleStatus = iota
	StatusRequesting
	StatusCrossing
	StatusExiting
)

var statusNames = [...]string{"IDLE", "REQUESTING", "CROSSING", "EXITING"}

func (s VehicleStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("VehicleStatus(%d)", s)
}

// Valid reports whether s is one of the defined statuses.
func (s VehicleStatus) Valid() bool {
	return int(s) < len(statusNames)
}

// IntersectionEvent is a discrete signal from the intersection detector.
type IntersectionEvent uint8

const (
	EventApproaching IntersectionEvent = iota
	EventEntering
	EventExiting
	EventError
)

var eventNames = [...]string{"APPROACHING", "ENTERING", "EXITING", "ERROR"}

func (e IntersectionEvent) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("IntersectionEvent(%d)", e)
}

// ParseIntersectionEvent accepts the event names case-insensitively.
func ParseIntersectionEvent(s string) (IntersectionEvent, error) {
	for i, name := range eventNames {
		if strings.EqualFold(s, name) {
			return IntersectionEvent(i), nil
		}
	}
	return 0, fmt.Errorf("unknown intersection event %q", s)
}

// LaneSpec names the path of a vehicle through the intersection by its
// entry and exit points.
type LaneSpec struct {
	EntryPoint int `json:"entryPoint" yaml:"entry"`
	ExitPoint  int `json:"exitPoint" yaml:"exit"`
}

func (l LaneSpec) String() string {
	return fmt.Sprintf("E%d->X%d", l.EntryPoint, l.ExitPoint)
}
