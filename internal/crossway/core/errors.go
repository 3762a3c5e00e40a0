package core

import "errors"

var (
	// ErrProtocolViolation marks a message or event that makes no sense in the
	// current state. It is logged and the input dropped, never escalated.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrDetectorFault is returned by the daemon after an ERROR event stopped the vehicle.
	ErrDetectorFault = errors.New("intersection detector reported a fault")

	// ErrSendTimeout is returned when an acknowledged send was not acknowledged in time.
	ErrSendTimeout = errors.New("send timed out waiting for acknowledgement")

	// ErrTransportClosed is returned by transports used after Close.
	ErrTransportClosed = errors.New("transport closed")
)
