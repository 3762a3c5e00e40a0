// Package codec encodes crossway messages in protobuf wire format.
//
// Every message is a single flat envelope; field 1 carries the kind and the
// remaining fields are shared between kinds:
//
//	1 kind        varint
//	2 id          string   sender / vehicle ID
//	3 address     string
//	4 port        varint
//	5 entry       varint
//	6 exit        varint
//	7 status      varint   beacons only
//	8 timestamp   varint   unix nanoseconds, omitted when zero; a grant
//	                       echoes the request's
//
// Unknown fields are skipped so newer senders stay readable.
package codec

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/autopeer-io/crossway/internal/crossway/core"
)

const (
	fieldKind      protowire.Number = 1
	fieldID        protowire.Number = 2
	fieldAddress   protowire.Number = 3
	fieldPort      protowire.Number = 4
	fieldEntry     protowire.Number = 5
	fieldExit      protowire.Number = 6
	fieldStatus    protowire.Number = 7
	fieldTimestamp protowire.Number = 8
)

// MaxMessageSize bounds accepted payloads; a beacon is well under 100 bytes.
const MaxMessageSize = 1024

var (
	ErrUnknownKind = errors.New("unknown message kind")
	ErrTooLarge    = errors.New("message exceeds maximum size")
	ErrMissingID   = errors.New("message carries no vehicle id")
)

type envelope struct {
	kind      core.MessageKind
	id        string
	address   string
	port      int
	entry     int
	exit      int
	status    core.VehicleStatus
	timestamp time.Time
}

// Encode serializes msg.
func Encode(msg core.Message) ([]byte, error) {
	var e envelope
	switch m := msg.(type) {
	case *core.Beacon:
		e = envelope{
			kind:      core.KindBeacon,
			id:        string(m.SenderID),
			address:   m.SenderAddress,
			port:      m.SenderPort,
			entry:     m.Lane.EntryPoint,
			exit:      m.Lane.ExitPoint,
			status:    m.Status,
			timestamp: m.RequestTimestamp,
		}
	case *core.RequestAccess:
		e = envelope{
			kind:      core.KindRequestAccess,
			id:        string(m.VehicleID),
			address:   m.VehicleAddress,
			port:      m.VehiclePort,
			entry:     m.EntryPoint,
			exit:      m.ExitPoint,
			timestamp: m.RequestTime,
		}
	case *core.GrantAccess:
		e = envelope{kind: core.KindGrantAccess, id: string(m.VehicleID), timestamp: m.RequestTime}
	case *core.Exiting:
		e = envelope{
			kind:    core.KindExiting,
			id:      string(m.VehicleID),
			address: m.VehicleAddress,
			port:    m.VehiclePort,
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, msg)
	}
	return e.append(make([]byte, 0, 64)), nil
}

func (e *envelope) append(b []byte) []byte {
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.kind))
	if e.id != "" {
		b = protowire.AppendTag(b, fieldID, protowire.BytesType)
		b = protowire.AppendString(b, e.id)
	}
	if e.address != "" {
		b = protowire.AppendTag(b, fieldAddress, protowire.BytesType)
		b = protowire.AppendString(b, e.address)
	}
	b = appendInt(b, fieldPort, e.port)
	b = appendInt(b, fieldEntry, e.entry)
	b = appendInt(b, fieldExit, e.exit)
	if e.status != 0 {
		b = protowire.AppendTag(b, fieldStatus, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.status))
	}
	if !e.timestamp.IsZero() {
		b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.timestamp.UnixNano()))
	}
	return b
}

func appendInt(b []byte, num protowire.Number, v int) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(v)))
}

// Decode parses b into one of the core message types.
func Decode(b []byte) (core.Message, error) {
	if len(b) > MaxMessageSize {
		return nil, ErrTooLarge
	}

	var e envelope
	if err := e.consume(b); err != nil {
		return nil, err
	}

	switch e.kind {
	case core.KindBeacon:
		if e.id == "" {
			return nil, ErrMissingID
		}
		if !e.status.Valid() {
			return nil, fmt.Errorf("beacon from %s: invalid status %d", e.id, e.status)
		}
		return &core.Beacon{
			SenderID:         core.PeerID(e.id),
			SenderAddress:    e.address,
			SenderPort:       e.port,
			Lane:             core.LaneSpec{EntryPoint: e.entry, ExitPoint: e.exit},
			Status:           e.status,
			RequestTimestamp: e.timestamp,
		}, nil
	case core.KindRequestAccess:
		if e.id == "" {
			return nil, ErrMissingID
		}
		return &core.RequestAccess{
			VehicleID:      core.PeerID(e.id),
			VehicleAddress: e.address,
			VehiclePort:    e.port,
			EntryPoint:     e.entry,
			ExitPoint:      e.exit,
			RequestTime:    e.timestamp,
		}, nil
	case core.KindGrantAccess:
		return &core.GrantAccess{VehicleID: core.PeerID(e.id), RequestTime: e.timestamp}, nil
	case core.KindExiting:
		if e.id == "" {
			return nil, ErrMissingID
		}
		return &core.Exiting{
			VehicleID:      core.PeerID(e.id),
			VehicleAddress: e.address,
			VehiclePort:    e.port,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, e.kind)
	}
}

func (e *envelope) consume(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType && isVarintField(num):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			e.setVarint(num, v)
		case typ == protowire.BytesType && (num == fieldID || num == fieldAddress):
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			if num == fieldID {
				e.id = v
			} else {
				e.address = v
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

func isVarintField(num protowire.Number) bool {
	switch num {
	case fieldKind, fieldPort, fieldEntry, fieldExit, fieldStatus, fieldTimestamp:
		return true
	}
	return false
}

func (e *envelope) setVarint(num protowire.Number, v uint64) {
	switch num {
	case fieldKind:
		e.kind = core.MessageKind(v)
	case fieldPort:
		e.port = int(protowire.DecodeZigZag(v))
	case fieldEntry:
		e.entry = int(protowire.DecodeZigZag(v))
	case fieldExit:
		e.exit = int(protowire.DecodeZigZag(v))
	case fieldStatus:
		e.status = core.VehicleStatus(v)
	case fieldTimestamp:
		e.timestamp = time.Unix(0, int64(v))
	}
}
