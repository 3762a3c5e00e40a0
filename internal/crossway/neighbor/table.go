// Package neighbor keeps the membership view an ad hoc vehicle builds from
// received beacons.
//
// Thread safety: every Table method takes the table's single mutex for a
// short critical section and never performs I/O while holding it.
package neighbor

import (
	"sort"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/crossway/internal/crossway/core"
)

// Record is the last known state of one peer.
type Record struct {
	PeerID  core.PeerID
	Address string
	Port    int
	Lane    core.LaneSpec
	Status  core.VehicleStatus

	RequestTimestamp time.Time

	// LastStatusChange is when Status last took a different value.
	LastStatusChange time.Time

	// LastSeen is when the latest accepted beacon arrived.
	LastSeen time.Time
}

// FromBeacon converts a received beacon into a record. Timestamps are filled
// in by Table.Update.
func FromBeacon(b *core.Beacon) Record {
	return Record{
		PeerID:           b.SenderID,
		Address:          b.SenderAddress,
		Port:             b.SenderPort,
		Lane:             b.Lane,
		Status:           b.Status,
		RequestTimestamp: b.RequestTimestamp,
	}
}

// Table maps peer identity to the last accepted record.
type Table struct {
	clock clock.PassiveClock

	mu      sync.Mutex
	records map[core.PeerID]*Record
}

// NewTable creates an empty table stamping records with clk.
func NewTable(clk clock.PassiveClock) *Table {
	return &Table{
		clock:   clk,
		records: make(map[core.PeerID]*Record),
	}
}

// Update stores rec unless it is older than what the table already holds
// for the same peer. It reports whether rec was accepted.
//
// A record is older when it belongs to an earlier request episode (earlier
// RequestTimestamp), or to the same episode at an earlier status. Records
// without a timestamp (IDLE) are always accepted.
func (t *Table) Update(rec Record) bool {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.records[rec.PeerID]
	if !ok {
		rec.LastSeen = now
		rec.LastStatusChange = now
		t.records[rec.PeerID] = &rec
		return true
	}

	if stale(rec, cur) {
		return false
	}

	rec.LastSeen = now
	rec.LastStatusChange = cur.LastStatusChange
	if rec.Status != cur.Status {
		rec.LastStatusChange = now
	}
	*cur = rec
	return true
}

func stale(in Record, cur *Record) bool {
	if in.RequestTimestamp.IsZero() || cur.RequestTimestamp.IsZero() {
		return false
	}
	if in.RequestTimestamp.Before(cur.RequestTimestamp) {
		return true
	}
	return in.RequestTimestamp.Equal(cur.RequestTimestamp) && in.Status < cur.Status
}

// Snapshot returns a copy of every record, ordered by peer ID.
func (t *Table) Snapshot() []Record {
	t.mu.Lock()
	out := make([]Record, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, *r)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}

// EvictOlderThan removes records last seen more than d ago and returns them.
// A record seen exactly d ago is kept.
func (t *Table) EvictOlderThan(d time.Duration) []Record {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []Record
	for id, r := range t.records {
		if now.Sub(r.LastSeen) > d {
			evicted = append(evicted, *r)
			delete(t.records, id)
		}
	}
	return evicted
}

// Len returns the number of records.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}
