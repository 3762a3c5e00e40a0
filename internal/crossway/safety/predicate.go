// Package safety decides, from a neighbor table snapshot, whether a vehicle
// may cross without conflicting with any peer it knows about.
package safety

import (
	"time"

	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/internal/crossway/neighbor"
)

// Self is the local side of the evaluation.
type Self struct {
	ID               core.PeerID
	Lane             core.LaneSpec
	RequestTimestamp time.Time
}

// Verdict explains the outcome of SafeToCross.
type Verdict struct {
	Safe bool

	// Blocker is the first neighbor that made the crossing unsafe.
	Blocker *neighbor.Record
}

// SafeToCross reports whether self may cross given the neighbors.
//
// Only neighbors on a conflicting lane matter. A conflicting neighbor that
// is CROSSING always blocks. A conflicting neighbor that is REQUESTING
// blocks unless self requested first, where requests are ordered by
// timestamp and then by peer ID. IDLE and EXITING neighbors never block.
func SafeToCross(self Self, neighbors []neighbor.Record, conflicts core.ConflictChecker) Verdict {
	for i := range neighbors {
		n := &neighbors[i]
		if n.PeerID == self.ID || !conflicts.Conflicts(self.Lane, n.Lane) {
			continue
		}
		switch n.Status {
		case core.StatusCrossing:
			return Verdict{Blocker: n}
		case core.StatusRequesting:
			if !Precedes(self.RequestTimestamp, self.ID, n.RequestTimestamp, n.PeerID) {
				return Verdict{Blocker: n}
			}
		}
	}
	return Verdict{Safe: true}
}

// Precedes reports whether request (ts1, id1) comes strictly before
// (ts2, id2) in the total order used to resolve competing requests.
// A missing timestamp sorts first, so a peer that claims to be requesting
// without one is treated as ahead of us.
func Precedes(ts1 time.Time, id1 core.PeerID, ts2 time.Time, id2 core.PeerID) bool {
	switch {
	case ts2.IsZero() && !ts1.IsZero():
		return false
	case ts1.IsZero() && !ts2.IsZero():
		return true
	case ts1.Before(ts2):
		return true
	case ts2.Before(ts1):
		return false
	default:
		return id1 < id2
	}
}
