package core

// Directions of travel on the built-in four-way intersection, clockwise.
// Entry point d is the approach of a vehicle heading d; exit point d is the
// departure heading d. Traffic keeps right.
const (
	North = iota
	East
	South
	West
)

type turn int

const (
	straight turn = iota
	right
	uturn
	left
)

func turnOf(l LaneSpec) turn {
	return turn(((l.ExitPoint-l.EntryPoint)%4 + 4) % 4)
}

// FourWayLanes lists the twelve legal lanes of the built-in intersection
// (every entry to every exit except a U-turn).
func FourWayLanes() []LaneSpec {
	lanes := make([]LaneSpec, 0, 12)
	for entry := North; entry <= West; entry++ {
		for exit := North; exit <= West; exit++ {
			l := LaneSpec{EntryPoint: entry, ExitPoint: exit}
			if turnOf(l) != uturn {
				lanes = append(lanes, l)
			}
		}
	}
	return lanes
}

// FourWayConflictTable returns the conflict relation of a four-way
// intersection with one lane per approach.
func FourWayConflictTable() *ConflictTable {
	lanes := FourWayLanes()
	adj := make(map[LaneSpec][]LaneSpec, len(lanes))
	for i, a := range lanes {
		for _, b := range lanes[i+1:] {
			if fourWayConflict(a, b) {
				adj[a] = append(adj[a], b)
			}
		}
	}
	return NewConflictTable(adj)
}

func fourWayConflict(a, b LaneSpec) bool {
	// Same approach lane or merging into the same exit.
	if a.EntryPoint == b.EntryPoint || a.ExitPoint == b.ExitPoint {
		return true
	}

	ta, tb := turnOf(a), turnOf(b)

	// A right turn hugs its corner and only meets traffic bound for its exit.
	if ta == right || tb == right {
		return false
	}

	opposite := (b.EntryPoint-a.EntryPoint+4)%4 == 2
	if opposite {
		// Opposing straights pass each other, as do opposing lefts.
		// A left across an opposing straight does not.
		return ta != tb
	}

	// Perpendicular straights and lefts all cross.
	return true
}
