package safety

import (
	"testing"
	"time"

	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/internal/crossway/neighbor"
)

var (
	t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	laneA        = core.LaneSpec{EntryPoint: core.North, ExitPoint: core.North}
	laneCrossing = core.LaneSpec{EntryPoint: core.East, ExitPoint: core.East}
	laneOpposite = core.LaneSpec{EntryPoint: core.South, ExitPoint: core.South}
)

func nbr(id string, lane core.LaneSpec, status core.VehicleStatus, ts time.Time) neighbor.Record {
	return neighbor.Record{PeerID: core.PeerID(id), Lane: lane, Status: status, RequestTimestamp: ts}
}

func TestSafeToCross(t *testing.T) {
	table := core.FourWayConflictTable()
	self := Self{ID: "m", Lane: laneA, RequestTimestamp: t0.Add(100 * time.Millisecond)}

	tests := []struct {
		name      string
		neighbors []neighbor.Record
		want      bool
	}{
		{"no neighbors", nil, true},
		{"idle conflicting", []neighbor.Record{nbr("x", laneCrossing, core.StatusIdle, time.Time{})}, true},
		{"exiting conflicting", []neighbor.Record{nbr("x", laneCrossing, core.StatusExiting, t0)}, true},
		{"crossing conflicting", []neighbor.Record{nbr("x", laneCrossing, core.StatusCrossing, t0.Add(time.Hour))}, false},
		{"crossing disjoint", []neighbor.Record{nbr("x", laneOpposite, core.StatusCrossing, t0)}, true},
		{"earlier request conflicting", []neighbor.Record{nbr("x", laneCrossing, core.StatusRequesting, t0)}, false},
		{"later request conflicting", []neighbor.Record{nbr("x", laneCrossing, core.StatusRequesting, t0.Add(time.Second))}, true},
		{"tie lower id wins", []neighbor.Record{nbr("z", laneCrossing, core.StatusRequesting, self.RequestTimestamp)}, true},
		{"tie higher id loses", []neighbor.Record{nbr("a", laneCrossing, core.StatusRequesting, self.RequestTimestamp)}, false},
		{"requesting without timestamp", []neighbor.Record{nbr("x", laneCrossing, core.StatusRequesting, time.Time{})}, false},
		{"own record ignored", []neighbor.Record{nbr("m", laneA, core.StatusCrossing, t0)}, true},
		{"one blocker among many", []neighbor.Record{
			nbr("p", laneOpposite, core.StatusCrossing, t0),
			nbr("q", laneCrossing, core.StatusExiting, t0),
			nbr("r", laneCrossing, core.StatusCrossing, t0),
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := SafeToCross(self, tt.neighbors, table)
			if v.Safe != tt.want {
				t.Errorf("SafeToCross() = %v, want %v", v.Safe, tt.want)
			}
			if !v.Safe && v.Blocker == nil {
				t.Error("unsafe verdict without a blocker")
			}
		})
	}
}

func TestPrecedesIsATotalOrder(t *testing.T) {
	type req struct {
		ts time.Time
		id core.PeerID
	}
	reqs := []req{
		{t0, "a"}, {t0, "b"}, {t0.Add(time.Millisecond), "a"}, {time.Time{}, "c"}, {t0.Add(time.Second), "0"},
	}

	for i, x := range reqs {
		if Precedes(x.ts, x.id, x.ts, x.id) {
			t.Errorf("request %d precedes itself", i)
		}
		for j, y := range reqs {
			if i == j {
				continue
			}
			xy := Precedes(x.ts, x.id, y.ts, y.id)
			yx := Precedes(y.ts, y.id, x.ts, x.id)
			if xy == yx {
				t.Errorf("requests %d and %d are not strictly ordered (%v, %v)", i, j, xy, yx)
			}
		}
	}
}
