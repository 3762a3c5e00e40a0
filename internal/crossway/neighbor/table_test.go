package neighbor

import (
	"sync"
	"testing"
	"time"

	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/crossway/internal/crossway/core"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func rec(id string, status core.VehicleStatus, ts time.Time) Record {
	return Record{
		PeerID:           core.PeerID(id),
		Lane:             core.LaneSpec{EntryPoint: 1, ExitPoint: 2},
		Status:           status,
		RequestTimestamp: ts,
	}
}

func TestEvictionBoundary(t *testing.T) {
	const threshold = 1000 * time.Millisecond * 5

	tests := []struct {
		name      string
		silence   time.Duration
		wantEvict bool
	}{
		{"one ms below threshold", threshold - time.Millisecond, false},
		{"exactly threshold", threshold, false},
		{"one ms above threshold", threshold + time.Millisecond, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clocktesting.NewFakePassiveClock(epoch)
			table := NewTable(clk)
			table.Update(rec("a", core.StatusRequesting, epoch))

			clk.SetTime(epoch.Add(tt.silence))
			evicted := table.EvictOlderThan(threshold)

			if got := len(evicted) == 1; got != tt.wantEvict {
				t.Errorf("evicted = %v, want %v", got, tt.wantEvict)
			}
			if got := table.Len() == 0; got != tt.wantEvict {
				t.Errorf("table emptied = %v, want %v", got, tt.wantEvict)
			}
		})
	}
}

func TestUpdateReplaceIfNewer(t *testing.T) {
	clk := clocktesting.NewFakePassiveClock(epoch)
	table := NewTable(clk)

	t0 := epoch
	t1 := epoch.Add(50 * time.Millisecond)

	tests := []struct {
		name       string
		in         Record
		wantAccept bool
		wantStatus core.VehicleStatus
	}{
		{"first beacon", rec("a", core.StatusRequesting, t1), true, core.StatusRequesting},
		{"reordered older request", rec("a", core.StatusRequesting, t0), false, core.StatusRequesting},
		{"same episode advances", rec("a", core.StatusCrossing, t1), true, core.StatusCrossing},
		{"same episode regresses", rec("a", core.StatusRequesting, t1), false, core.StatusCrossing},
		{"exiting", rec("a", core.StatusExiting, t1), true, core.StatusExiting},
		{"idle has no timestamp", rec("a", core.StatusIdle, time.Time{}), true, core.StatusIdle},
	}

	for _, tt := range tests {
		clk.SetTime(clk.Now().Add(100 * time.Millisecond))
		if got := table.Update(tt.in); got != tt.wantAccept {
			t.Errorf("%s: Update() = %v, want %v", tt.name, got, tt.wantAccept)
		}
		snap := table.Snapshot()
		if len(snap) != 1 || snap[0].Status != tt.wantStatus {
			t.Errorf("%s: snapshot = %+v, want status %s", tt.name, snap, tt.wantStatus)
		}
	}
}

func TestUpdateTracksTimes(t *testing.T) {
	clk := clocktesting.NewFakePassiveClock(epoch)
	table := NewTable(clk)

	table.Update(rec("a", core.StatusRequesting, epoch))

	clk.SetTime(epoch.Add(time.Second))
	table.Update(rec("a", core.StatusRequesting, epoch))

	snap := table.Snapshot()[0]
	if !snap.LastSeen.Equal(epoch.Add(time.Second)) {
		t.Errorf("LastSeen = %v", snap.LastSeen)
	}
	if !snap.LastStatusChange.Equal(epoch) {
		t.Errorf("LastStatusChange moved without a status change: %v", snap.LastStatusChange)
	}

	clk.SetTime(epoch.Add(2 * time.Second))
	table.Update(rec("a", core.StatusCrossing, epoch))
	if got := table.Snapshot()[0].LastStatusChange; !got.Equal(epoch.Add(2 * time.Second)) {
		t.Errorf("LastStatusChange = %v after status change", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	table := NewTable(clocktesting.NewFakePassiveClock(epoch))
	table.Update(rec("b", core.StatusRequesting, epoch))
	table.Update(rec("a", core.StatusIdle, time.Time{}))

	snap := table.Snapshot()
	if snap[0].PeerID != "a" || snap[1].PeerID != "b" {
		t.Fatalf("snapshot not ordered by peer: %+v", snap)
	}
	snap[0].Status = core.StatusCrossing

	if table.Snapshot()[0].Status != core.StatusIdle {
		t.Error("mutating a snapshot changed the table")
	}
}

func TestConcurrentAccess(t *testing.T) {
	table := NewTable(clocktesting.NewFakePassiveClock(epoch))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			for j := 0; j < 200; j++ {
				table.Update(rec(id, core.StatusRequesting, epoch.Add(time.Duration(j))))
				_ = table.Snapshot()
				table.EvictOlderThan(time.Hour)
			}
		}(i)
	}
	wg.Wait()

	if table.Len() != 8 {
		t.Errorf("Len() = %d, want 8", table.Len())
	}
}
