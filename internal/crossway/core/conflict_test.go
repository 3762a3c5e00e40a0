package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/autopeer-io/crossway/pkg/log"
)

func TestFourWayConflictTable(t *testing.T) {
	table := FourWayConflictTable()

	lane := func(entry, exit int) LaneSpec { return LaneSpec{EntryPoint: entry, ExitPoint: exit} }

	tests := []struct {
		name string
		a, b LaneSpec
		want bool
	}{
		{"same lane", lane(North, North), lane(North, North), true},
		{"opposing straights", lane(North, North), lane(South, South), false},
		{"perpendicular straights", lane(North, North), lane(East, East), true},
		{"left across opposing straight", lane(North, West), lane(South, South), true},
		{"opposing lefts", lane(North, West), lane(South, East), false},
		{"right turns on different exits", lane(North, East), lane(South, West), false},
		{"right turn merging with straight", lane(North, East), lane(East, East), true},
		{"same approach", lane(West, West), lane(West, North), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := table.Conflicts(tt.a, tt.b); got != tt.want {
				t.Errorf("Conflicts(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := table.Conflicts(tt.b, tt.a); got != tt.want {
				t.Errorf("Conflicts(%s, %s) not symmetric", tt.b, tt.a)
			}
		})
	}
}

func TestFourWayLanesExcludeUTurns(t *testing.T) {
	lanes := FourWayLanes()
	if len(lanes) != 12 {
		t.Fatalf("len(FourWayLanes()) = %d, want 12", len(lanes))
	}
	for _, l := range lanes {
		if turnOf(l) == uturn {
			t.Errorf("U-turn lane %s listed", l)
		}
	}
}

const sampleTable = `
conflicts:
  - lane: {entry: 1, exit: 2}
    with:
      - {entry: 3, exit: 4}
      - {entry: 5, exit: 6}
`

func TestParseConflictTable(t *testing.T) {
	table, err := ParseConflictTable([]byte(sampleTable))
	if err != nil {
		t.Fatalf("ParseConflictTable: %v", err)
	}
	a := LaneSpec{1, 2}
	if !table.Conflicts(LaneSpec{3, 4}, a) || !table.Conflicts(a, LaneSpec{5, 6}) {
		t.Error("listed conflicts missing")
	}
	if table.Conflicts(LaneSpec{3, 4}, LaneSpec{5, 6}) {
		t.Error("unlisted pair reported as conflicting")
	}
	if table.Len() != 2 {
		t.Errorf("Len() = %d, want 2", table.Len())
	}

	if _, err := ParseConflictTable([]byte("conflicts: [")); err == nil {
		t.Error("expected an error for malformed YAML")
	}
}

func TestWatchConflictFileReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conflicts.yaml")
	if err := os.WriteFile(path, []byte("conflicts: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadConflictTable(path)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- WatchConflictFile(ctx, path, table, log.NewNopLogger()) }()

	a, b := LaneSpec{1, 2}, LaneSpec{3, 4}
	deadline := time.Now().Add(5 * time.Second)
	for !table.Conflicts(a, b) {
		if time.Now().After(deadline) {
			t.Fatal("conflict table was not reloaded")
		}
		// Rewritten until observed: the watcher may not be registered on the first write.
		if err := os.WriteFile(path, []byte(sampleTable), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("WatchConflictFile returned %v", err)
	}
}
