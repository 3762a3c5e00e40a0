package arbiter

import (
	"errors"
	"reflect"
	"testing"
	"time"

	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/pkg/log"
	"github.com/autopeer-io/crossway/pkg/options"
)

var (
	epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	northbound = core.LaneSpec{EntryPoint: core.North, ExitPoint: core.North}
	southbound = core.LaneSpec{EntryPoint: core.South, ExitPoint: core.South}
	eastbound  = core.LaneSpec{EntryPoint: core.East, ExitPoint: core.East}
	westbound  = core.LaneSpec{EntryPoint: core.West, ExitPoint: core.West}
)

func request(id string, lane core.LaneSpec, at time.Duration) *core.RequestAccess {
	return &core.RequestAccess{
		VehicleID:   core.PeerID(id),
		EntryPoint:  lane.EntryPoint,
		ExitPoint:   lane.ExitPoint,
		RequestTime: epoch.Add(at),
	}
}

func newArbiter(t *testing.T, policy string) (*Arbiter, *clocktesting.FakeClock) {
	t.Helper()
	opts := options.NewArbiterOptions()
	opts.Policy = policy
	clk := clocktesting.NewFakeClock(epoch)
	p, err := NewPolicy(opts, core.FourWayConflictTable(), clk)
	if err != nil {
		t.Fatal(err)
	}
	return New(p, clk, log.NewNopLogger()), clk
}

func ids(s ...string) []core.PeerID {
	if len(s) == 0 {
		return nil
	}
	out := make([]core.PeerID, len(s))
	for i, v := range s {
		out[i] = core.PeerID(v)
	}
	return out
}

func TestSequentialOneAtATime(t *testing.T) {
	a, _ := newArbiter(t, "sequential")

	if got := a.Request(request("a", northbound, 0)); !reflect.DeepEqual(got.IDs(), ids("a")) {
		t.Fatalf("first request granted %v", got)
	}
	// Disjoint lane, still has to wait.
	if got := a.Request(request("b", southbound, time.Second)); got != nil {
		t.Fatalf("second request granted %v while a is inside", got)
	}
	if got := a.Request(request("c", eastbound, 2*time.Second)); got != nil {
		t.Fatalf("third request granted %v while a is inside", got)
	}

	got, err := a.Exit("a")
	if err != nil || !reflect.DeepEqual(got.IDs(), ids("b")) {
		t.Fatalf("Exit(a) = %v, %v; want [b]", got, err)
	}
	got, err = a.Exit("b")
	if err != nil || !reflect.DeepEqual(got.IDs(), ids("c")) {
		t.Fatalf("Exit(b) = %v, %v; want [c]", got, err)
	}
}

func TestParallelAdmitsDisjointLanes(t *testing.T) {
	a, _ := newArbiter(t, "parallel")

	if got := a.Request(request("a", northbound, 0)); !reflect.DeepEqual(got.IDs(), ids("a")) {
		t.Fatalf("a granted %v", got)
	}
	if got := a.Request(request("b", southbound, time.Second)); !reflect.DeepEqual(got.IDs(), ids("b")) {
		t.Fatalf("disjoint lane not granted alongside: %v", got)
	}
	if got := a.Request(request("c", eastbound, 2*time.Second)); got != nil {
		t.Fatalf("conflicting lane granted: %v", got)
	}

	if got, _ := a.Exit("a"); got != nil {
		t.Fatalf("c granted while b still conflicts: %v", got)
	}
	if got, _ := a.Exit("b"); !reflect.DeepEqual(got.IDs(), ids("c")) {
		t.Fatalf("Exit(b) granted %v, want [c]", got)
	}

	s := a.Snapshot()
	if s.Policy != "parallel" || len(s.Inside) != 1 || s.Inside[0].VehicleID != "c" || len(s.Queue) != 0 {
		t.Errorf("Snapshot() = %+v", s)
	}
}

func TestParallelDoesNotOvertakeConflictingWaiter(t *testing.T) {
	a, _ := newArbiter(t, "parallel")

	a.Request(request("a", eastbound, 0))
	// b conflicts with a and waits; c would fit next to a but conflicts with b.
	if got := a.Request(request("b", northbound, time.Second)); got != nil {
		t.Fatalf("b granted %v", got)
	}
	if got := a.Request(request("c", westbound, 2*time.Second)); got != nil {
		t.Fatalf("c overtook b: %v", got)
	}

	if got, _ := a.Exit("a"); !reflect.DeepEqual(got.IDs(), ids("b")) {
		t.Errorf("Exit(a) granted %v, want [b]", got)
	}
	if got, _ := a.Exit("b"); !reflect.DeepEqual(got.IDs(), ids("c")) {
		t.Errorf("Exit(b) granted %v, want [c]", got)
	}
}

func TestDuplicateRequestRegranted(t *testing.T) {
	a, _ := newArbiter(t, "sequential")

	a.Request(request("a", northbound, 0))
	if got := a.Request(request("a", northbound, 0)); !reflect.DeepEqual(got.IDs(), ids("a")) {
		t.Errorf("retry from granted vehicle answered with %v", got)
	}

	a.Request(request("b", eastbound, time.Second))
	if got := a.Request(request("b", eastbound, time.Second)); got != nil {
		t.Errorf("retry from waiting vehicle answered with %v", got)
	}
	if n := len(a.Snapshot().Queue); n != 1 {
		t.Errorf("queue length %d after a duplicate, want 1", n)
	}
}

func TestGrantsEchoRequestTime(t *testing.T) {
	a, _ := newArbiter(t, "sequential")

	got := a.Request(request("a", northbound, time.Second))
	if len(got) != 1 || !got[0].RequestTime.Equal(epoch.Add(time.Second)) {
		t.Fatalf("grant = %+v, want request time %v", got, epoch.Add(time.Second))
	}
	a.Request(request("b", eastbound, 2*time.Second))
	got, _ = a.Exit("a")
	if len(got) != 1 || got[0].VehicleID != "b" || !got[0].RequestTime.Equal(epoch.Add(2*time.Second)) {
		t.Fatalf("grant on exit = %+v", got)
	}
	// A late retry of b's request is answered for b's episode.
	got = a.Request(request("b", eastbound, 2*time.Second))
	if len(got) != 1 || !got[0].RequestTime.Equal(epoch.Add(2*time.Second)) {
		t.Errorf("repeated grant = %+v", got)
	}
}

func TestNewEpisodeClosesLostExit(t *testing.T) {
	a, clk := newArbiter(t, "sequential")

	a.Request(request("a", northbound, 0))
	clk.SetTime(epoch.Add(10 * time.Second))

	// a's Exiting never arrived; its next request frees the intersection.
	if got := a.Request(request("a", eastbound, 10*time.Second)); !reflect.DeepEqual(got.IDs(), ids("a")) {
		t.Fatalf("new episode granted %v", got)
	}
	s := a.Snapshot()
	if len(s.Inside) != 1 || s.Inside[0].Lane != eastbound || !s.Inside[0].GrantedAt.Equal(clk.Now()) {
		t.Errorf("Snapshot().Inside = %+v", s.Inside)
	}
}

func TestExitWithoutAccess(t *testing.T) {
	a, _ := newArbiter(t, "sequential")

	if _, err := a.Exit("ghost"); !errors.Is(err, core.ErrProtocolViolation) {
		t.Errorf("Exit(ghost) error = %v, want ErrProtocolViolation", err)
	}

	a.Request(request("a", northbound, 0))
	a.Request(request("b", eastbound, time.Second))
	got, err := a.Exit("b")
	if err != nil || got != nil {
		t.Errorf("Exit of a waiting vehicle = %v, %v", got, err)
	}
	if n := len(a.Snapshot().Queue); n != 0 {
		t.Errorf("queue length %d, want 0", n)
	}
}

func TestForget(t *testing.T) {
	a, _ := newArbiter(t, "parallel")

	a.Request(request("a", eastbound, 0))
	a.Request(request("b", northbound, time.Second))
	a.Request(request("c", westbound, 2*time.Second))

	if got := a.Forget("a"); got != nil {
		t.Errorf("Forget of an occupant changed grants: %v", got)
	}
	// With b gone, c fits next to a.
	if got := a.Forget("b"); !reflect.DeepEqual(got.IDs(), ids("c")) {
		t.Errorf("Forget(b) granted %v, want [c]", got)
	}
}

func TestNewPolicyUnknown(t *testing.T) {
	opts := options.NewArbiterOptions()
	opts.Policy = "roundabout"
	if _, err := NewPolicy(opts, nil, clocktesting.NewFakePassiveClock(epoch)); err == nil {
		t.Error("NewPolicy accepted an unknown name")
	}
}
