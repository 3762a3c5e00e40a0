package arbiter

import (
	"fmt"
	"slices"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/pkg/options"
)

// Policy decides whether a waiting vehicle may enter.
type Policy interface {
	// Admit reports whether lane may be granted while the vehicles on
	// inside hold the intersection and the vehicles on ahead, which asked
	// earlier, are still waiting.
	Admit(lane core.LaneSpec, inside, ahead []core.LaneSpec) bool

	Name() string
}

// Sequential admits one vehicle at a time in arrival order.
type Sequential struct{}

func (Sequential) Admit(_ core.LaneSpec, inside, ahead []core.LaneSpec) bool {
	return len(inside) == 0 && len(ahead) == 0
}

func (Sequential) Name() string { return options.PolicySequential }

// Parallel admits a vehicle whose lane conflicts neither with a vehicle
// inside nor with an earlier waiting one. Skipping only non-conflicting
// waiters keeps the queue free of starvation.
type Parallel struct {
	Conflicts core.ConflictChecker
}

func (p Parallel) Admit(lane core.LaneSpec, inside, ahead []core.LaneSpec) bool {
	for _, other := range inside {
		if p.Conflicts.Conflicts(lane, other) {
			return false
		}
	}
	for _, other := range ahead {
		if p.Conflicts.Conflicts(lane, other) {
			return false
		}
	}
	return true
}

func (Parallel) Name() string { return options.PolicyParallel }

// Scheduled is implemented by policies whose verdicts change with time
// alone. NextChange returns the next instant after now at which a waiting
// vehicle may become admissible.
type Scheduled interface {
	NextChange(now time.Time) time.Time
}

// Signal is the light shown by a TrafficLight.
type Signal struct {
	Enabled    []int     `json:"enabled"`
	Green      bool      `json:"green"`
	NextChange time.Time `json:"nextChange"`
}

type signaler interface {
	Signal(now time.Time) Signal
}

// TrafficLight gives each road the intersection in turn for Rotation. During
// the last Transition of a turn, the yellow phase, nobody is admitted so
// vehicles inside can clear before the next road gets green. Vehicles on the
// enabled road are still checked against the conflict table.
type TrafficLight struct {
	Conflicts  core.ConflictChecker
	Roads      [][]int // entry points of each road, in rotation order
	Rotation   time.Duration
	Transition time.Duration

	clock clock.PassiveClock
	start time.Time
}

var (
	_ Scheduled = (*TrafficLight)(nil)
	_ signaler  = (*TrafficLight)(nil)
)

// NewTrafficLight starts the rotation on the first road now.
func NewTrafficLight(conflicts core.ConflictChecker, roads [][]int, rotation, transition time.Duration, clk clock.PassiveClock) *TrafficLight {
	return &TrafficLight{
		Conflicts:  conflicts,
		Roads:      roads,
		Rotation:   rotation,
		Transition: transition,
		clock:      clk,
		start:      clk.Now(),
	}
}

// phase returns the enabled road and the time left until the next rotation.
func (p *TrafficLight) phase(now time.Time) (int, time.Duration) {
	elapsed := max(now.Sub(p.start), 0)
	turn := int64(elapsed / p.Rotation)
	return int(turn % int64(len(p.Roads))), p.Rotation - elapsed%p.Rotation
}

func (p *TrafficLight) onRoad(lane core.LaneSpec, road int) bool {
	return slices.Contains(p.Roads[road], lane.EntryPoint)
}

func (p *TrafficLight) Admit(lane core.LaneSpec, inside, ahead []core.LaneSpec) bool {
	road, left := p.phase(p.clock.Now())
	if left < p.Transition || !p.onRoad(lane, road) {
		return false
	}
	for _, other := range inside {
		if p.Conflicts.Conflicts(lane, other) {
			return false
		}
	}
	// Waiters on a red road must not hold up the green one.
	for _, other := range ahead {
		if p.onRoad(other, road) && p.Conflicts.Conflicts(lane, other) {
			return false
		}
	}
	return true
}

func (p *TrafficLight) NextChange(now time.Time) time.Time {
	_, left := p.phase(now)
	return now.Add(left)
}

func (p *TrafficLight) Signal(now time.Time) Signal {
	road, left := p.phase(now)
	return Signal{
		Enabled:    slices.Clone(p.Roads[road]),
		Green:      left >= p.Transition,
		NextChange: now.Add(left),
	}
}

func (*TrafficLight) Name() string { return options.PolicyTrafficLight }

// NewPolicy builds the policy selected by opts.
func NewPolicy(opts *options.ArbiterOptions, conflicts core.ConflictChecker, clk clock.PassiveClock) (Policy, error) {
	switch opts.Policy {
	case options.PolicySequential:
		return Sequential{}, nil
	case options.PolicyParallel:
		return Parallel{Conflicts: conflicts}, nil
	case options.PolicyTrafficLight:
		roads, err := opts.RoadEntries()
		if err != nil {
			return nil, err
		}
		if opts.RotationInterval <= 0 || opts.TransitionPeriod < 0 || opts.TransitionPeriod >= opts.RotationInterval {
			return nil, fmt.Errorf("traffic light needs 0 <= transition (%s) < rotation (%s)", opts.TransitionPeriod, opts.RotationInterval)
		}
		return NewTrafficLight(conflicts, roads, opts.RotationInterval, opts.TransitionPeriod, clk), nil
	default:
		return nil, fmt.Errorf("unknown arbiter policy %q", opts.Policy)
	}
}
