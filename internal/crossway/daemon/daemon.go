// Package daemon runs the per-vehicle control loop: it turns detector
// events into motion commands, consulting the configured coordinator.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/crossway/internal/pkg/util/fsm"
	"github.com/autopeer-io/crossway/pkg/log"
)

// DefaultEventQueueSize bounds detector events waiting for the control loop.
const DefaultEventQueueSize = 16

// ErrEventQueueFull is returned by Submit when the control loop is behind.
var ErrEventQueueFull = errors.New("daemon event queue is full")

// Config holds the loop timing.
type Config struct {
	// CycleTime is the control loop period.
	CycleTime time.Duration

	// ExitDwell is how long the vehicle keeps moving after EXITING.
	ExitDwell time.Duration
}

// StatusChange is reported to observers whenever the local VehicleStatus changes.
type StatusChange struct {
	From core.VehicleStatus
	To   core.VehicleStatus
	At   time.Time
}

// Status is a point-in-time view of the daemon.
type Status struct {
	State         string    `json:"state"`
	VehicleStatus string    `json:"vehicleStatus"`
	Granted       bool      `json:"granted"`
	Holding       bool      `json:"holding"`
	Since         time.Time `json:"since"`
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithObserver registers fn to be called from the control loop on every
// status change. fn must not block.
func WithObserver(fn func(StatusChange)) Option {
	return func(d *Daemon) {
		d.observers = append(d.observers, fn)
	}
}

// WithEventQueueSize overrides DefaultEventQueueSize.
func WithEventQueueSize(n int) Option {
	return func(d *Daemon) {
		if n > 0 {
			d.events = make(chan core.IntersectionEvent, n)
		}
	}
}

// Daemon is the client control loop. Only Run's goroutine touches the FSM,
// the coordinator and the motion controller.
type Daemon struct {
	cfg    Config
	coord  core.Coordinator
	motion core.MotionController
	clock  clock.WithTicker
	logger log.Logger

	events    chan core.IntersectionEvent
	fsm       *fsm.FSM
	observers []func(StatusChange)

	status      core.VehicleStatus
	statusSince time.Time
	holding     bool
	dwellUntil  time.Time

	mu       sync.RWMutex
	snapshot Status
}

// New creates a daemon in the idle state.
func New(cfg Config, coord core.Coordinator, motion core.MotionController, clk clock.WithTicker, logger log.Logger, opts ...Option) *Daemon {
	d := &Daemon{
		cfg:         cfg,
		coord:       coord,
		motion:      motion,
		clock:       clk,
		logger:      logger.WithName("daemon"),
		events:      make(chan core.IntersectionEvent, DefaultEventQueueSize),
		statusSince: clk.Now(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.fsm = d.newFSM()
	d.publishState(StateIdle)
	d.refreshSnapshot()
	return d
}

// Submit queues a detector event. It is safe for concurrent use and never blocks.
func (d *Daemon) Submit(ev core.IntersectionEvent) error {
	select {
	case d.events <- ev:
		return nil
	default:
		return fmt.Errorf("%w: dropped %s", ErrEventQueueFull, ev)
	}
}

// Emit is Submit shaped as a core.Detector callback.
func (d *Daemon) Emit(ev core.IntersectionEvent) {
	if err := d.Submit(ev); err != nil {
		d.logger.Error(err, "Detector event lost")
	}
}

// Run resumes the vehicle and drives the loop until ctx is done or an ERROR
// event arrives. A canceled ctx is noticed within one CycleTime and yields a
// nil error; an ERROR event stops the vehicle and returns core.ErrDetectorFault.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("Starting control loop", "cycleTime", d.cfg.CycleTime)
	d.motion.Resume()

	ticker := d.clock.NewTicker(d.cfg.CycleTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Control loop stopped", "state", d.fsm.Current())
			return nil
		case ev := <-d.events:
			d.handle(ctx, ev)
			if d.fsm.Is(StateError) {
				return core.ErrDetectorFault
			}
		case <-ticker.C():
			d.step(ctx)
		}
	}
}

// handle feeds one detector event into the state machine. Events that make
// no sense in the current state are logged and dropped.
func (d *Daemon) handle(ctx context.Context, ev core.IntersectionEvent) {
	name := fsmEvent(ev)
	if name == "" {
		d.logger.Info("Discarding event", "error", fmt.Errorf("%w: unknown event %d", core.ErrProtocolViolation, ev).Error())
		return
	}

	err := d.fsm.Event(ctx, name)

	var canceled fsm.CanceledError
	var invalid fsm.InvalidEventError
	switch {
	case err == nil:
	case errors.As(err, &canceled) && canceled.Err != nil:
		d.logger.Info("Discarding event", "event", ev.String(), "state", d.fsm.Current(), "error", canceled.Err.Error())
	case errors.As(err, &invalid):
		d.logger.Info("Discarding event", "event", ev.String(), "state", d.fsm.Current(),
			"error", fmt.Errorf("%w: %s in state %s", core.ErrProtocolViolation, ev, d.fsm.Current()).Error())
	case fsmutil.IsRealError(err):
		d.logger.Error(err, "State transition failed", "event", ev.String(), "state", d.fsm.Current())
	}
}

// step runs one cycle: coordinator work, the pending grant and the exit dwell.
func (d *Daemon) step(ctx context.Context) {
	d.coord.Step(ctx)

	switch d.fsm.Current() {
	case StateEntering:
		if d.holding && d.coord.IsGranted() {
			d.cross()
		}
	case StateExiting:
		if !d.clock.Now().Before(d.dwellUntil) {
			if err := d.fsm.Event(ctx, EventFinish); fsmutil.IsRealError(err) {
				d.logger.Error(err, "Failed to finish exit")
			}
		}
	}
	d.refreshSnapshot()
}

// cross moves a granted vehicle into the intersection.
func (d *Daemon) cross() {
	d.holding = false
	d.setStatus(core.StatusCrossing)
	d.coord.Announce(core.StatusCrossing)
	d.motion.Resume()
	d.logger.Info("Crossing the intersection")
}

func (d *Daemon) setStatus(s core.VehicleStatus) {
	if s == d.status {
		return
	}
	change := StatusChange{From: d.status, To: s, At: d.clock.Now()}
	d.status = s
	d.statusSince = change.At
	for _, fn := range d.observers {
		fn(change)
	}
	d.refreshSnapshot()
}

func (d *Daemon) publishState(state string) {
	for _, s := range AllStates {
		v := 0.0
		if s == state {
			v = 1
		}
		metrics.DaemonState.WithLabelValues(s).Set(v)
	}
	d.mu.Lock()
	d.snapshot.State = state
	d.mu.Unlock()
}

func (d *Daemon) refreshSnapshot() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshot.VehicleStatus = d.status.String()
	d.snapshot.Granted = d.coord.IsGranted()
	d.snapshot.Holding = d.holding
	d.snapshot.Since = d.statusSince
}

// Status returns the latest snapshot. Safe for concurrent use.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot
}
