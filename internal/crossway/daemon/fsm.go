package daemon

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/crossway/internal/crossway/core"
	fsmutil "github.com/autopeer-io/crossway/internal/pkg/util/fsm"
)

// Daemon states.
const (
	StateIdle        = "idle"
	StateApproaching = "approaching"
	StateEntering    = "entering"
	StateExiting     = "exiting"
	StateError       = "error"
)

// AllStates lists every state, for metrics.
var AllStates = []string{StateIdle, StateApproaching, StateEntering, StateExiting, StateError}

const (
	// EventApproach starts an access episode.
	EventApproach = "event_approach"
	// EventEnter arrives at the stop line.
	EventEnter = "event_enter"
	// EventExit passes the exit marker.
	EventExit = "event_exit"
	// EventFinish (internal) ends the exit dwell.
	EventFinish = "event_finish"
	// EventFail stops the vehicle for good.
	EventFail = "event_fail"
)

// fsmEvent maps detector events to FSM events.
func fsmEvent(ev core.IntersectionEvent) string {
	switch ev {
	case core.EventApproaching:
		return EventApproach
	case core.EventEntering:
		return EventEnter
	case core.EventExiting:
		return EventExit
	case core.EventError:
		return EventFail
	default:
		return ""
	}
}

func (d *Daemon) newFSM() *fsm.FSM {
	events := fsm.Events{
		{Name: EventApproach, Src: []string{StateIdle}, Dst: StateApproaching},
		// From idle the approach was missed: request late and hold at the line.
		{Name: EventEnter, Src: []string{StateIdle, StateApproaching}, Dst: StateEntering},
		{Name: EventExit, Src: []string{StateEntering}, Dst: StateExiting},
		{Name: EventFinish, Src: []string{StateExiting}, Dst: StateIdle},
		{Name: EventFail, Src: []string{StateIdle, StateApproaching, StateEntering, StateExiting}, Dst: StateError},
	}

	callbacks := fsm.Callbacks{
		// Guards
		"before_" + EventExit: d.guardExit,

		// Side-Effects
		"enter_" + StateApproaching: fsmutil.WrapEvent(d.actionEnterApproaching),
		"enter_" + StateEntering:    fsmutil.WrapEvent(d.actionEnterEntering),
		"enter_" + StateExiting:     fsmutil.WrapEvent(d.actionEnterExiting),
		"enter_" + StateIdle:        fsmutil.WrapEvent(d.actionEnterIdle),
		"enter_" + StateError:       fsmutil.WrapEvent(d.actionEnterError),
		"enter_state":               d.recordState,
	}

	return fsm.NewFSM(StateIdle, events, callbacks)
}

// guardExit refuses EXITING for a vehicle that never obtained access.
func (d *Daemon) guardExit(ctx context.Context, e *fsm.Event) {
	if !d.coord.IsGranted() {
		e.Cancel(fmt.Errorf("%w: exit event before access was granted", core.ErrProtocolViolation))
	}
}

func (d *Daemon) actionEnterApproaching(ctx context.Context, e *fsm.Event) error {
	d.setStatus(core.StatusRequesting)
	d.coord.SeekAccess(ctx)
	return nil
}

func (d *Daemon) actionEnterEntering(ctx context.Context, e *fsm.Event) error {
	if e.Src == StateIdle {
		d.logger.Warn("Entering without a prior approach, requesting access now")
		d.setStatus(core.StatusRequesting)
		d.coord.SeekAccess(ctx)
	}
	if d.coord.IsGranted() {
		d.cross()
		return nil
	}
	d.logger.Info("Holding at the intersection until access is granted")
	d.motion.Pause()
	d.holding = true
	return nil
}

func (d *Daemon) actionEnterExiting(ctx context.Context, e *fsm.Event) error {
	d.setStatus(core.StatusExiting)
	d.coord.Announce(core.StatusExiting)
	d.dwellUntil = d.clock.Now().Add(d.cfg.ExitDwell)
	return nil
}

func (d *Daemon) actionEnterIdle(ctx context.Context, e *fsm.Event) error {
	d.motion.Pause()
	d.coord.NotifyExiting(ctx)
	d.setStatus(core.StatusIdle)
	d.logger.Info("Left the intersection")
	return nil
}

func (d *Daemon) actionEnterError(ctx context.Context, e *fsm.Event) error {
	d.motion.Stop()
	d.logger.Error(core.ErrDetectorFault, "Vehicle stopped", "from", e.Src)
	return nil
}

func (d *Daemon) recordState(ctx context.Context, e *fsm.Event) {
	d.logger.Info("State changed", "from", e.Src, "to", e.Dst, "event", e.Event)
	d.publishState(e.Dst)
}
