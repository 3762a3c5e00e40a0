// Package arbiter holds the admission state of the centralized
// intersection manager: who is inside and who is waiting.
package arbiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/internal/pkg/metrics"
	"github.com/autopeer-io/crossway/pkg/log"
)

// Occupant is a vehicle the arbiter granted access to.
type Occupant struct {
	VehicleID   core.PeerID   `json:"vehicleID"`
	Lane        core.LaneSpec `json:"lane"`
	RequestTime time.Time     `json:"requestTime"`
	GrantedAt   time.Time     `json:"grantedAt"`
}

// Waiter is a vehicle queued for access.
type Waiter struct {
	VehicleID   core.PeerID   `json:"vehicleID"`
	Lane        core.LaneSpec `json:"lane"`
	RequestTime time.Time     `json:"requestTime"`
	QueuedAt    time.Time     `json:"queuedAt"`
}

// State is a snapshot of the arbiter.
type State struct {
	Policy string     `json:"policy"`
	Signal *Signal    `json:"signal,omitempty"`
	Inside []Occupant `json:"inside"`
	Queue  []Waiter   `json:"queue"`
}

// Grants are the GrantAccess messages to publish, in grant order.
type Grants []core.GrantAccess

// IDs returns the granted vehicles.
func (g Grants) IDs() []core.PeerID {
	if len(g) == 0 {
		return nil
	}
	ids := make([]core.PeerID, len(g))
	for i := range g {
		ids[i] = g[i].VehicleID
	}
	return ids
}

// Arbiter is safe for concurrent use. Request, Exit, Forget and Reevaluate
// return the grants that must be published as a result.
type Arbiter struct {
	policy Policy
	clock  clock.PassiveClock
	logger log.Logger

	mu     sync.Mutex
	inside map[core.PeerID]*Occupant
	order  []core.PeerID // grant order of inside, for stable snapshots
	queue  []*Waiter
}

// New creates an empty arbiter.
func New(policy Policy, clk clock.PassiveClock, logger log.Logger) *Arbiter {
	return &Arbiter{
		policy: policy,
		clock:  clk,
		logger: logger.WithName("arbiter"),
		inside: make(map[core.PeerID]*Occupant),
	}
}

// Request handles a RequestAccess.
//
// A repeated request from a vehicle already inside is answered with a
// fresh grant, since the vehicle only retries when the first one was lost.
// A request for a newer episode from a vehicle still inside means its
// Exiting was lost; the old occupancy is closed first.
func (a *Arbiter) Request(req *core.RequestAccess) Grants {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := req.VehicleID
	if occ, ok := a.inside[id]; ok {
		if !req.RequestTime.After(occ.RequestTime) {
			a.logger.Info("Repeating grant", "vehicleID", string(id))
			return Grants{{VehicleID: id, RequestTime: occ.RequestTime}}
		}
		a.logger.Warn("New request from a vehicle still inside, assuming its exit was lost", "vehicleID", string(id))
		a.release(id)
	}

	for _, w := range a.queue {
		if w.VehicleID == id {
			if req.RequestTime.After(w.RequestTime) {
				w.Lane = req.Lane()
				w.RequestTime = req.RequestTime
			}
			return a.admit()
		}
	}

	a.queue = append(a.queue, &Waiter{
		VehicleID:   id,
		Lane:        req.Lane(),
		RequestTime: req.RequestTime,
		QueuedAt:    a.clock.Now(),
	})
	a.logger.Info("Vehicle queued", "vehicleID", string(id), "lane", req.Lane().String(), "queueLength", len(a.queue))
	return a.admit()
}

// Exit handles an Exiting notification.
func (a *Arbiter) Exit(id core.PeerID) (Grants, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.inside[id]; !ok {
		if a.dequeue(id) {
			a.logger.Info("Queued vehicle exited without a grant", "vehicleID", string(id))
			return a.admit(), nil
		}
		return nil, fmt.Errorf("%w: exit from %s which holds no access", core.ErrProtocolViolation, id)
	}
	a.release(id)
	return a.admit(), nil
}

// Forget drops a waiting vehicle, for example when it went offline. Vehicles
// inside are kept until they exit.
func (a *Arbiter) Forget(id core.PeerID) Grants {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.dequeue(id) {
		return nil
	}
	a.logger.Info("Dropped waiting vehicle", "vehicleID", string(id))
	return a.admit()
}

// Reevaluate offers the queue to the policy again. Time-driven policies
// need it when their verdicts change without any vehicle event.
func (a *Arbiter) Reevaluate() Grants {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.admit()
}

// Run re-offers the queue every time a Scheduled policy changes phase and
// hands the resulting grants to publish. It returns when ctx is done. For
// other policies it only waits.
func (a *Arbiter) Run(ctx context.Context, clk clock.Clock, publish func(context.Context, Grants)) error {
	sched, ok := a.policy.(Scheduled)
	if !ok {
		<-ctx.Done()
		return nil
	}
	for {
		now := clk.Now()
		t := clk.NewTimer(sched.NextChange(now).Sub(now))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C():
		}
		if sig, ok := a.policy.(signaler); ok {
			s := sig.Signal(clk.Now())
			a.logger.Info("Signal changed", "roads", s.Enabled, "green", s.Green, "next", s.NextChange)
		}
		if g := a.Reevaluate(); len(g) > 0 {
			publish(ctx, g)
		}
	}
}

// Snapshot returns the current state.
func (a *Arbiter) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := State{
		Policy: a.policy.Name(),
		Inside: make([]Occupant, 0, len(a.order)),
		Queue:  make([]Waiter, 0, len(a.queue)),
	}
	for _, id := range a.order {
		s.Inside = append(s.Inside, *a.inside[id])
	}
	for _, w := range a.queue {
		s.Queue = append(s.Queue, *w)
	}
	if sig, ok := a.policy.(signaler); ok {
		v := sig.Signal(a.clock.Now())
		s.Signal = &v
	}
	return s
}

// admit grants every waiter the policy lets in, in queue order.
func (a *Arbiter) admit() Grants {
	var granted Grants
	var ahead []core.LaneSpec
	now := a.clock.Now()

	remaining := a.queue[:0]
	for _, w := range a.queue {
		if !a.policy.Admit(w.Lane, a.insideLanes(), ahead) {
			ahead = append(ahead, w.Lane)
			remaining = append(remaining, w)
			continue
		}
		a.inside[w.VehicleID] = &Occupant{
			VehicleID:   w.VehicleID,
			Lane:        w.Lane,
			RequestTime: w.RequestTime,
			GrantedAt:   now,
		}
		a.order = append(a.order, w.VehicleID)
		granted = append(granted, core.GrantAccess{VehicleID: w.VehicleID, RequestTime: w.RequestTime})
		a.logger.Info("Granting access", "vehicleID", string(w.VehicleID), "lane", w.Lane.String(), "waited", now.Sub(w.QueuedAt))
	}
	for i := len(remaining); i < len(a.queue); i++ {
		a.queue[i] = nil
	}
	a.queue = remaining

	a.updateGauges()
	return granted
}

func (a *Arbiter) release(id core.PeerID) {
	occ := a.inside[id]
	delete(a.inside, id)
	for i, v := range a.order {
		if v == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	held := a.clock.Since(occ.GrantedAt)
	metrics.ArbiterOccupancySeconds.Observe(held.Seconds())
	a.logger.Info("Vehicle left", "vehicleID", string(id), "occupied", held)
	a.updateGauges()
}

func (a *Arbiter) dequeue(id core.PeerID) bool {
	for i, w := range a.queue {
		if w.VehicleID == id {
			a.queue = append(a.queue[:i], a.queue[i+1:]...)
			a.updateGauges()
			return true
		}
	}
	return false
}

func (a *Arbiter) insideLanes() []core.LaneSpec {
	lanes := make([]core.LaneSpec, 0, len(a.order))
	for _, id := range a.order {
		lanes = append(lanes, a.inside[id].Lane)
	}
	return lanes
}

func (a *Arbiter) updateGauges() {
	metrics.ArbiterOccupancy.Set(float64(len(a.inside)))
	metrics.ArbiterQueueLength.Set(float64(len(a.queue)))
}
