// Package adhoc implements decentralized intersection access: vehicles
// gossip their status in beacons and each one decides on its own when the
// intersection is clear.
//
// Known gap: a neighbor that stops being heard for longer than the eviction
// threshold is forgotten, even if it is still physically crossing (for
// example behind a network partition). The local vehicle may then grant
// itself access. This keeps a vehicle from waiting forever on a peer that
// is gone for good.
package adhoc

import (
	"context"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/internal/crossway/neighbor"
	"github.com/autopeer-io/crossway/internal/crossway/safety"
	"github.com/autopeer-io/crossway/internal/pkg/metrics"
	"github.com/autopeer-io/crossway/pkg/log"
)

// Broadcaster publishes the local beacon. *beacon.Channel implements it.
type Broadcaster interface {
	SetLocalBeacon(b core.Beacon)
}

// Config holds the ad hoc tuning knobs.
type Config struct {
	Self    core.PeerID
	Address string
	Port    int
	Lane    core.LaneSpec

	// MinSafeDuration is how long the intersection must continuously look
	// clear before access is taken.
	MinSafeDuration time.Duration

	// EvictAfter is beacon.max-period times beacon.max-lost.
	EvictAfter time.Duration
}

// Coordinator is the ad hoc core.Coordinator. Apart from OnBeacon, which
// runs on the beacon receiver goroutine and only touches the neighbor
// table, every method must be called from the daemon's control loop.
type Coordinator struct {
	cfg       Config
	table     *neighbor.Table
	out       Broadcaster
	conflicts core.ConflictChecker
	clock     clock.PassiveClock
	logger    log.Logger

	status    core.VehicleStatus
	requestTS time.Time
	seeking   bool
	granted   bool
	safeSince time.Time
	blocker   core.PeerID
}

var _ core.Coordinator = (*Coordinator)(nil)

// New creates a coordinator and publishes an IDLE beacon.
func New(cfg Config, table *neighbor.Table, out Broadcaster, conflicts core.ConflictChecker, clk clock.PassiveClock, logger log.Logger) *Coordinator {
	c := &Coordinator{
		cfg:       cfg,
		table:     table,
		out:       out,
		conflicts: conflicts,
		clock:     clk,
		logger:    logger.WithName("adhoc"),
	}
	c.publish()
	return c
}

// OnBeacon records a peer's beacon. It is the beacon channel's listener.
func (c *Coordinator) OnBeacon(b *core.Beacon) {
	if b.SenderID == c.cfg.Self {
		return
	}
	c.table.Update(neighbor.FromBeacon(b))
}

// SeekAccess enters REQUESTING with a fresh request timestamp and takes
// the first safety sample.
func (c *Coordinator) SeekAccess(ctx context.Context) {
	if c.seeking {
		return
	}
	now := c.clock.Now()
	c.seeking = true
	c.granted = false
	c.safeSince = time.Time{}
	c.requestTS = now
	c.status = core.StatusRequesting
	c.publish()

	c.logger.Info("Requesting access", "lane", c.cfg.Lane.String(), "requestTimestamp", now)
	c.sample(now)
}

func (c *Coordinator) IsGranted() bool {
	return c.granted
}

// Announce publishes status. The request timestamp is kept for every status
// of the episode and dropped when the vehicle goes back to IDLE.
func (c *Coordinator) Announce(status core.VehicleStatus) {
	if status == c.status {
		return
	}
	c.status = status
	if status == core.StatusIdle {
		c.requestTS = time.Time{}
	}
	c.publish()
}

// NotifyExiting ends the episode and goes back to IDLE.
func (c *Coordinator) NotifyExiting(ctx context.Context) {
	c.seeking = false
	c.granted = false
	c.safeSince = time.Time{}
	c.blocker = ""
	c.Announce(core.StatusIdle)
	c.logger.Info("Episode complete")
}

// Step evicts silent neighbors and, while access is pending, samples the
// safety predicate.
func (c *Coordinator) Step(ctx context.Context) {
	for _, r := range c.table.EvictOlderThan(c.cfg.EvictAfter) {
		c.logger.Warn("Evicted silent neighbor", "peer", string(r.PeerID), "lastStatus", r.Status.String(),
			"lastSeen", r.LastSeen)
		metrics.NeighborEvictionsTotal.Inc()
	}
	metrics.Neighbors.Set(float64(c.table.Len()))

	if c.seeking && !c.granted {
		c.sample(c.clock.Now())
	}
}

// sample applies the hysteresis: safeSince is set by the first safe reading,
// cleared by any unsafe one, and access is granted once it is old enough.
func (c *Coordinator) sample(now time.Time) {
	v := safety.SafeToCross(safety.Self{
		ID:               c.cfg.Self,
		Lane:             c.cfg.Lane,
		RequestTimestamp: c.requestTS,
	}, c.table.Snapshot(), c.conflicts)

	if !v.Safe {
		if !c.safeSince.IsZero() || c.blocker != v.Blocker.PeerID {
			c.logger.Info("Not safe to cross", "blocker", string(v.Blocker.PeerID), "blockerStatus", v.Blocker.Status.String())
		}
		c.safeSince = time.Time{}
		c.blocker = v.Blocker.PeerID
		return
	}

	c.blocker = ""
	if c.safeSince.IsZero() {
		c.safeSince = now
		c.logger.Debug("Intersection looks clear", "since", now)
	}
	if held := now.Sub(c.safeSince); held >= c.cfg.MinSafeDuration {
		c.granted = true
		c.status = core.StatusCrossing
		c.publish()
		c.logger.Info("Granting self access", "safeDuration", held, "minSafeDuration", c.cfg.MinSafeDuration)
		metrics.AccessGrantedTotal.WithLabelValues("adhoc").Inc()
		metrics.AccessWaitSeconds.WithLabelValues("adhoc").Observe(now.Sub(c.requestTS).Seconds())
	}
}

func (c *Coordinator) publish() {
	c.out.SetLocalBeacon(c.LocalBeacon())
}

// LocalBeacon returns the beacon describing the current local state.
func (c *Coordinator) LocalBeacon() core.Beacon {
	return core.Beacon{
		SenderID:         c.cfg.Self,
		SenderAddress:    c.cfg.Address,
		SenderPort:       c.cfg.Port,
		Lane:             c.cfg.Lane,
		Status:           c.status,
		RequestTimestamp: c.requestTS,
	}
}

// SafeSince returns the start of the current safe streak, zero if none.
func (c *Coordinator) SafeSince() time.Time {
	return c.safeSince
}

// Neighbors returns a snapshot of the neighbor table.
func (c *Coordinator) Neighbors() []neighbor.Record {
	return c.table.Snapshot()
}
