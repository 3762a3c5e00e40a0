// Package centralized implements intersection access granted by a remote
// arbiter.
//
// The Exiting message is sent once and never acknowledged. If it is lost
// the arbiter keeps counting the vehicle as inside until it sees a new
// request from it.
package centralized

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/internal/pkg/metrics"
	"github.com/autopeer-io/crossway/pkg/log"
)

// inboxSize bounds grants buffered between two control-loop steps.
const inboxSize = 8

// Submitter queues a message for delivery without blocking.
// *reliable.Channel implements it.
type Submitter interface {
	Submit(msg core.Message, done func(error)) bool
}

// Config holds the centralized tuning knobs.
type Config struct {
	Self    core.PeerID
	Address string
	Port    int
	Lane    core.LaneSpec

	// RequestTimeout is the fixed interval between two RequestAccess sends
	// while no grant has arrived.
	RequestTimeout time.Duration
}

// Coordinator is the centralized core.Coordinator. OnMessage may be called
// from any goroutine; everything else belongs to the daemon's control loop.
type Coordinator struct {
	cfg    Config
	out    Submitter
	clock  clock.PassiveClock
	logger log.Logger

	inbox chan core.Message

	status      core.VehicleStatus
	seeking     bool
	granted     bool
	exitSent    bool
	requestTime time.Time
	lastSent    time.Time
	retries     int
}

var _ core.Coordinator = (*Coordinator)(nil)

// New creates an idle coordinator.
func New(cfg Config, out Submitter, clk clock.PassiveClock, logger log.Logger) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		out:    out,
		clock:  clk,
		logger: logger.WithName("centralized"),
		inbox:  make(chan core.Message, inboxSize),
	}
}

// OnMessage hands an inbound arbiter message to the next Step. It never blocks.
func (c *Coordinator) OnMessage(msg core.Message) {
	select {
	case c.inbox <- msg:
	default:
		c.logger.Warn("Inbox full, dropping arbiter message", "kind", msg.Kind().String())
	}
}

// SeekAccess sends the first RequestAccess of the episode.
func (c *Coordinator) SeekAccess(ctx context.Context) {
	if c.seeking {
		return
	}
	c.seeking = true
	c.drainInbox()
	c.granted = false
	c.exitSent = false
	c.retries = 0
	c.requestTime = c.clock.Now()
	c.status = core.StatusRequesting

	c.logger.Info("Requesting access from arbiter", "lane", c.cfg.Lane.String())
	c.sendRequest("initial")
}

// drainInbox drops arbiter messages left over from the previous episode.
func (c *Coordinator) drainInbox() {
	for {
		select {
		case msg := <-c.inbox:
			c.logger.Debug("Dropping message from a previous episode", "kind", msg.Kind().String())
		default:
			return
		}
	}
}

func (c *Coordinator) IsGranted() bool {
	return c.granted
}

// Announce records the local status. The arbiter learns about state changes
// only through requests and the exit notification.
func (c *Coordinator) Announce(status core.VehicleStatus) {
	c.status = status
}

// NotifyExiting sends the single Exiting message of the episode.
func (c *Coordinator) NotifyExiting(ctx context.Context) {
	if c.seeking && !c.exitSent {
		c.exitSent = true
		msg := &core.Exiting{
			VehicleID:      c.cfg.Self,
			VehicleAddress: c.cfg.Address,
			VehiclePort:    c.cfg.Port,
		}
		c.out.Submit(msg, func(err error) {
			if err != nil {
				c.logger.Warn("Exiting notification not delivered, the arbiter will not retry it", "error", err.Error())
			}
		})
		c.logger.Info("Notified arbiter of exit")
	}
	c.seeking = false
	c.granted = false
	c.status = core.StatusIdle
}

// Step consumes arbiter messages and resends the request when it has gone
// unanswered for RequestTimeout.
func (c *Coordinator) Step(ctx context.Context) {
	for drained := false; !drained; {
		select {
		case msg := <-c.inbox:
			c.handle(msg)
		default:
			drained = true
		}
	}

	if c.seeking && !c.granted && c.clock.Since(c.lastSent) >= c.cfg.RequestTimeout {
		c.retries++
		c.logger.Info("No grant yet, resending access request", "attempt", c.retries+1)
		c.sendRequest("retry")
	}
}

func (c *Coordinator) handle(msg core.Message) {
	switch m := msg.(type) {
	case *core.GrantAccess:
		if m.VehicleID != c.cfg.Self {
			c.logger.Debug("Ignoring grant for another vehicle", "vehicleID", string(m.VehicleID))
			return
		}
		if !c.seeking {
			c.logger.Info("Discarding message", "error", fmt.Errorf("%w: grant while not requesting", core.ErrProtocolViolation).Error())
			return
		}
		if !m.RequestTime.Equal(c.requestTime) {
			c.logger.Info("Ignoring grant for another episode", "grantedRequest", m.RequestTime, "currentRequest", c.requestTime)
			return
		}
		if c.granted {
			c.logger.Debug("Duplicate grant")
			return
		}
		c.granted = true
		wait := c.clock.Since(c.requestTime)
		c.logger.Info("Access granted by arbiter", "wait", wait, "retries", c.retries)
		metrics.AccessGrantedTotal.WithLabelValues("centralized").Inc()
		metrics.AccessWaitSeconds.WithLabelValues("centralized").Observe(wait.Seconds())
	default:
		c.logger.Info("Discarding message", "error",
			fmt.Errorf("%w: unexpected %s from arbiter", core.ErrProtocolViolation, msg.Kind()).Error())
	}
}

func (c *Coordinator) sendRequest(kind string) {
	c.lastSent = c.clock.Now()
	msg := &core.RequestAccess{
		VehicleID:      c.cfg.Self,
		VehicleAddress: c.cfg.Address,
		VehiclePort:    c.cfg.Port,
		EntryPoint:     c.cfg.Lane.EntryPoint,
		ExitPoint:      c.cfg.Lane.ExitPoint,
		RequestTime:    c.requestTime,
	}
	c.out.Submit(msg, func(err error) {
		status := "success"
		if err != nil {
			status = "failed"
		}
		metrics.RequestSendsTotal.WithLabelValues(kind, status).Inc()
	})
}

// Retries returns how many times the current episode's request was resent.
func (c *Coordinator) Retries() int {
	return c.retries
}

// Status returns the last announced status.
func (c *Coordinator) Status() core.VehicleStatus {
	return c.status
}
