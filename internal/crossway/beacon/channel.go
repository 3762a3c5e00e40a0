// Package beacon broadcasts the local vehicle's status at jittered intervals
// and hands beacons received from peers to a listener.
package beacon

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/crossway/internal/crossway/codec"
	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/internal/pkg/metrics"
	"github.com/autopeer-io/crossway/pkg/log"
)

// Listener receives decoded beacons from peers. It runs on the receiver
// goroutine and must return quickly.
type Listener func(b *core.Beacon)

var ErrAlreadyStarted = errors.New("beacon channel already started")

// Channel owns one sender and one receiver goroutine over a Transport.
type Channel struct {
	transport Transport
	self      core.PeerID
	clock     clock.Clock
	logger    log.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	mu       sync.Mutex
	local    *core.Beacon
	listener Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Option configures a Channel.
type Option func(*Channel)

// WithClock replaces the real clock, for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Channel) { c.clock = clk }
}

// WithRand replaces the jitter source, for tests.
func WithRand(r *rand.Rand) Option {
	return func(c *Channel) { c.rng = r }
}

// NewChannel creates a channel for vehicle self. Beacons carrying self as
// sender are dropped on receipt.
func NewChannel(t Transport, self core.PeerID, logger log.Logger, opts ...Option) *Channel {
	c := &Channel{
		transport: t,
		self:      self,
		clock:     clock.RealClock{},
		logger:    logger,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetListener registers the consumer of inbound beacons.
func (c *Channel) SetListener(fn Listener) {
	c.mu.Lock()
	c.listener = fn
	c.mu.Unlock()
}

// SetLocalBeacon replaces the payload sent from the next interval on.
func (c *Channel) SetLocalBeacon(b core.Beacon) {
	c.mu.Lock()
	c.local = &b
	c.mu.Unlock()
}

// LocalBeacon returns the payload currently being broadcast.
func (c *Channel) LocalBeacon() (core.Beacon, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local == nil {
		return core.Beacon{}, false
	}
	return *c.local, true
}

// Start launches the sender, with an interval drawn uniformly from
// [minPeriod, maxPeriod] before every beacon, and the receiver.
func (c *Channel) Start(ctx context.Context, minPeriod, maxPeriod time.Duration) error {
	if minPeriod <= 0 || maxPeriod < minPeriod {
		return errors.New("beacon period range is invalid")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(2)
	go c.sendLoop(ctx, minPeriod, maxPeriod)
	go c.receiveLoop(ctx)

	c.logger.Info("Beacon channel started", "minPeriod", minPeriod, "maxPeriod", maxPeriod)
	return nil
}

// Stop terminates both goroutines and waits for them.
func (c *Channel) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
	c.logger.Info("Beacon channel stopped")
}

// NextInterval draws the wait before the next beacon.
func (c *Channel) NextInterval(minPeriod, maxPeriod time.Duration) time.Duration {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return Jitter(c.rng, minPeriod, maxPeriod)
}

// Jitter returns a duration uniformly distributed over [minPeriod, maxPeriod].
func Jitter(r *rand.Rand, minPeriod, maxPeriod time.Duration) time.Duration {
	if maxPeriod <= minPeriod {
		return minPeriod
	}
	return minPeriod + time.Duration(r.Int64N(int64(maxPeriod-minPeriod)+1))
}

func (c *Channel) sendLoop(ctx context.Context, minPeriod, maxPeriod time.Duration) {
	defer c.wg.Done()

	for {
		timer := c.clock.NewTimer(c.NextInterval(minPeriod, maxPeriod))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C():
		}

		b, ok := c.LocalBeacon()
		if !ok {
			continue
		}
		payload, err := codec.Encode(&b)
		if err != nil {
			c.logger.Error(err, "Failed to encode beacon")
			continue
		}
		if err := c.transport.Broadcast(ctx, payload); err != nil {
			if ctx.Err() != nil {
				return
			}
			// Lost beacons are expected; the next interval repeats it.
			c.logger.Debug("Beacon broadcast failed", "err", err.Error())
			metrics.BeaconsTotal.WithLabelValues("dropped").Inc()
			continue
		}
		metrics.BeaconsTotal.WithLabelValues("sent").Inc()
	}
}

func (c *Channel) receiveLoop(ctx context.Context) {
	defer c.wg.Done()

	err := c.transport.Receive(ctx, c.deliver)
	if err != nil && ctx.Err() == nil && !errors.Is(err, core.ErrTransportClosed) {
		c.logger.Error(err, "Beacon receiver terminated")
	}
}

func (c *Channel) deliver(payload []byte) {
	msg, err := codec.Decode(payload)
	if err != nil {
		c.logger.Debug("Dropping undecodable beacon", "err", err.Error(), "size", len(payload))
		metrics.BeaconsTotal.WithLabelValues("dropped").Inc()
		return
	}

	b, ok := msg.(*core.Beacon)
	if !ok {
		c.logger.Warn("Dropping non-beacon message on the beacon channel", "kind", msg.Kind().String())
		metrics.BeaconsTotal.WithLabelValues("dropped").Inc()
		return
	}
	if b.SenderID == c.self {
		return
	}

	metrics.BeaconsTotal.WithLabelValues("received").Inc()

	c.mu.Lock()
	fn := c.listener
	c.mu.Unlock()
	if fn != nil {
		fn(b)
	}
}
