// Package reliable sends point-to-point messages to the arbiter with a
// bounded per-send timeout. Sends run on a worker goroutine so the caller's
// control loop never waits on the network.
package reliable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/pkg/log"
)

// DefaultQueueSize is the number of pending sends Submit accepts before
// rejecting new ones.
const DefaultQueueSize = 16

// ErrQueueFull is returned through the completion callback when Submit
// could not enqueue.
var ErrQueueFull = errors.New("reliable send queue is full")

type request struct {
	msg  core.Message
	done func(error)
}

// Channel wraps a core.Messenger. Send is synchronous, Submit hands the
// message to the goroutine started by Run.
type Channel struct {
	messenger core.Messenger
	timeout   time.Duration
	logger    log.Logger

	queue chan request
}

// Option configures a Channel.
type Option func(*Channel)

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) Option {
	return func(c *Channel) {
		if n > 0 {
			c.queue = make(chan request, n)
		}
	}
}

// New returns a channel whose sends give up after timeout.
func New(m core.Messenger, timeout time.Duration, logger log.Logger, opts ...Option) *Channel {
	c := &Channel{
		messenger: m,
		timeout:   timeout,
		logger:    logger.WithName("reliable"),
		queue:     make(chan request, DefaultQueueSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send delivers msg and waits at most the configured timeout for the
// transport acknowledgement. A missed deadline is reported as
// core.ErrSendTimeout; cancellation of ctx itself is returned as is.
func (c *Channel) Send(ctx context.Context, msg core.Message) error {
	sendCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.messenger.Send(sendCtx, msg)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(sendCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s after %s", core.ErrSendTimeout, msg.Kind(), c.timeout)
	default:
		return fmt.Errorf("send %s: %w", msg.Kind(), err)
	}
}

// Submit queues msg for the worker and returns immediately. done, if not
// nil, is called from the worker goroutine with the send result. Submit
// reports false when the queue is full; done is then called with
// ErrQueueFull before Submit returns.
func (c *Channel) Submit(msg core.Message, done func(error)) bool {
	select {
	case c.queue <- request{msg: msg, done: done}:
		return true
	default:
		c.logger.Warn("Dropping message, send queue full", "kind", msg.Kind().String())
		if done != nil {
			done(ErrQueueFull)
		}
		return false
	}
}

// Run sends queued messages one at a time until ctx is done. Messages still
// queued at shutdown are dropped.
func (c *Channel) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-c.queue:
			err := c.Send(ctx, req.msg)
			if err != nil && ctx.Err() == nil {
				c.logger.Error(err, "Send to arbiter failed", "kind", req.msg.Kind().String())
			}
			if req.done != nil {
				req.done(err)
			}
		}
	}
}
