// Package agent wires a vehicle's coordinator, daemon, detector, journal and
// HTTP surface into one process.
package agent

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/internal/crossway/daemon"
	"github.com/autopeer-io/crossway/internal/crossway/journal"
	"github.com/autopeer-io/crossway/internal/crossway/neighbor"
	httpserver "github.com/autopeer-io/crossway/internal/pkg/server/http"
	"github.com/autopeer-io/crossway/pkg/log"
)

type runner struct {
	name string
	run  func(ctx context.Context) error
}

type Agent struct {
	id     core.PeerID
	mode   string
	lane   core.LaneSpec
	logger log.Logger

	daemon    *daemon.Daemon
	neighbors func() []neighbor.Record
	episodes  *journal.Store
	http      *httpserver.Server

	runners []runner
	closers []func() error
}

func (a *Agent) add(name string, fn func(ctx context.Context) error) {
	a.runners = append(a.runners, runner{name: name, run: fn})
}

// Run starts every component and blocks until ctx is done or one of them
// fails. A detector ERROR surfaces as core.ErrDetectorFault.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("Starting crossway-agent", "mode", a.mode, "lane", a.lane.String())
	defer a.close()

	g, ctx := errgroup.WithContext(ctx)
	for _, r := range a.runners {
		g.Go(func() error {
			if err := r.run(ctx); err != nil {
				return fmt.Errorf("%s: %w", r.name, err)
			}
			return nil
		})
	}

	err := g.Wait()
	switch {
	case errors.Is(err, core.ErrDetectorFault):
		a.logger.Error(err, "Vehicle stopped after detector fault")
	case err != nil:
		a.logger.Error(err, "Agent terminated")
	default:
		a.logger.Info("Agent shutting down...")
	}
	return err
}

// ready reports whether the control loop is still operational.
func (a *Agent) ready() bool {
	return a.daemon != nil && a.daemon.Status().State != daemon.StateError
}

func (a *Agent) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Failed to release resource", "error", err.Error())
		}
	}
	a.closers = nil
}
