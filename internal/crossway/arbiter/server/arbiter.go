package server

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/crossway/internal/crossway/arbiter"
	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/pkg/log"
)

// ArbiterServer owns the arbiter state, its protocol servers and the
// conflict table they share.
type ArbiterServer struct {
	manager      *Manager
	conflicts    *core.ConflictTable
	conflictFile string
}

func (cfg *Config) NewArbiterServer() (*ArbiterServer, error) {
	conflicts, err := core.LoadConflictTable(cfg.ArbiterOptions.ConflictFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load conflict table: %w", err)
	}

	clk := clock.RealClock{}
	policy, err := arbiter.NewPolicy(cfg.ArbiterOptions, conflicts, clk)
	if err != nil {
		return nil, err
	}

	a := arbiter.New(policy, clk, log.Std())

	manager, err := NewManager(cfg, a, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to init server manager: %w", err)
	}

	log.Info("Arbiter configured", "policy", policy.Name(), "conflictPairs", conflicts.Len())
	return &ArbiterServer{
		manager:      manager,
		conflicts:    conflicts,
		conflictFile: cfg.ArbiterOptions.ConflictFile,
	}, nil
}

// Run serves until ctx is done or a server fails.
func (s *ArbiterServer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.conflictFile != "" {
		g.Go(func() error {
			return core.WatchConflictFile(ctx, s.conflictFile, s.conflicts, log.WithName("conflicts"))
		})
	}
	g.Go(func() error {
		return s.manager.Start(ctx)
	})

	err := g.Wait()
	log.Info("Arbiter shutting down...")
	return err
}
