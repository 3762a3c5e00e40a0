// Package app implements crossctl, the operator CLI for crossway agents and
// arbiters.
package app

import (
	"time"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	AgentURL    string
	ArbiterAddr string
	Timeout     time.Duration
}

func NewCrossctlCommand() *cobra.Command {
	opts := &globalOptions{
		AgentURL:    "http://127.0.0.1:8470",
		ArbiterAddr: "127.0.0.1:8091",
		Timeout:     5 * time.Second,
	}

	cmd := &cobra.Command{
		Use:          "crossctl",
		Short:        "Inspect and drive crossway agents and arbiters",
		SilenceUsage: true,
	}

	fs := cmd.PersistentFlags()
	fs.StringVar(&opts.AgentURL, "agent", opts.AgentURL, "Base URL of the crossway-agent HTTP API.")
	fs.StringVar(&opts.ArbiterAddr, "arbiter", opts.ArbiterAddr, "gRPC address of the crossway-arbiter.")
	fs.DurationVar(&opts.Timeout, "timeout", opts.Timeout, "Timeout for a single request.")

	cmd.AddCommand(
		newStatusCommand(opts),
		newNeighborsCommand(opts),
		newEpisodesCommand(opts),
		newEventCommand(opts),
		newHealthCommand(opts),
	)
	return cmd
}
