package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/crossway/internal/crossway/agent"
	"github.com/autopeer-io/crossway/internal/crossway/core"
	"github.com/autopeer-io/crossway/internal/crossway/journal"
)

// agentClient talks to one agent's HTTP API.
type agentClient struct {
	base   string
	client *http.Client
}

func newAgentClient(opts *globalOptions) *agentClient {
	return &agentClient{
		base:   strings.TrimSuffix(opts.AgentURL, "/"),
		client: &http.Client{Timeout: opts.Timeout},
	}
}

func (c *agentClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var body struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, body.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func newStatusCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the agent's control loop state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st agent.StatusResponse
			if err := newAgentClient(opts).do(cmd.Context(), http.MethodGet, "/v1/status", &st); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusTable(&st))
			return nil
		},
	}
}

func newNeighborsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "neighbors",
		Short: "List the peers an ad hoc agent currently hears",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var peers []agent.NeighborView
			if err := newAgentClient(opts).do(cmd.Context(), http.MethodGet, "/v1/neighbors", &peers); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), neighborsTable(peers, time.Now()))
			return nil
		},
	}
}

func newEpisodesCommand(opts *globalOptions) *cobra.Command {
	limit := 20
	cmd := &cobra.Command{
		Use:   "episodes",
		Short: "List the agent's most recent crossings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var eps []journal.Episode
			path := "/v1/episodes?limit=" + strconv.Itoa(limit)
			if err := newAgentClient(opts).do(cmd.Context(), http.MethodGet, path, &eps); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), episodesTable(eps))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", limit, "Maximum number of episodes to show.")
	return cmd
}

func newEventCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "event <approaching|entering|exiting|error>",
		Short:     "Inject a detector event into the agent",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"approaching", "entering", "exiting", "error"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := core.ParseIntersectionEvent(args[0])
			if err != nil {
				return err
			}
			path := "/v1/events/" + url.PathEscape(strings.ToLower(ev.String()))
			if err := newAgentClient(opts).do(cmd.Context(), http.MethodPost, path, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "event %s accepted\n", ev)
			return nil
		},
	}
}

func statusTable(st *agent.StatusResponse) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("VEHICLE", "MODE", "LANE", "STATE", "STATUS", "GRANTED", "HOLDING", "SINCE")
	table.AddRow(st.VehicleID, st.Mode, st.Lane, st.State, st.VehicleStatus, st.Granted, st.Holding, st.Since.Format(time.RFC3339))
	return table
}

func neighborsTable(peers []agent.NeighborView, now time.Time) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("PEER", "ADDRESS", "LANE", "STATUS", "REQUESTED", "LAST SEEN")
	for _, p := range peers {
		requested := "-"
		if !p.RequestTimestamp.IsZero() {
			requested = p.RequestTimestamp.Format(time.RFC3339Nano)
		}
		addr := p.Address
		if p.Port != 0 {
			addr = fmt.Sprintf("%s:%d", p.Address, p.Port)
		}
		table.AddRow(p.PeerID, addr, p.Lane, p.Status, requested, now.Sub(p.LastSeen).Round(time.Millisecond).String()+" ago")
	}
	return table
}

func episodesTable(eps []journal.Episode) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("ID", "MODE", "LANE", "REQUESTED", "WAIT", "RETRIES")
	for i := range eps {
		ep := &eps[i]
		wait := "-"
		if !ep.GrantedAt.IsZero() {
			wait = ep.Wait().Round(time.Millisecond).String()
		}
		table.AddRow(ep.ID, ep.Mode, ep.Lane, ep.RequestedAt.Format(time.RFC3339), wait, ep.Retries)
	}
	return table
}
