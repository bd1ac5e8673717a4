package main

import (
	"fmt"

	"github.com/alfredjeanlab/msgbus/internal/client"
	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	var (
		limit    int
		beforeID int64
	)

	cmd := &cobra.Command{
		Use:     "events [name]",
		Short:   "List recent events, newest first",
		GroupID: "query",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &client.ListEventsRequest{Limit: limit, BeforeID: beforeID}
			if len(args) == 1 {
				req.Name = args[0]
			}
			resp, err := busClient.ListEvents(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("listing events: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, resp)
			}
			printEventTable(out, resp.Events)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum events to return (server default 50)")
	cmd.Flags().Int64Var(&beforeID, "before", 0, "only events with an id below this one")
	return cmd
}

func newSubscriptionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "subscriptions [name]",
		Aliases: []string{"subs"},
		Short:   "List live subscriptions",
		GroupID: "query",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			resp, err := busClient.ListSubscriptions(cmd.Context(), name)
			if err != nil {
				return fmt.Errorf("listing subscriptions: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, resp)
			}
			printSubscriptionTable(out, resp.Subscriptions)
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "stats",
		Short:   "Show event and subscription totals",
		GroupID: "query",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := busClient.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetching stats: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, st)
			}
			printStats(out, st)
			return nil
		},
	}
}

func newEndpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "endpoints",
		Short:   "Show delivery health per callback endpoint",
		GroupID: "query",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := busClient.Endpoints(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetching endpoints: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, resp)
			}
			printEndpointTable(out, resp.Endpoints)
			return nil
		},
	}
}
