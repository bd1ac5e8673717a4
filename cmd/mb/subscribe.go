package main

import (
	"fmt"

	"github.com/alfredjeanlab/msgbus/internal/client"
	"github.com/spf13/cobra"
)

func newSubscribeCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:     "subscribe <name> <callback-endpoint>",
		Short:   "Register an endpoint to receive events named <name>",
		GroupID: "bus",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := busClient.Subscribe(cmd.Context(), &client.SubscribeRequest{
				Name:             args[0],
				CallbackEndpoint: args[1],
				Owner:            owner,
			})
			if err != nil {
				return fmt.Errorf("subscribing: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, resp)
			}
			verb := "Subscribed"
			if !resp.Created {
				verb = "Already subscribed"
			}
			fmt.Fprintf(out, "%s %s to %s (%d subscriber(s))\n",
				verb, args[1], styler(out).Name(args[0]), resp.SubscriberCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owning service, recorded for display")
	return cmd
}

func newUnsubscribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "unsubscribe <name> <callback-endpoint>",
		Short:   "Remove an endpoint's subscription to <name>",
		GroupID: "bus",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := busClient.Unsubscribe(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("unsubscribing: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, resp)
			}
			if resp.Removed {
				fmt.Fprintf(out, "Unsubscribed %s from %s\n", args[1], styler(out).Name(args[0]))
			} else {
				fmt.Fprintf(out, "%s was not subscribed to %s\n", args[1], styler(out).Name(args[0]))
			}
			return nil
		},
	}
}
