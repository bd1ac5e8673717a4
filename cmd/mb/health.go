package main

import (
	"fmt"

	"github.com/alfredjeanlab/msgbus/internal/client"
	"github.com/spf13/cobra"
)

// grpcHealthService matches the service name the server registers.
const grpcHealthService = "msgbus.v1.Bus"

func newHealthCmd() *cobra.Command {
	var grpcAddr string

	cmd := &cobra.Command{
		Use:     "health",
		Short:   "Check the health of the msgbus server",
		GroupID: "system",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			st := styler(out)

			if grpcAddr != "" {
				status, err := client.CheckGRPCHealth(cmd.Context(), grpcAddr, grpcHealthService)
				if err != nil {
					return fmt.Errorf("checking gRPC health: %w", err)
				}
				if jsonOutput {
					return printJSON(out, map[string]string{"status": status})
				}
				fmt.Fprintf(out, "gRPC: %s\n", st.Health(status))
				if status != "SERVING" {
					return fmt.Errorf("unhealthy: %s", status)
				}
				return nil
			}

			h, err := busClient.Health(cmd.Context())
			if h == nil {
				return fmt.Errorf("checking health: %w", err)
			}
			if jsonOutput {
				if perr := printJSON(out, h); perr != nil {
					return perr
				}
			} else {
				fmt.Fprintf(out, "Status:         %s\n", st.Health(h.Status))
				fmt.Fprintf(out, "Service:        %s %s\n", h.Service, h.Version)
				fmt.Fprintf(out, "Storage:        %s\n", h.Storage)
				fmt.Fprintf(out, "Subscriptions:  %d\n", h.ActiveSubscriptions)
			}
			if h.Status != "healthy" {
				return fmt.Errorf("unhealthy: %s", h.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "check the gRPC health service at this address instead")
	return cmd
}
