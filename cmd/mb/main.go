package main

import (
	"fmt"
	"os"

	"github.com/alfredjeanlab/msgbus/internal/client"
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL  string
	authToken  string
	jsonOutput bool

	busClient client.BusClient
)

func defaultServerURL() string {
	if s := os.Getenv("MSGBUS_URL"); s != "" {
		return s
	}
	return "http://localhost:5999"
}

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mb <command>",
		Short:         "CLI for the msgbus event bus",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			busClient = client.NewHTTPClient(serverURL, authToken)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if busClient != nil {
				_ = busClient.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&serverURL, "url", defaultServerURL(), "msgbus server URL")
	root.PersistentFlags().StringVar(&authToken, "token", os.Getenv("MSGBUS_AUTH_TOKEN"), "bearer token for the server")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	root.AddGroup(
		&cobra.Group{ID: "bus", Title: "Bus:"},
		&cobra.Group{ID: "query", Title: "Queries:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false

	// Bus
	root.AddCommand(newPublishCmd())
	root.AddCommand(newSubscribeCmd())
	root.AddCommand(newUnsubscribeCmd())
	root.AddCommand(newWatchCmd())

	// Queries
	root.AddCommand(newEventsCmd())
	root.AddCommand(newSubscriptionsCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newEndpointsCmd())

	// System
	root.AddCommand(newServeCmd())
	root.AddCommand(newHealthCmd())

	return root
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
