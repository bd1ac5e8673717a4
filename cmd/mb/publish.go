package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newPublishCmd() *cobra.Command {
	var payloadFile string

	cmd := &cobra.Command{
		Use:   "publish <name> [payload-json]",
		Short: "Publish an event to every subscriber of <name>",
		Long: `Publish an event. The payload is a JSON document given as the second
argument, read from a file with --file, or read from stdin with --file -.
Without a payload the event carries an empty object.`,
		GroupID: "bus",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), args[1:], payloadFile)
			if err != nil {
				return err
			}

			resp, err := busClient.Publish(cmd.Context(), args[0], payload)
			if err != nil {
				return fmt.Errorf("publishing %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, resp)
			}
			fmt.Fprintf(out, "Published %s as event %d to %d subscriber(s) (%s)\n",
				styler(out).Name(args[0]), resp.EventID, resp.SubscriberCount, resp.Status)
			return nil
		},
	}
	cmd.Flags().StringVarP(&payloadFile, "file", "f", "", "read the payload from a file (- for stdin)")
	return cmd
}

// readPayload returns the payload from the positional argument or the file
// flag, validating that it is JSON. Neither yields nil.
func readPayload(stdin io.Reader, args []string, file string) (json.RawMessage, error) {
	var data []byte
	switch {
	case len(args) > 0 && file != "":
		return nil, fmt.Errorf("give the payload as an argument or with --file, not both")
	case len(args) > 0:
		data = []byte(args[0])
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading payload from stdin: %w", err)
		}
		data = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading payload: %w", err)
		}
		data = b
	default:
		return nil, nil
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return json.RawMessage(data), nil
}
