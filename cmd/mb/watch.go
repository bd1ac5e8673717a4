package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alfredjeanlab/msgbus/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var (
		natsURL string
		prefix  string
	)

	cmd := &cobra.Command{
		Use:   "watch [name-pattern...]",
		Short: "Stream published events as they happen",
		Long: `Stream published events. Patterns use NATS wildcards: '*' matches one
dot-separated token and '>' matches the rest. With --nats (or MSGBUS_NATS_URL)
the mirror subjects are tailed directly; otherwise the server's SSE stream
is used.`,
		GroupID: "bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			emit := func(p events.Published) error {
				if jsonOutput {
					data, err := json.Marshal(p)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(data))
					return nil
				}
				printWatched(cmd.OutOrStdout(), p)
				return nil
			}

			if natsURL != "" {
				return watchNATS(ctx, natsURL, natsSubjects(prefix, args), emit)
			}
			return watchSSE(ctx, serverURL, authToken, args, emit)
		},
	}
	cmd.Flags().StringVar(&natsURL, "nats", os.Getenv("MSGBUS_NATS_URL"), "NATS server URL to tail")
	cmd.Flags().StringVar(&prefix, "prefix", events.DefaultSubjectPrefix, "NATS subject prefix the server mirrors to")
	return cmd
}

func printWatched(w io.Writer, p events.Published) {
	st := styler(w)
	fmt.Fprintf(w, "%s  #%d  %s  %s\n",
		st.Muted(p.PublishedAt.Local().Format(timeLayout)),
		p.ID,
		st.Name(p.Name),
		truncate(string(p.Payload), 80),
	)
}

// natsSubjects maps name patterns onto mirror subjects. No patterns means
// every event under prefix.
func natsSubjects(prefix string, patterns []string) []string {
	if len(patterns) == 0 {
		return []string{events.WildcardSubject(prefix)}
	}
	if prefix == "" {
		prefix = events.DefaultSubjectPrefix
	}
	subjects := make([]string, len(patterns))
	for i, p := range patterns {
		subjects[i] = prefix + "." + p
	}
	return subjects
}

func watchNATS(ctx context.Context, natsURL string, subjects []string, handle func(events.Published) error) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	merged := make(chan []byte, 64)
	for _, subject := range subjects {
		ch, cancel, err := sub.Subscribe(subject)
		if err != nil {
			return fmt.Errorf("subscribing to events: %w", err)
		}
		defer cancel()
		go func() {
			for data := range ch {
				select {
				case merged <- data:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-merged:
			var p events.Published
			if err := json.Unmarshal(data, &p); err != nil {
				log.Printf("watch: skipping malformed message: %v", err)
				continue
			}
			if err := handle(p); err != nil {
				return err
			}
		}
	}
}

func watchSSE(ctx context.Context, baseURL, token string, patterns []string, handle func(events.Published) error) error {
	u := strings.TrimRight(baseURL, "/") + "/v1/events/stream"
	if len(patterns) > 0 {
		u += "?" + url.Values{"names": {strings.Join(patterns, ",")}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("opening event stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("opening event stream: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	err = readSSE(resp.Body, func(data string) error {
		var p events.Published
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			log.Printf("watch: skipping malformed event: %v", err)
			return nil
		}
		return handle(p)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readSSE calls fn with the data of each event in an SSE stream until r is
// exhausted. Comment lines and fields other than data are ignored.
func readSSE(r io.Reader, fn func(data string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	var data []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				if err := fn(strings.Join(data, "\n")); err != nil {
					return err
				}
				data = data[:0]
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}
