package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/msgbus/internal/endpoints"
	"github.com/alfredjeanlab/msgbus/internal/model"
	"github.com/alfredjeanlab/msgbus/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

func styler(w io.Writer) ui.Styler {
	return ui.NewStyler(ui.ColorEnabled(w))
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func printEventTable(w io.Writer, events []*model.Event) {
	st := styler(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDELIVERED\tPUBLISHED\tPAYLOAD")
	for _, e := range events {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n",
			e.ID,
			st.Name(e.Name),
			e.DeliveredCount,
			st.Muted(e.PublishedAt.Local().Format(timeLayout)),
			truncate(string(e.Payload), 60),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d events\n", len(events))
}

func printSubscriptionTable(w io.Writer, subs []*model.Subscription) {
	st := styler(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tENDPOINT\tOWNER\tCREATED")
	for _, s := range subs {
		created := ""
		if !s.CreatedAt.IsZero() {
			created = s.CreatedAt.Local().Format(timeLayout)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.Name(s.Name), s.CallbackEndpoint, s.Owner, st.Muted(created))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d subscriptions\n", len(subs))
}

func printStats(w io.Writer, s *model.Stats) {
	st := styler(w)
	fmt.Fprintf(w, "Events:          %d\n", s.TotalEvents)
	fmt.Fprintf(w, "Last hour:       %d\n", s.EventsLastHour)
	fmt.Fprintf(w, "Subscriptions:   %d\n", s.TotalSubscriptions)
	fmt.Fprintf(w, "Event names:     %d\n", s.DistinctEventNames)
	if len(s.TopEventNames) == 0 {
		return
	}
	fmt.Fprintln(w, "\nTop event names:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, nc := range s.TopEventNames {
		fmt.Fprintf(tw, "  %s\t%d\n", st.Name(nc.Name), nc.Count)
	}
	tw.Flush()
}

func printEndpointTable(w io.Writer, entries []endpoints.Entry) {
	st := styler(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENDPOINT\tSTATUS\tOK/TOTAL\tFAILING\tLAST ATTEMPT\tLAST ERROR")
	for _, e := range entries {
		failing := strconv.FormatInt(e.ConsecutiveFailures, 10)
		if e.ConsecutiveFailures > 0 {
			failing = st.Fail(failing)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			e.Endpoint,
			st.HTTPStatus(e.LastStatus),
			e.Successes, e.Attempts,
			failing,
			st.Muted(formatAgo(e.IdleSecs)),
			truncate(e.LastError, 50),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d endpoints\n", len(entries))
}

func formatAgo(secs float64) string {
	d := time.Duration(secs * float64(time.Second)).Round(time.Second)
	return d.String() + " ago"
}
