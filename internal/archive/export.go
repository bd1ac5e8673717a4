package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/alfredjeanlab/msgbus/internal/model"
	"github.com/alfredjeanlab/msgbus/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version           string    `json:"version"`
	Type              string    `json:"type"`
	Timestamp         time.Time `json:"timestamp"`
	SubscriptionCount int       `json:"subscription_count"`
	EventCount        int       `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every subscription and every event from the store as
// JSONL to w. Subscriptions come first in creation order, then events in
// ascending id order.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	subs, err := s.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	events, err := allEvents(ctx, s)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:           "1",
		Type:              "header",
		Timestamp:         time.Now().UTC(),
		SubscriptionCount: len(subs),
		EventCount:        len(events),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, sub := range subs {
		if err := enc.Encode(record{Type: "subscription", Data: sub}); err != nil {
			return fmt.Errorf("encode subscription %s -> %s: %w", sub.Name, sub.CallbackEndpoint, err)
		}
	}
	for _, ev := range events {
		if err := enc.Encode(record{Type: "event", Data: ev}); err != nil {
			return fmt.Errorf("encode event %d: %w", ev.ID, err)
		}
	}
	return nil
}

// allEvents pages through the log newest first and returns it oldest first.
func allEvents(ctx context.Context, s store.EventLog) ([]*model.Event, error) {
	var (
		out    []*model.Event
		before int64
	)
	for {
		page, err := s.ListEvents(ctx, model.EventFilter{Limit: model.MaxEventLimit, BeforeID: before})
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		out = append(out, page...)
		if len(page) < model.MaxEventLimit {
			break
		}
		before = page[len(page)-1].ID
	}
	slices.SortFunc(out, func(a, b *model.Event) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out, nil
}
