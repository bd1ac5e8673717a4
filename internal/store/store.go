package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alfredjeanlab/msgbus/internal/model"
)

// SubscriptionStore is the durable copy of the subscription set.
type SubscriptionStore interface {
	// AddSubscription inserts the (name, endpoint) pair. Inserting a pair that
	// already exists is a defined no-op: it returns created=false and a nil
	// error, never a conflict.
	AddSubscription(ctx context.Context, sub *model.Subscription) (created bool, err error)

	// RemoveSubscription deletes the exact pair. A missing pair returns
	// removed=false and a nil error.
	RemoveSubscription(ctx context.Context, name, endpoint string) (removed bool, err error)

	// ListSubscriptions returns every stored subscription ordered by creation.
	ListSubscriptions(ctx context.Context) ([]*model.Subscription, error)
}

// EventLog is the append-only record of published events.
type EventLog interface {
	// AppendEvent records a new event and returns it with its assigned id and
	// publish time. Every call allocates a new id.
	AppendEvent(ctx context.Context, name string, payload json.RawMessage, publishedAt time.Time) (*model.Event, error)

	// UpdateDeliveredCount overwrites the delivery count of one event.
	UpdateDeliveredCount(ctx context.Context, id int64, count int) error

	// ListEvents returns events newest first by id, which is insert order.
	ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error)

	// EventStats aggregates the log. since bounds the recent-events count and
	// top limits the number of names returned.
	EventStats(ctx context.Context, since time.Time, top int) (*model.EventStats, error)
}

// Store defines the persistence interface for the bus.
type Store interface {
	SubscriptionStore
	EventLog

	// Ping reports whether the backing medium is reachable.
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}
