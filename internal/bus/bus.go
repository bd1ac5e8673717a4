// Package bus implements the message bus service: durable subscriptions,
// an append-only event log and asynchronous best-effort fan-out.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/msgbus/internal/dispatch"
	"github.com/alfredjeanlab/msgbus/internal/endpoints"
	"github.com/alfredjeanlab/msgbus/internal/events"
	"github.com/alfredjeanlab/msgbus/internal/metrics"
	"github.com/alfredjeanlab/msgbus/internal/model"
	"github.com/alfredjeanlab/msgbus/internal/registry"
	"github.com/alfredjeanlab/msgbus/internal/store"
)

// StatusScheduled is reported by Publish once delivery has been handed off.
const StatusScheduled = "scheduled"

const (
	defaultServiceName = "msgbus"
	defaultStatsWindow = time.Hour
	defaultTopNames    = 10
)

// Dispatcher hands a fan-out to the background.
type Dispatcher interface {
	Dispatch(job dispatch.Job) error
}

// Config holds the optional collaborators and tunables of a Bus.
type Config struct {
	ServiceName string
	Version     string

	// Mirror receives every appended event. Nil disables mirroring.
	Mirror        events.Publisher
	SubjectPrefix string

	// Endpoints is consulted by Endpoints(). Nil reports none.
	Endpoints *endpoints.Tracker

	StatsWindow time.Duration
	TopNames    int

	Logger *slog.Logger
}

// Bus is the service behind every transport.
type Bus struct {
	store      store.Store
	registry   *registry.Registry
	dispatcher Dispatcher
	cfg        Config
	logger     *slog.Logger

	ready atomic.Bool

	obsMu     sync.RWMutex
	observers []func(events.Published)
}

// New wires a Bus. reg must be the same registry the caller intends to keep
// for the process lifetime; Start fills it from s.
func New(s store.Store, reg *registry.Registry, d Dispatcher, cfg Config) *Bus {
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = defaultStatsWindow
	}
	if cfg.TopNames <= 0 {
		cfg.TopNames = defaultTopNames
	}
	if cfg.Mirror == nil {
		cfg.Mirror = &events.NoopPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bus{
		store:      s,
		registry:   reg,
		dispatcher: d,
		cfg:        cfg,
		logger:     cfg.Logger,
	}
}

// Start rebuilds the registry from the subscription store. Until it
// succeeds, Subscribe, Unsubscribe and Publish return ErrNotReady.
func (b *Bus) Start(ctx context.Context) error {
	subs, err := b.store.ListSubscriptions(ctx)
	if err != nil {
		return storageError("load subscriptions", err)
	}
	loaded := b.registry.Load(subs)
	metrics.SetSubscriptions(b.registry.TotalSubscribers())
	b.ready.Store(true)
	b.logger.Info("bus: subscriptions loaded", "count", loaded, "names", b.registry.DistinctNames())
	return nil
}

// Ready reports whether Start has completed.
func (b *Bus) Ready() bool { return b.ready.Load() }

// OnPublish registers fn to be called, synchronously, with every event
// after it is appended and handed to the dispatcher. fn must not block.
func (b *Bus) OnPublish(fn func(events.Published)) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	b.observers = append(b.observers, fn)
}

// SubscribeResult is returned by Subscribe.
type SubscribeResult struct {
	Created         bool `json:"created"`
	SubscriberCount int  `json:"subscriber_count"`
}

// Subscribe registers endpoint for name. Subscribing an existing pair is a
// no-op that reports Created=false.
func (b *Bus) Subscribe(ctx context.Context, name, endpoint, owner string) (*SubscribeResult, error) {
	if err := model.ValidateSubscriptionKey(name, endpoint); err != nil {
		return nil, InputError(err.Error())
	}
	if !b.Ready() {
		return nil, ErrNotReady
	}

	sub := model.Subscription{
		Name:             name,
		CallbackEndpoint: endpoint,
		Owner:            owner,
		CreatedAt:        time.Now().UTC(),
	}
	created, count, err := b.registry.Subscribe(sub, func() error {
		if _, err := b.store.AddSubscription(ctx, &sub); err != nil {
			return storageError("add subscription", err)
		}
		return nil
	})
	if err != nil {
		b.logger.Error("bus: subscribe", "name", name, "endpoint", endpoint, "err", err)
		return nil, err
	}
	if created {
		metrics.SetSubscriptions(b.registry.TotalSubscribers())
		b.logger.Info("bus: subscribed", "name", name, "endpoint", endpoint, "owner", owner)
	}
	return &SubscribeResult{Created: created, SubscriberCount: count}, nil
}

// UnsubscribeResult is returned by Unsubscribe.
type UnsubscribeResult struct {
	Removed bool `json:"removed"`
}

// Unsubscribe removes the exact pair. Removing an absent pair succeeds with
// Removed=false.
func (b *Bus) Unsubscribe(ctx context.Context, name, endpoint string) (*UnsubscribeResult, error) {
	if !b.Ready() {
		return nil, ErrNotReady
	}
	removed, err := b.registry.Unsubscribe(name, endpoint, func() error {
		if _, err := b.store.RemoveSubscription(ctx, name, endpoint); err != nil {
			return storageError("remove subscription", err)
		}
		return nil
	})
	if err != nil {
		b.logger.Error("bus: unsubscribe", "name", name, "endpoint", endpoint, "err", err)
		return nil, err
	}
	if removed {
		metrics.SetSubscriptions(b.registry.TotalSubscribers())
		b.logger.Info("bus: unsubscribed", "name", name, "endpoint", endpoint)
	}
	return &UnsubscribeResult{Removed: removed}, nil
}

// PublishResult is returned by Publish.
type PublishResult struct {
	EventID         int64  `json:"event_id"`
	SubscriberCount int    `json:"subscriber_count"`
	Status          string `json:"status"`
}

// Publish appends the event, snapshots the current subscribers and schedules
// delivery. It returns without waiting for any delivery. Only a failed append
// fails the call.
func (b *Bus) Publish(ctx context.Context, name string, payload json.RawMessage) (*PublishResult, error) {
	if err := model.ValidateEventName(name); err != nil {
		return nil, InputError(err.Error())
	}
	if !b.Ready() {
		return nil, ErrNotReady
	}
	payload = model.PayloadOrEmpty(payload)
	if !json.Valid(payload) {
		return nil, InputError("payload must be valid JSON")
	}

	ev, err := b.store.AppendEvent(ctx, name, payload, time.Now().UTC())
	if err != nil {
		metrics.PublishErrorsTotal.Inc()
		b.logger.Error("bus: append event", "name", name, "err", err)
		return nil, storageError("append event", err)
	}
	metrics.IncPublished(name)

	snapshot := b.registry.Snapshot(name)
	if err := b.dispatcher.Dispatch(dispatch.Job{
		EventID:   ev.ID,
		Name:      ev.Name,
		Payload:   ev.Payload,
		Endpoints: snapshot,
	}); err != nil {
		// The event is recorded; it simply will not be delivered.
		b.logger.Warn("bus: dispatch refused", "event_id", ev.ID, "name", name, "err", err)
	}

	published := events.Published{
		ID:              ev.ID,
		Name:            ev.Name,
		Payload:         ev.Payload,
		PublishedAt:     ev.PublishedAt,
		SubscriberCount: len(snapshot),
	}
	if err := b.cfg.Mirror.Publish(ctx, events.Subject(b.cfg.SubjectPrefix, name), published); err != nil {
		b.logger.Warn("bus: mirror publish", "event_id", ev.ID, "name", name, "err", err)
	}
	b.notify(published)

	b.logger.Info("bus: event published", "event_id", ev.ID, "name", name, "subscribers", len(snapshot))
	return &PublishResult{
		EventID:         ev.ID,
		SubscriberCount: len(snapshot),
		Status:          StatusScheduled,
	}, nil
}

func (b *Bus) notify(p events.Published) {
	b.obsMu.RLock()
	defer b.obsMu.RUnlock()
	for _, fn := range b.observers {
		fn(p)
	}
}

// Events returns event history newest first.
func (b *Bus) Events(ctx context.Context, filter model.EventFilter) ([]*model.Event, error) {
	if filter.Limit < 0 {
		return nil, InputError("limit must not be negative")
	}
	evs, err := b.store.ListEvents(ctx, filter)
	if err != nil {
		return nil, storageError("list events", err)
	}
	return evs, nil
}

// Subscriptions returns the live subscription set, optionally for one name.
func (b *Bus) Subscriptions(name string) []model.Subscription {
	return b.registry.Subscriptions(name)
}

// Stats aggregates the event log and the live registry.
func (b *Bus) Stats(ctx context.Context) (*model.Stats, error) {
	es, err := b.store.EventStats(ctx, time.Now().UTC().Add(-b.cfg.StatsWindow), b.cfg.TopNames)
	if err != nil {
		return nil, storageError("event stats", err)
	}
	return &model.Stats{
		EventStats:         *es,
		TotalSubscriptions: b.registry.TotalSubscribers(),
		DistinctEventNames: b.registry.DistinctNames(),
	}, nil
}

// Health describes the service for liveness checks.
type Health struct {
	Status              string    `json:"status"`
	Service             string    `json:"service"`
	Version             string    `json:"version,omitempty"`
	ActiveSubscriptions int       `json:"active_subscriptions"`
	Storage             string    `json:"storage"`
	Timestamp           time.Time `json:"timestamp"`
}

// Health statuses.
const (
	StatusHealthy  = "healthy"
	StatusStarting = "starting"
	StatusDegraded = "degraded"
)

// Health reports readiness and storage reachability.
func (b *Bus) Health(ctx context.Context) *Health {
	h := &Health{
		Status:              StatusHealthy,
		Service:             b.cfg.ServiceName,
		Version:             b.cfg.Version,
		ActiveSubscriptions: b.registry.TotalSubscribers(),
		Storage:             "ok",
		Timestamp:           time.Now().UTC(),
	}
	if err := b.store.Ping(ctx); err != nil {
		h.Status = StatusDegraded
		h.Storage = "unavailable"
		b.logger.Warn("bus: storage ping failed", "err", err)
	}
	if !b.Ready() && h.Status == StatusHealthy {
		h.Status = StatusStarting
	}
	return h
}

// Endpoints returns per-endpoint delivery health, most recent first.
func (b *Bus) Endpoints() []endpoints.Entry {
	if b.cfg.Endpoints == nil {
		return []endpoints.Entry{}
	}
	return b.cfg.Endpoints.Snapshot()
}

// IsInputError reports whether err should be surfaced as a caller error.
func IsInputError(err error) bool {
	var ie InputError
	return errors.As(err, &ie)
}
