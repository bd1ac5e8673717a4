// Package client provides a transport-agnostic interface for the msgbus
// service and an HTTP/JSON implementation of it.
package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/alfredjeanlab/msgbus/internal/endpoints"
	"github.com/alfredjeanlab/msgbus/internal/model"
)

// BusClient is the interface the CLI uses to talk to a bus server.
type BusClient interface {
	Subscribe(ctx context.Context, req *SubscribeRequest) (*SubscribeResponse, error)
	Unsubscribe(ctx context.Context, name, endpoint string) (*UnsubscribeResponse, error)
	Publish(ctx context.Context, name string, payload json.RawMessage) (*PublishResponse, error)

	ListEvents(ctx context.Context, req *ListEventsRequest) (*ListEventsResponse, error)
	ListSubscriptions(ctx context.Context, name string) (*ListSubscriptionsResponse, error)
	Stats(ctx context.Context) (*model.Stats, error)
	Endpoints(ctx context.Context) (*EndpointsResponse, error)
	Health(ctx context.Context) (*HealthResponse, error)

	Close() error
}

// SubscribeRequest holds parameters for subscribing an endpoint.
type SubscribeRequest struct {
	Name             string `json:"name"`
	CallbackEndpoint string `json:"callback_endpoint"`
	Owner            string `json:"owner,omitempty"`
}

// SubscribeResponse is returned by Subscribe.
type SubscribeResponse struct {
	Created         bool `json:"created"`
	SubscriberCount int  `json:"subscriber_count"`
}

// UnsubscribeResponse is returned by Unsubscribe.
type UnsubscribeResponse struct {
	Removed bool `json:"removed"`
}

// PublishResponse is returned by Publish.
type PublishResponse struct {
	EventID         int64  `json:"event_id"`
	SubscriberCount int    `json:"subscriber_count"`
	Status          string `json:"status"`
}

// ListEventsRequest filters event history.
type ListEventsRequest struct {
	Name     string
	Limit    int
	BeforeID int64
}

// ListEventsResponse is a page of event history, newest first.
type ListEventsResponse struct {
	Events []*model.Event `json:"events"`
	Total  int            `json:"total"`
}

// ListSubscriptionsResponse is the live subscription set.
type ListSubscriptionsResponse struct {
	Subscriptions []*model.Subscription `json:"subscriptions"`
	Total         int                   `json:"total"`
}

// EndpointsResponse is returned by Endpoints.
type EndpointsResponse struct {
	Endpoints []endpoints.Entry `json:"endpoints"`
	Total     int               `json:"total"`
}

// HealthResponse is returned by Health.
type HealthResponse struct {
	Status              string    `json:"status"`
	Service             string    `json:"service"`
	Version             string    `json:"version,omitempty"`
	ActiveSubscriptions int       `json:"active_subscriptions"`
	Storage             string    `json:"storage"`
	Timestamp           time.Time `json:"timestamp"`
}
