package model

import "time"

// Subscription is a standing registration of a callback endpoint for an
// event name. The pair (Name, CallbackEndpoint) is unique.
type Subscription struct {
	Name             string    `json:"name"`
	CallbackEndpoint string    `json:"callback_endpoint"`
	Owner            string    `json:"owner,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Key returns the identity of the subscription.
func (s Subscription) Key() SubscriptionKey {
	return SubscriptionKey{Name: s.Name, CallbackEndpoint: s.CallbackEndpoint}
}

// SubscriptionKey identifies a subscription.
type SubscriptionKey struct {
	Name             string
	CallbackEndpoint string
}
