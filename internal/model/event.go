package model

import (
	"encoding/json"
	"time"
)

// Event is a single published fact as recorded in the event log.
// Only DeliveredCount changes after the row is written.
type Event struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Payload        json.RawMessage `json:"payload"`
	PublishedAt    time.Time       `json:"published_at"`
	DeliveredCount int             `json:"delivered_count"`
}

// EmptyPayload is stored when a publisher omits the payload.
var EmptyPayload = json.RawMessage(`{}`)

// PayloadOrEmpty returns p, or EmptyPayload when p is absent or JSON null.
func PayloadOrEmpty(p json.RawMessage) json.RawMessage {
	if len(p) == 0 || string(p) == "null" {
		return EmptyPayload
	}
	return p
}
