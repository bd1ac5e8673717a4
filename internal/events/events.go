// Package events mirrors bus activity onto an external broker.
//
// Mirroring is informational. It runs after the event is durably appended
// and its failure never changes the publish result or delivery.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "msgbus.events"

// Published is the mirror message for one appended event.
type Published struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Payload         json.RawMessage `json:"payload"`
	PublishedAt     time.Time       `json:"published_at"`
	SubscriberCount int             `json:"subscriber_count"`
}

// Publisher is the interface for emitting mirror messages.
type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
	Close() error
}

// Subject returns the subject an event name is mirrored to. Characters NATS
// treats as separators or wildcards inside a token are replaced with '_'.
func Subject(prefix, name string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n', '*', '>':
			return '_'
		}
		return r
	}, name)
	if clean == "" {
		clean = "_"
	}
	return prefix + "." + clean
}

// WildcardSubject matches every mirrored event under prefix.
func WildcardSubject(prefix string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + ".>"
}
