package sqlstore

import (
	"database/sql"
	"encoding/json"

	"github.com/alfredjeanlab/msgbus/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEvent scans a single row into a model.Event.
// The row must contain columns in the order defined by eventColumns.
func scanEvent(row scannable) (*model.Event, error) {
	var (
		e       model.Event
		payload []byte
	)
	if err := row.Scan(&e.ID, &e.Name, &payload, &e.PublishedAt, &e.DeliveredCount); err != nil {
		return nil, err
	}
	e.Payload = json.RawMessage(payload)
	e.PublishedAt = e.PublishedAt.UTC()
	return &e, nil
}

// scanSubscription scans a single row into a model.Subscription.
// The row must contain columns in the order defined by subscriptionColumns.
func scanSubscription(row scannable) (*model.Subscription, error) {
	var (
		s     model.Subscription
		owner sql.NullString
	)
	if err := row.Scan(&s.Name, &s.CallbackEndpoint, &owner, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Owner = owner.String
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

// nullString converts an empty string to a NULL sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
