package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/msgbus/internal/model"
)

// Placeholders use the $N form, which lib/pq and modernc.org/sqlite both bind
// positionally.

// eventColumns is the column list used for SELECT statements on the events table.
const eventColumns = `id, name, payload, published_at, delivered_count`

// subscriptionColumns is the column list used for SELECT statements on the subscriptions table.
const subscriptionColumns = `name, callback_endpoint, owner, created_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryAddSubscription(ctx context.Context, db executor, sub *model.Subscription) (bool, error) {
	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO subscriptions (name, callback_endpoint, owner, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name, callback_endpoint) DO NOTHING`,
		sub.Name,
		sub.CallbackEndpoint,
		nullString(sub.Owner),
		createdAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert subscription: rows affected: %w", err)
	}
	return n > 0, nil
}

func queryRemoveSubscription(ctx context.Context, db executor, name, endpoint string) (bool, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE name = $1 AND callback_endpoint = $2`,
		name, endpoint,
	)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete subscription: rows affected: %w", err)
	}
	return n > 0, nil
}

func queryListSubscriptions(ctx context.Context, db executor) ([]*model.Subscription, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

func queryAppendEvent(ctx context.Context, db executor, name string, payload json.RawMessage, publishedAt time.Time) (*model.Event, error) {
	payload = model.PayloadOrEmpty(payload)
	if publishedAt.IsZero() {
		publishedAt = time.Now().UTC()
	}

	var id int64
	err := db.QueryRowContext(ctx, `
		INSERT INTO events (name, payload, published_at, delivered_count)
		VALUES ($1, $2, $3, 0)
		RETURNING id`,
		name,
		string(payload),
		publishedAt,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	return &model.Event{
		ID:          id,
		Name:        name,
		Payload:     payload,
		PublishedAt: publishedAt,
	}, nil
}

func queryUpdateDeliveredCount(ctx context.Context, db executor, id int64, count int) error {
	res, err := db.ExecContext(ctx, `UPDATE events SET delivered_count = $1 WHERE id = $2`, count, id)
	if err != nil {
		return fmt.Errorf("update delivered count: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update delivered count: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update delivered count: event %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

func queryListEvents(ctx context.Context, db executor, filter model.EventFilter) ([]*model.Event, error) {
	var (
		q    = `SELECT ` + eventColumns + ` FROM events`
		args []any
	)
	var where []string
	if filter.Name != "" {
		args = append(args, filter.Name)
		where = append(where, fmt.Sprintf("name = $%d", len(args)))
	}
	if filter.BeforeID > 0 {
		args = append(args, filter.BeforeID)
		where = append(where, fmt.Sprintf("id < $%d", len(args)))
	}
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d`, len(args)+1)
	args = append(args, filter.EffectiveLimit())

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func queryEventStats(ctx context.Context, db executor, since time.Time, top int) (*model.EventStats, error) {
	var st model.EventStats

	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&st.TotalEvents); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE published_at >= $1`, since,
	).Scan(&st.EventsLastHour); err != nil {
		return nil, fmt.Errorf("count recent events: %w", err)
	}

	if top <= 0 {
		st.TopEventNames = []model.NameCount{}
		return &st, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT name, COUNT(*) AS count
		FROM events
		GROUP BY name
		ORDER BY count DESC, name ASC
		LIMIT $1`, top)
	if err != nil {
		return nil, fmt.Errorf("top event names: %w", err)
	}
	defer rows.Close()

	st.TopEventNames = []model.NameCount{}
	for rows.Next() {
		var nc model.NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, fmt.Errorf("scan top event name: %w", err)
		}
		st.TopEventNames = append(st.TopEventNames, nc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top event names: %w", err)
	}
	return &st, nil
}
