// Package sqlstore implements store.Store on top of database/sql. The same
// queries run against PostgreSQL (networked) and SQLite (embedded); only the
// driver, the connection pool and the migration set differ.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/alfredjeanlab/msgbus/internal/model"
	"github.com/alfredjeanlab/msgbus/internal/store"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// SQLStore implements store.Store backed by a SQL database.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// Compile-time check that SQLStore implements store.Store.
var _ store.Store = (*SQLStore)(nil)

// Open dispatches to OpenPostgres or OpenSQLite by driver name.
func Open(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverPostgres:
		return OpenPostgres(dsn)
	case DriverSQLite, "":
		return OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q (must be postgres or sqlite)", driver)
	}
}

// runMigrations applies every pending migration under dir using the given
// database driver instance.
func runMigrations(dir, dbName string, dbDriver database.Driver) error {
	sourceDriver, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dbName, dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Driver returns the driver name the store was opened with.
func (s *SQLStore) Driver() string {
	return s.driver
}

// Ping checks connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) AddSubscription(ctx context.Context, sub *model.Subscription) (bool, error) {
	return queryAddSubscription(ctx, s.db, sub)
}

func (s *SQLStore) RemoveSubscription(ctx context.Context, name, endpoint string) (bool, error) {
	return queryRemoveSubscription(ctx, s.db, name, endpoint)
}

func (s *SQLStore) ListSubscriptions(ctx context.Context) ([]*model.Subscription, error) {
	return queryListSubscriptions(ctx, s.db)
}

func (s *SQLStore) AppendEvent(ctx context.Context, name string, payload json.RawMessage, publishedAt time.Time) (*model.Event, error) {
	return queryAppendEvent(ctx, s.db, name, payload, publishedAt)
}

func (s *SQLStore) UpdateDeliveredCount(ctx context.Context, id int64, count int) error {
	return queryUpdateDeliveredCount(ctx, s.db, id, count)
}

func (s *SQLStore) ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error) {
	return queryListEvents(ctx, s.db, filter)
}

func (s *SQLStore) EventStats(ctx context.Context, since time.Time, top int) (*model.EventStats, error) {
	return queryEventStats(ctx, s.db, since, top)
}
