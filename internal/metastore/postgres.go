package metastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the preferences table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS preferences (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a key/value preferences table.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store on the given connection or pool. The
// caller is responsible for calling [PostgresStore.Migrate] first.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("metastore: migrate: %w", err)
	}
	return nil
}

// Save writes the document and the sync stamp in a single statement, so
// either both rows change or neither does.
func (s *PostgresStore) Save(ctx context.Context, doc []byte) error {
	now := nowFunc().UTC()
	const query = `
		INSERT INTO preferences (key, value, updated_at)
		VALUES ($1, $2, $5), ($3, $4, $5)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

	_, err := s.db.Exec(ctx, query,
		DocumentKey, doc,
		SyncKey, []byte(now.Format(time.RFC3339Nano)),
		now,
	)
	if err != nil {
		return fmt.Errorf("metastore: save: %w", err)
	}
	return nil
}

// Load implements [Store.Load].
func (s *PostgresStore) Load(ctx context.Context) ([]byte, error) {
	doc, err := s.value(ctx, DocumentKey)
	if err != nil {
		return nil, fmt.Errorf("metastore: load: %w", err)
	}
	return doc, nil
}

// Clear implements [Store.Clear].
func (s *PostgresStore) Clear(ctx context.Context) error {
	const query = `DELETE FROM preferences WHERE key IN ($1, $2)`
	if _, err := s.db.Exec(ctx, query, DocumentKey, SyncKey); err != nil {
		return fmt.Errorf("metastore: clear: %w", err)
	}
	return nil
}

// LastSync implements [Store.LastSync].
func (s *PostgresStore) LastSync(ctx context.Context) (time.Time, bool, error) {
	raw, err := s.value(ctx, SyncKey)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("metastore: last sync: %w", err)
	}
	if raw == nil {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("metastore: parse %s: %w", SyncKey, err)
	}
	return t, true, nil
}

// value returns nil, nil when key has no row.
func (s *PostgresStore) value(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRow(ctx, `SELECT value FROM preferences WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
