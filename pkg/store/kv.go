package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const kvLogPrefix = "store:kv"

// DefaultTable is the default key/value table name.
const DefaultTable = "gateway_kv"

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("key not found")

// KV is a JSON key/value repository over a single Postgres table.
type KV struct {
	pool  *pgxpool.Pool
	table string
}

// NewKV creates a KV repository. An empty table name uses DefaultTable.
func NewKV(pool *pgxpool.Pool, table string) *KV {
	if table == "" {
		table = DefaultTable
	}
	return &KV{pool: pool, table: table}
}

// EnsureSchema creates the key/value table if it does not exist.
func (kv *KV) EnsureSchema(ctx context.Context) error {
	slog.Info(fmt.Sprintf("%s - Ensuring schema for table %s", kvLogPrefix, kv.table))
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key        TEXT PRIMARY KEY,
			value      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, kv.table)
	if _, err := kv.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("%s - failed to ensure schema: %w", kvLogPrefix, err)
	}
	return nil
}

// Get returns the value stored under key, or ErrNotFound.
func (kv *KV) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var value json.RawMessage
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, kv.table)
	err := kv.pool.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s - get %q: %w", kvLogPrefix, key, err)
	}
	return value, nil
}

// Put stores value under key, replacing any existing value.
func (kv *KV) Put(ctx context.Context, key string, value json.RawMessage) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, kv.table)
	if _, err := kv.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("%s - put %q: %w", kvLogPrefix, key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error; the returned
// bool reports whether a row was removed.
func (kv *KV) Delete(ctx context.Context, key string) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, kv.table)
	tag, err := kv.pool.Exec(ctx, query, key)
	if err != nil {
		return false, fmt.Errorf("%s - delete %q: %w", kvLogPrefix, key, err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns up to limit keys in lexical order.
func (kv *KV) List(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT key FROM %s ORDER BY key LIMIT $1`, kv.table)
	rows, err := kv.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - list: %w", kvLogPrefix, err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("%s - list scan: %w", kvLogPrefix, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - list rows: %w", kvLogPrefix, err)
	}
	return keys, nil
}
