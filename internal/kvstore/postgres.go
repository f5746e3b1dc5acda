package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/tontine/internal/namespace"
)

const schema = `
CREATE TABLE IF NOT EXISTS user_state (
    namespace  TEXT        NOT NULL,
    field      TEXT        NOT NULL,
    value      TEXT        NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (namespace, field)
)`

const upsertQuery = `INSERT INTO user_state (namespace, field, value, updated_at)
        VALUES ($1, $2, $3, now())
        ON CONFLICT (namespace, field) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

// PostgresStore persists user state rows in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the user_state table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create user_state: %w", err)
	}
	return nil
}

// Read fetches a single field.
func (s *PostgresStore) Read(ctx context.Context, ns namespace.Namespace, field string) (string, bool, error) {
	if ns.IsZero() {
		return "", false, nil
	}
	var value string
	err := s.db.QueryRow(ctx, `SELECT value FROM user_state WHERE namespace = $1 AND field = $2`, ns.String(), field).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select %s: %w", field, err)
	}
	return value, true, nil
}

// Write upserts a single field.
func (s *PostgresStore) Write(ctx context.Context, ns namespace.Namespace, field, value string) error {
	if ns.IsZero() {
		return nil
	}
	if _, err := s.db.Exec(ctx, upsertQuery, ns.String(), field, value); err != nil {
		return fmt.Errorf("upsert %s: %w", field, err)
	}
	return nil
}

// WriteMany upserts every field in one transaction.
func (s *PostgresStore) WriteMany(ctx context.Context, ns namespace.Namespace, values map[string]string) error {
	if ns.IsZero() || len(values) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for field, value := range values {
		if _, err := tx.Exec(ctx, upsertQuery, ns.String(), field, value); err != nil {
			return fmt.Errorf("upsert %s: %w", field, err)
		}
	}
	return tx.Commit(ctx)
}

// Update serialises writers of one namespace with a transaction-scoped
// advisory lock, so rows that do not exist yet are covered too.
func (s *PostgresStore) Update(ctx context.Context, ns namespace.Namespace, fields []string, fn UpdateFunc) error {
	if ns.IsZero() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ns.String()); err != nil {
		return fmt.Errorf("lock namespace: %w", err)
	}
	rows, err := tx.Query(ctx, `SELECT field, value FROM user_state WHERE namespace = $1 AND field = ANY($2) FOR UPDATE`, ns.String(), fields)
	if err != nil {
		return fmt.Errorf("select fields: %w", err)
	}
	current := make(map[string]string, len(fields))
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			rows.Close()
			return fmt.Errorf("scan field: %w", err)
		}
		current[field] = value
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("select fields: %w", err)
	}

	m, err := fn(current)
	if err != nil {
		return err
	}
	if len(m.Delete) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM user_state WHERE namespace = $1 AND field = ANY($2)`, ns.String(), m.Delete); err != nil {
			return fmt.Errorf("delete fields: %w", err)
		}
	}
	for field, value := range m.Set {
		if _, err := tx.Exec(ctx, upsertQuery, ns.String(), field, value); err != nil {
			return fmt.Errorf("upsert %s: %w", field, err)
		}
	}
	return tx.Commit(ctx)
}

// Delete removes the given fields.
func (s *PostgresStore) Delete(ctx context.Context, ns namespace.Namespace, fields ...string) error {
	if ns.IsZero() || len(fields) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM user_state WHERE namespace = $1 AND field = ANY($2)`, ns.String(), fields); err != nil {
		return fmt.Errorf("delete fields: %w", err)
	}
	return nil
}

// Ping verifies connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
