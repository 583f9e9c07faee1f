// Package postgres implements storage.Repository backed by PostgreSQL.
//
// Assignments are stored one row per lookup key with native column types;
// the client-state fingerprint uses BYTEA and keys_changed_at is a nullable
// BIGINT that maps to the optional counter on the Go side.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/syncgate/tokenserver/storage"
)

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) GetAssignment(ctx context.Context, key string) (*storage.Assignment, error) {
	var a storage.Assignment
	err := s.pool.QueryRow(ctx,
		`SELECT node, uid, client_state, keys_changed_at, generation
		   FROM assignments WHERE lookup_key = $1`, key,
	).Scan(&a.Node, &a.UID, &a.ClientState, &a.KeysChangedAt, &a.Generation)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying assignment: %w", err)
	}
	return &a, nil
}

func (s *Store) PutAssignment(ctx context.Context, key string, a *storage.Assignment) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO assignments (lookup_key, node, uid, client_state, keys_changed_at, generation)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (lookup_key) DO UPDATE SET
		   node = EXCLUDED.node,
		   uid = EXCLUDED.uid,
		   client_state = EXCLUDED.client_state,
		   keys_changed_at = EXCLUDED.keys_changed_at,
		   generation = EXCLUDED.generation`,
		key, a.Node, a.UID, a.ClientState, a.KeysChangedAt, a.Generation)
	if err != nil {
		return fmt.Errorf("upserting assignment: %w", err)
	}
	return nil
}

func (s *Store) DeleteAssignment(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM assignments WHERE lookup_key = $1`, key)
	if err != nil {
		return fmt.Errorf("deleting assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT lookup_key FROM assignments ORDER BY lookup_key`)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning lookup key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) Check(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
