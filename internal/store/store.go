// Package store holds the Postgres queries behind seasons, clans and
// per-season player records.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/albapepper/donation-tracker/internal/db"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrStaleSeason is returned when a rollover raced another one.
	ErrStaleSeason = errors.New("store: season already rolled over")
)

// Store runs queries against the shared pool.
type Store struct {
	pool *db.Pool
}

// New returns a Store backed by pool.
func New(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.HealthCheck(ctx)
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
