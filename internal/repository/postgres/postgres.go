// Package postgres implements the repository interfaces on PostgreSQL via pgx.
//
// Schema changes are versioned SQL files under migrations/, embedded into the
// binary and applied by golang-migrate (see migrate.go). Unlike the sqlite
// backend, New does not create tables itself: run `server migrate up` first,
// or set database.auto_migrate.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/community-events/internal/repository"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

type DB struct {
	pool *pgxpool.Pool

	users         *UserDB
	events        *EventDB
	registrations *RegistrationDB
}

// New connects a pool to databaseURL and verifies it with a ping.
// maxConns <= 0 keeps the pgxpool default.
func New(ctx context.Context, databaseURL string, maxConns int) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	return NewFromPool(pool), nil
}

// NewFromPool wraps an existing pool. The returned DB owns it: Close closes the pool.
func NewFromPool(pool *pgxpool.Pool) *DB {
	return &DB{
		pool:          pool,
		users:         &UserDB{pool: pool},
		events:        &EventDB{pool: pool},
		registrations: &RegistrationDB{pool: pool},
	}
}

func (db *DB) Users() repository.UserRepository                 { return db.users }
func (db *DB) Events() repository.EventRepository               { return db.events }
func (db *DB) Registrations() repository.RegistrationRepository { return db.registrations }

func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Stat reports the pgxpool statistics.
func (db *DB) Stat() *pgxpool.Stat {
	return db.pool.Stat()
}

func (db *DB) Close() error {
	db.pool.Close()
	return nil
}
