// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database: it lives inside the Go binary as a single file.
// No separate database server to install or manage. It is the default backend for
// single-node deployments and what every service and handler test runs against
// (":memory:" gives each test a fresh, isolated database).
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means a C compiler and painful cross-compilation.
// modernc.org/sqlite is a pure Go translation of SQLite and works everywhere Go works.
//
// CONCURRENCY MODEL:
// SQLite allows exactly one writer at a time. We cap the pool at ONE open
// connection, so every statement is serialized through it. Together with
// _txlock=immediate (transactions take the write lock at BEGIN) this makes
// the registration check-and-insert atomic without any application locks.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// BLANK IMPORT:
	// The sqlite package's init() registers itself with database/sql as the
	// driver named "sqlite". After this import, sql.Open("sqlite", ...) works.
	_ "modernc.org/sqlite"

	"github.com/sakif/community-events/internal/repository"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and hands out the per-table repositories.
type DB struct {
	conn *sql.DB

	users         *UserDB
	events        *EventDB
	registrations *RegistrationDB
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/events.db"  → file-based database (persistent)
//   - ":memory:"        → in-memory database (tests; lost on close)
//
// CONNECTION PRAGMAS:
// Pragmas are passed on the DSN rather than with db.Exec so they apply to
// every connection the pool ever opens, not just the first one:
//   - foreign_keys(1)     FK enforcement, required for ON DELETE CASCADE
//   - busy_timeout(5000)  wait up to 5s for a lock instead of failing with SQLITE_BUSY
//   - _time_format=sqlite store time.Time as "YYYY-MM-DD HH:MM:SS+00:00" text,
//     which sorts and compares correctly as long as values are UTC
//   - _txlock=immediate   BEGIN IMMEDIATE for every transaction
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection: serializes writers and keeps ":memory:" databases
	// from splitting into several independent copies.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress. For ":memory:"
	// SQLite silently keeps journal_mode=memory, which is fine.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{
		conn:          conn,
		users:         &UserDB{conn: conn},
		events:        &EventDB{conn: conn},
		registrations: &RegistrationDB{conn: conn},
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite&_txlock=immediate"
}

func (db *DB) Users() repository.UserRepository                 { return db.users }
func (db *DB) Events() repository.EventRepository               { return db.events }
func (db *DB) Registrations() repository.RegistrationRepository { return db.registrations }

// Ping checks the database is reachable. Used by the /readyz probe.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Stats reports the database/sql pool statistics.
func (db *DB) Stats() sql.DBStats {
	return db.conn.Stats()
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema.
//
// CREATE ... IF NOT EXISTS is idempotent, so this runs on every start.
// Columns added after the first release go through addColumnIfNotExists.
//
// There is no trigger checking that events.created_by is an
// admin: that rule lives in EventService.Create and nowhere else.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			username   TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			email      TEXT NOT NULL UNIQUE,
			password   TEXT NOT NULL,
			is_admin   BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// github_id arrived with GitHub sign-in. SQLite cannot ADD COLUMN ... UNIQUE,
	// so uniqueness comes from a separate index.
	if err := db.addColumnIfNotExists("users", "github_id", "INTEGER"); err != nil {
		return fmt.Errorf("adding github_id to users: %w", err)
	}
	if _, err := db.conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_github_id ON users(github_id)`,
	); err != nil {
		return fmt.Errorf("creating users github_id index: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			event_id    INTEGER PRIMARY KEY AUTOINCREMENT,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			location    TEXT NOT NULL,
			date        DATETIME NOT NULL,
			capacity    INTEGER NOT NULL CHECK (capacity >= 1),
			price       REAL NOT NULL DEFAULT 0 CHECK (price >= 0),
			created_by  TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
			external_id TEXT UNIQUE,
			image_url   TEXT NOT NULL DEFAULT '',
			url         TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_events_date ON events(date);
		CREATE INDEX IF NOT EXISTS idx_events_created_by ON events(created_by);
	`)
	if err != nil {
		return fmt.Errorf("creating events table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS event_registrations (
			registration_id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id        INTEGER NOT NULL REFERENCES events(event_id) ON DELETE CASCADE,
			username        TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
			registered_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (event_id, username)
		);
		CREATE INDEX IF NOT EXISTS idx_event_registrations_event_id ON event_registrations(event_id);
		CREATE INDEX IF NOT EXISTS idx_event_registrations_username ON event_registrations(username);
	`)
	if err != nil {
		return fmt.Errorf("creating event_registrations table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent, so it is safe to run multiple times.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
