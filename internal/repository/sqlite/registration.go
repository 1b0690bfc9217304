package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/community-events/internal/apperror"
	"github.com/sakif/community-events/internal/model"
	"github.com/sakif/community-events/internal/repository"
)

// compile-time check that *RegistrationDB implements repository.RegistrationRepository
var _ repository.RegistrationRepository = (*RegistrationDB)(nil)

// RegistrationDB reads and writes event_registrations.
type RegistrationDB struct {
	conn *sql.DB
}

// Register inserts a registration if, and only if, the event has room.
//
// ONE STATEMENT, NO RACE:
// The capacity check is part of the INSERT itself:
//
//	INSERT ... SELECT ... FROM events WHERE count(registrations) < capacity
//
// SQLite executes a statement under its single write lock, so no other
// registration can slip in between the count and the insert. The outcome is
// read from the statement result:
//   - 1 row inserted          → success
//   - 0 rows inserted         → the event is full, or does not exist
//   - UNIQUE(event_id, username) violation → already registered
//
// Because the full-capacity case yields zero candidate rows before the unique
// index is ever consulted, a user who is already registered for a full event
// is told the event is full. That matches the order of checks callers expect.
//
// The surrounding transaction (BEGIN IMMEDIATE via _txlock) keeps the
// follow-up existence lookup consistent with the insert.
func (r *RegistrationDB) Register(ctx context.Context, eventID int64, username string) (*model.Registration, error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning registration tx: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	reg := &model.Registration{
		EventID:      eventID,
		Username:     username,
		RegisteredAt: dbTime(time.Now()),
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO event_registrations (event_id, username, registered_at)
		 SELECT e.event_id, ?, ?
		 FROM events e
		 WHERE e.event_id = ?
		   AND (SELECT COUNT(*) FROM event_registrations r WHERE r.event_id = e.event_id) < e.capacity`,
		username, reg.RegisteredAt, eventID,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return nil, apperror.AlreadyRegistered()
		case isForeignKeyViolation(err):
			return nil, apperror.NotFound("User")
		}
		return nil, fmt.Errorf("sqlite: registering %s for event %d: %w", username, eventID, err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if inserted == 0 {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM events WHERE event_id = ?`, eventID,
		).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("sqlite: checking event %d: %w", eventID, err)
		}
		if exists == 0 {
			return nil, apperror.NotFound("Event")
		}
		return nil, apperror.CapacityExceeded()
	}

	reg.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading registration id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing registration: %w", err)
	}
	return reg, nil
}

// Unregister deletes the (event, user) pair. NotFound if it was never there.
func (r *RegistrationDB) Unregister(ctx context.Context, eventID int64, username string) error {
	result, err := r.conn.ExecContext(ctx,
		`DELETE FROM event_registrations WHERE event_id = ? AND username = ?`,
		eventID, username,
	)
	if err != nil {
		return fmt.Errorf("sqlite: unregistering %s from event %d: %w", username, eventID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("Registration")
	}
	return nil
}

// ListByEvent returns the attendees of an event in sign-up order.
func (r *RegistrationDB) ListByEvent(ctx context.Context, eventID int64) ([]model.EventRegistrant, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT r.registration_id, r.event_id, r.username, r.registered_at, u.name, u.email
		 FROM event_registrations r
		 JOIN users u ON u.username = r.username
		 WHERE r.event_id = ?
		 ORDER BY r.registered_at ASC, r.registration_id ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing registrations for event %d: %w", eventID, err)
	}
	defer rows.Close()

	out := make([]model.EventRegistrant, 0)
	for rows.Next() {
		var er model.EventRegistrant
		if err := rows.Scan(
			&er.ID, &er.EventID, &er.Username, &er.RegisteredAt,
			&er.Name, &er.Email,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning registration row: %w", err)
		}
		out = append(out, er)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating registrations: %w", err)
	}
	return out, nil
}

// ListByUser returns a user's registrations, soonest event first.
func (r *RegistrationDB) ListByUser(ctx context.Context, username string) ([]model.UserRegistration, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT r.registration_id, r.event_id, r.username, r.registered_at,
		        e.title, e.location, e.date, e.price, e.capacity,
		        (SELECT COUNT(*) FROM event_registrations c WHERE c.event_id = e.event_id)
		 FROM event_registrations r
		 JOIN events e ON e.event_id = r.event_id
		 WHERE r.username = ?
		 ORDER BY e.date ASC, r.registration_id ASC`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing registrations for user %s: %w", username, err)
	}
	defer rows.Close()

	out := make([]model.UserRegistration, 0)
	for rows.Next() {
		var ur model.UserRegistration
		if err := rows.Scan(
			&ur.ID, &ur.EventID, &ur.Username, &ur.RegisteredAt,
			&ur.Title, &ur.Location, &ur.Date, &ur.Price, &ur.Capacity,
			&ur.RegisteredCount,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning registration row: %w", err)
		}
		out = append(out, ur)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating registrations: %w", err)
	}
	return out, nil
}

func (r *RegistrationDB) IsRegistered(ctx context.Context, eventID int64, username string) (bool, error) {
	var n int
	err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_registrations WHERE event_id = ? AND username = ?`,
		eventID, username,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking registration: %w", err)
	}
	return n > 0, nil
}

func (r *RegistrationDB) Count(ctx context.Context, eventID int64) (int, error) {
	var n int
	err := r.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_registrations WHERE event_id = ?`, eventID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting registrations for event %d: %w", eventID, err)
	}
	return n, nil
}
