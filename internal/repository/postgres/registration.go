package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/community-events/internal/apperror"
	"github.com/sakif/community-events/internal/model"
	"github.com/sakif/community-events/internal/repository"
)

var _ repository.RegistrationRepository = (*RegistrationDB)(nil)

type RegistrationDB struct {
	pool *pgxpool.Pool
}

// Register checks capacity and inserts inside one transaction.
//
// ROW LOCK AS A PER-EVENT MUTEX:
// SELECT ... FOR UPDATE on the event row blocks every other Register (and
// capacity-changing Update) for the same event until this transaction ends.
// Registrations for different events do not contend. Under READ COMMITTED
// this is enough: after the lock is granted, the COUNT sees every
// registration committed by the previous holder.
func (r *RegistrationDB) Register(ctx context.Context, eventID int64, username string) (*model.Registration, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: beginning registration tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var capacity int
	if err := tx.QueryRow(ctx,
		`SELECT capacity FROM events WHERE event_id = $1 FOR UPDATE`, eventID,
	).Scan(&capacity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("Event")
		}
		return nil, fmt.Errorf("postgres: locking event %d: %w", eventID, err)
	}

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM event_registrations WHERE event_id = $1`, eventID,
	).Scan(&count); err != nil {
		return nil, fmt.Errorf("postgres: counting registrations for event %d: %w", eventID, err)
	}
	if count >= capacity {
		return nil, apperror.CapacityExceeded()
	}

	reg := &model.Registration{EventID: eventID, Username: username}
	err = tx.QueryRow(ctx,
		`INSERT INTO event_registrations (event_id, username)
		 VALUES ($1, $2)
		 RETURNING registration_id, registered_at`,
		eventID, username,
	).Scan(&reg.ID, &reg.RegisteredAt)
	if err != nil {
		switch {
		case hasCode(err, codeUniqueViolation):
			return nil, apperror.AlreadyRegistered()
		case hasCode(err, codeForeignKeyViolation):
			return nil, apperror.NotFound("User")
		}
		return nil, fmt.Errorf("postgres: registering %s for event %d: %w", username, eventID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: committing registration: %w", err)
	}
	return reg, nil
}

func (r *RegistrationDB) Unregister(ctx context.Context, eventID int64, username string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM event_registrations WHERE event_id = $1 AND username = $2`,
		eventID, username,
	)
	if err != nil {
		return fmt.Errorf("postgres: unregistering %s from event %d: %w", username, eventID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("Registration")
	}
	return nil
}

func (r *RegistrationDB) ListByEvent(ctx context.Context, eventID int64) ([]model.EventRegistrant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.registration_id, r.event_id, r.username, r.registered_at, u.name, u.email
		 FROM event_registrations r
		 JOIN users u ON u.username = r.username
		 WHERE r.event_id = $1
		 ORDER BY r.registered_at ASC, r.registration_id ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing registrations for event %d: %w", eventID, err)
	}
	defer rows.Close()

	out := make([]model.EventRegistrant, 0)
	for rows.Next() {
		var er model.EventRegistrant
		if err := rows.Scan(&er.ID, &er.EventID, &er.Username, &er.RegisteredAt, &er.Name, &er.Email); err != nil {
			return nil, fmt.Errorf("postgres: scanning registration row: %w", err)
		}
		out = append(out, er)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating registrations: %w", err)
	}
	return out, nil
}

func (r *RegistrationDB) ListByUser(ctx context.Context, username string) ([]model.UserRegistration, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.registration_id, r.event_id, r.username, r.registered_at,
		        e.title, e.location, e.date, e.price::float8, e.capacity,
		        (SELECT COUNT(*) FROM event_registrations c WHERE c.event_id = e.event_id)::int
		 FROM event_registrations r
		 JOIN events e ON e.event_id = r.event_id
		 WHERE r.username = $1
		 ORDER BY e.date ASC, r.registration_id ASC`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing registrations for user %s: %w", username, err)
	}
	defer rows.Close()

	out := make([]model.UserRegistration, 0)
	for rows.Next() {
		var ur model.UserRegistration
		if err := rows.Scan(
			&ur.ID, &ur.EventID, &ur.Username, &ur.RegisteredAt,
			&ur.Title, &ur.Location, &ur.Date, &ur.Price, &ur.Capacity, &ur.RegisteredCount,
		); err != nil {
			return nil, fmt.Errorf("postgres: scanning registration row: %w", err)
		}
		out = append(out, ur)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating registrations: %w", err)
	}
	return out, nil
}

func (r *RegistrationDB) IsRegistered(ctx context.Context, eventID int64, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM event_registrations WHERE event_id = $1 AND username = $2)`,
		eventID, username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: checking registration: %w", err)
	}
	return exists, nil
}

func (r *RegistrationDB) Count(ctx context.Context, eventID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM event_registrations WHERE event_id = $1`, eventID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: counting registrations for event %d: %w", eventID, err)
	}
	return n, nil
}
