package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/community-events/internal/apperror"
	"github.com/sakif/community-events/internal/model"
	"github.com/sakif/community-events/internal/repository"
)

// compile-time check that *EventDB implements repository.EventRepository
var _ repository.EventRepository = (*EventDB)(nil)

// EventDB reads and writes the events table.
type EventDB struct {
	conn *sql.DB
}

// eventSelect is the read projection shared by GetByID and List.
//
// CORRELATED SUBQUERY:
// registered_count is computed per row from event_registrations, so it is
// always live. The idx_event_registrations_event_id index keeps it cheap.
const eventSelect = `
	SELECT e.event_id, e.title, e.description, e.location, e.date, e.capacity, e.price,
	       e.created_by, COALESCE(u.name, ''), e.external_id, e.image_url, e.url, e.created_at,
	       (SELECT COUNT(*) FROM event_registrations r WHERE r.event_id = e.event_id)
	FROM events e
	LEFT JOIN users u ON u.username = e.created_by`

// Create inserts the event and fills in ID and CreatedAt.
// A missing creator surfaces as NotFound through the foreign key.
func (r *EventDB) Create(ctx context.Context, event *model.Event) error {
	event.Date = dbTime(event.Date)
	event.CreatedAt = dbTime(time.Now())

	result, err := r.conn.ExecContext(ctx,
		`INSERT INTO events
		   (title, description, location, date, capacity, price, created_by, external_id, image_url, url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.Title,
		event.Description,
		event.Location,
		event.Date,
		event.Capacity,
		event.Price,
		event.CreatedBy,
		event.ExternalID,
		event.ImageURL,
		event.URL,
		event.CreatedAt,
	)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return apperror.NotFound("User")
		case isUniqueViolation(err):
			return apperror.Conflict("An event with this external ID already exists")
		}
		return fmt.Errorf("sqlite: inserting event %q: %w", event.Title, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading event id: %w", err)
	}
	event.ID = id
	event.RegisteredCount = 0
	return nil
}

// GetByID returns apperror.ErrNotFound if the event does not exist.
func (r *EventDB) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	row := r.conn.QueryRowContext(ctx, eventSelect+` WHERE e.event_id = ?`, id)

	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("Event")
		}
		return nil, fmt.Errorf("sqlite: getting event %d: %w", id, err)
	}
	return e, nil
}

// List returns events matching filter, soonest first.
//
// The search folds case on both sides with unicode_lower (funcs.go), matching
// ILIKE in PostgreSQL for non-ASCII text too.
func (r *EventDB) List(ctx context.Context, filter model.EventFilter) ([]model.Event, error) {
	var (
		where []string
		args  []any
	)
	if filter.Search != "" {
		p := likePattern(strings.ToLower(filter.Search))
		where = append(where, `(unicode_lower(e.title) LIKE ? ESCAPE '\' OR unicode_lower(e.description) LIKE ? ESCAPE '\')`)
		args = append(args, p, p)
	}
	if filter.MinPrice != nil {
		where, args = append(where, "e.price >= ?"), append(args, *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		where, args = append(where, "e.price <= ?"), append(args, *filter.MaxPrice)
	}
	if filter.StartDate != nil {
		where, args = append(where, "e.date >= ?"), append(args, dbTime(*filter.StartDate))
	}
	if filter.EndDate != nil {
		where, args = append(where, "e.date <= ?"), append(args, dbTime(*filter.EndDate))
	}
	if filter.CreatedBy != "" {
		where, args = append(where, "e.created_by = ?"), append(args, filter.CreatedBy)
	}

	query := eventSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY e.date ASC, e.event_id ASC"

	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing events: %w", err)
	}
	defer rows.Close()

	events := make([]model.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning event row: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating events: %w", err)
	}
	return events, nil
}

// Update applies the whitelisted, non-nil fields of patch.
//
// When capacity is lowered, the WHERE clause also requires the current
// registration count to fit, so the update and the check are one statement.
// If nothing matched we look again to tell "no such event" apart from
// "capacity too small".
func (r *EventDB) Update(ctx context.Context, id int64, patch model.EventPatch) (*model.Event, error) {
	if patch.Empty() {
		return nil, apperror.ValidationFailed("", "No valid fields to update")
	}

	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Location != nil {
		add("location", *patch.Location)
	}
	if patch.Date != nil {
		add("date", dbTime(*patch.Date))
	}
	if patch.Capacity != nil {
		add("capacity", *patch.Capacity)
	}
	if patch.Price != nil {
		add("price", *patch.Price)
	}
	if patch.ImageURL != nil {
		add("image_url", *patch.ImageURL)
	}
	if patch.URL != nil {
		add("url", *patch.URL)
	}

	query := `UPDATE events SET ` + strings.Join(sets, ", ") + ` WHERE event_id = ?`
	args = append(args, id)
	if patch.Capacity != nil {
		query += ` AND (SELECT COUNT(*) FROM event_registrations r WHERE r.event_id = events.event_id) <= ?`
		args = append(args, *patch.Capacity)
	}

	result, err := r.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating event %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, apperror.ValidationFailed("capacity", "Capacity cannot be lower than the number of registrations")
	}

	return r.GetByID(ctx, id)
}

// Delete removes the event; its registrations cascade.
func (r *EventDB) Delete(ctx context.Context, id int64) error {
	result, err := r.conn.ExecContext(ctx, `DELETE FROM events WHERE event_id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting event %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("Event")
	}
	return nil
}

func scanEvent(s rowScanner) (*model.Event, error) {
	var e model.Event
	if err := s.Scan(
		&e.ID,
		&e.Title,
		&e.Description,
		&e.Location,
		&e.Date,
		&e.Capacity,
		&e.Price,
		&e.CreatedBy,
		&e.CreatorName,
		&e.ExternalID,
		&e.ImageURL,
		&e.URL,
		&e.CreatedAt,
		&e.RegisteredCount,
	); err != nil {
		return nil, err
	}
	return &e, nil
}
