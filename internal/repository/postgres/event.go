package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/community-events/internal/apperror"
	"github.com/sakif/community-events/internal/model"
	"github.com/sakif/community-events/internal/repository"
)

var _ repository.EventRepository = (*EventDB)(nil)

type EventDB struct {
	pool *pgxpool.Pool
}

// price is NUMERIC in the schema; casting to float8 keeps scanning simple.
const eventSelect = `
	SELECT e.event_id, e.title, e.description, e.location, e.date, e.capacity, e.price::float8,
	       e.created_by, COALESCE(u.name, ''), e.external_id, e.image_url, e.url, e.created_at,
	       (SELECT COUNT(*) FROM event_registrations r WHERE r.event_id = e.event_id)::int
	FROM events e
	LEFT JOIN users u ON u.username = e.created_by`

func (r *EventDB) Create(ctx context.Context, event *model.Event) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO events
		   (title, description, location, date, capacity, price, created_by, external_id, image_url, url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING event_id, created_at`,
		event.Title, event.Description, event.Location, event.Date.UTC(), event.Capacity,
		event.Price, event.CreatedBy, event.ExternalID, event.ImageURL, event.URL,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		if hasCode(err, codeUniqueViolation) {
			return apperror.Conflict("An event with this external ID already exists")
		}
		if mapped := mapConstraint(err, "User"); mapped != nil {
			return mapped
		}
		return fmt.Errorf("postgres: inserting event %q: %w", event.Title, err)
	}
	event.RegisteredCount = 0
	return nil
}

func (r *EventDB) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx, eventSelect+` WHERE e.event_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("Event")
		}
		return nil, fmt.Errorf("postgres: getting event %d: %w", id, err)
	}
	return e, nil
}

func (r *EventDB) List(ctx context.Context, filter model.EventFilter) ([]model.Event, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Search != "" {
		p := arg(likePattern(filter.Search))
		where = append(where, fmt.Sprintf("(e.title ILIKE %s OR e.description ILIKE %s)", p, p))
	}
	if filter.MinPrice != nil {
		where = append(where, "e.price >= "+arg(*filter.MinPrice))
	}
	if filter.MaxPrice != nil {
		where = append(where, "e.price <= "+arg(*filter.MaxPrice))
	}
	if filter.StartDate != nil {
		where = append(where, "e.date >= "+arg(filter.StartDate.UTC()))
	}
	if filter.EndDate != nil {
		where = append(where, "e.date <= "+arg(filter.EndDate.UTC()))
	}
	if filter.CreatedBy != "" {
		where = append(where, "e.created_by = "+arg(filter.CreatedBy))
	}

	query := eventSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY e.date ASC, e.event_id ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing events: %w", err)
	}
	defer rows.Close()

	events := make([]model.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning event row: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating events: %w", err)
	}
	return events, nil
}

// Update locks the event row first so a concurrent registration cannot
// change the count between the capacity check and the write.
func (r *EventDB) Update(ctx context.Context, id int64, patch model.EventPatch) (*model.Event, error) {
	if patch.Empty() {
		return nil, apperror.ValidationFailed("", "No valid fields to update")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: beginning update tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT TRUE FROM events WHERE event_id = $1 FOR UPDATE`, id,
	).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("Event")
		}
		return nil, fmt.Errorf("postgres: locking event %d: %w", id, err)
	}

	if patch.Capacity != nil {
		var count int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM event_registrations WHERE event_id = $1`, id,
		).Scan(&count); err != nil {
			return nil, fmt.Errorf("postgres: counting registrations for event %d: %w", id, err)
		}
		if *patch.Capacity < count {
			return nil, apperror.ValidationFailed("capacity", "Capacity cannot be lower than the number of registrations")
		}
	}

	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
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
		add("date", patch.Date.UTC())
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
	args = append(args, id)

	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`UPDATE events SET %s WHERE event_id = $%d`, strings.Join(sets, ", "), len(args)),
		args...,
	); err != nil {
		if mapped := mapConstraint(err, "Event"); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("postgres: updating event %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: committing event update: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *EventDB) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE event_id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting event %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("Event")
	}
	return nil
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	if err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.Location, &e.Date, &e.Capacity, &e.Price,
		&e.CreatedBy, &e.CreatorName, &e.ExternalID, &e.ImageURL, &e.URL, &e.CreatedAt,
		&e.RegisteredCount,
	); err != nil {
		return nil, err
	}
	return &e, nil
}
