// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take repository interfaces, never a concrete *sqlite.DB or
// *postgres.DB, so the same code runs against either backend and against the
// in-memory SQLite database the tests use.
//
// AUTHORIZATION LIVES HERE:
// Route middleware rejects anonymous callers and non-admins early, but the
// rules themselves ("only admins create events", "only the creator or an
// admin edits one") are checked in the service methods, which take the
// acting auth.Identity explicitly. A CLI or seed job calling the service
// gets the same rules as the HTTP API.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/community-events/internal/apperror"
	"github.com/sakif/community-events/internal/auth"
	"github.com/sakif/community-events/internal/cache"
	"github.com/sakif/community-events/internal/metrics"
	"github.com/sakif/community-events/internal/model"
	"github.com/sakif/community-events/internal/repository"
	"github.com/sakif/community-events/internal/sanitize"
)

// DefaultEventCacheTTL applies when the caller passes a zero TTL.
const DefaultEventCacheTTL = 5 * time.Minute

// EventService handles event CRUD and listing.
type EventService struct {
	events        repository.EventRepository
	users         repository.UserRepository
	registrations repository.RegistrationRepository
	cache         cache.Cache
	cacheTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewEventService wires an EventService. A nil cache disables caching.
func NewEventService(store repository.Store, c cache.Cache, ttl time.Duration, logger *slog.Logger) *EventService {
	if c == nil {
		c = cache.Nop{}
	}
	if ttl <= 0 {
		ttl = DefaultEventCacheTTL
	}
	return &EventService{
		events:        store.Events(),
		users:         store.Users(),
		registrations: store.Registrations(),
		cache:         c,
		cacheTTL:      ttl,
		logger:        logger,
		now:           time.Now,
	}
}

// CreateEventInput is the POST /api/events payload.
type CreateEventInput struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=5000"`
	Location    string    `json:"location" validate:"required,max=200"`
	Date        time.Time `json:"date" validate:"required"`
	Capacity    int       `json:"capacity" validate:"gte=1"`
	Price       float64   `json:"price" validate:"gte=0,lte=99999999.99"`
	ImageURL    string    `json:"image_url" validate:"max=2048"`
	URL         string    `json:"url" validate:"max=2048"`
	ExternalID  *string   `json:"external_id" validate:"omitempty,min=1,max=100"`
}

// UpdateEventInput is the PATCH /api/events/{id} payload. Only the listed
// columns can change; created_by and external_id are fixed at creation.
type UpdateEventInput struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	Location    *string    `json:"location" validate:"omitempty,min=1,max=200"`
	Date        *time.Time `json:"date"`
	Capacity    *int       `json:"capacity" validate:"omitempty,gte=1"`
	Price       *float64   `json:"price" validate:"omitempty,gte=0,lte=99999999.99"`
	ImageURL    *string    `json:"image_url" validate:"omitempty,max=2048"`
	URL         *string    `json:"url" validate:"omitempty,max=2048"`
}

// Create validates and stores a new event owned by actor.
//
// The admin check comes first: a non-admin learns nothing about which
// fields would have failed validation.
func (s *EventService) Create(ctx context.Context, actor auth.Identity, in CreateEventInput) (*model.Event, error) {
	if actor.Username == "" {
		return nil, apperror.Unauthorized("Authentication required")
	}
	if !actor.IsAdmin {
		return nil, apperror.Forbidden("Only admins can create events")
	}

	in.Title = sanitize.Text(in.Title)
	in.Description = sanitize.HTML(in.Description)
	in.Location = sanitize.Text(in.Location)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := s.checkFuture(in.Date); err != nil {
		return nil, err
	}
	imageURL, err := cleanURL("image_url", "Image URL", in.ImageURL)
	if err != nil {
		return nil, err
	}
	link, err := cleanURL("url", "URL", in.URL)
	if err != nil {
		return nil, err
	}

	event := &model.Event{
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		Date:        in.Date,
		Capacity:    in.Capacity,
		Price:       in.Price,
		CreatedBy:   actor.Username,
		ExternalID:  in.ExternalID,
		ImageURL:    imageURL,
		URL:         link,
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, err
	}

	s.logger.Info("event created",
		slog.Int64("event_id", event.ID),
		slog.String("title", event.Title),
		slog.String("created_by", event.CreatedBy),
	)
	// Re-read for creator_name.
	return s.events.GetByID(ctx, event.ID)
}

// Get returns one event, from cache when possible.
//
// Only the event's own columns are trusted from the cache. RegisteredCount
// is re-read on every hit: a registration that commits between a miss's
// database read and its cache write would otherwise leave a stale count
// cached for the whole TTL.
func (s *EventService) Get(ctx context.Context, id int64) (*model.Event, error) {
	key := cache.EventKey(id)

	var cached model.Event
	found, err := s.cache.Get(ctx, key, &cached)
	switch {
	case err != nil:
		metrics.EventCacheLookups.WithLabelValues("error").Inc()
		s.logger.Warn("cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	case found:
		metrics.EventCacheLookups.WithLabelValues("hit").Inc()
		count, err := s.registrations.Count(ctx, id)
		if err == nil {
			cached.RegisteredCount = count
			return &cached, nil
		}
		s.logger.Warn("registration count failed", slog.Int64("event_id", id), slog.String("error", err.Error()))
	default:
		metrics.EventCacheLookups.WithLabelValues("miss").Inc()
	}

	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, event, s.cacheTTL); err != nil {
		s.logger.Warn("cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return event, nil
}

// List returns events matching filter, soonest first.
func (s *EventService) List(ctx context.Context, filter model.EventFilter) ([]model.Event, error) {
	events, err := s.events.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service/event: listing events: %w", err)
	}
	return events, nil
}

// ListByCreator returns every event created by username.
func (s *EventService) ListByCreator(ctx context.Context, username string) ([]model.Event, error) {
	if username == "" {
		return nil, apperror.ValidationFailed("username", "Username is required")
	}
	if _, err := s.users.GetByUsername(ctx, username); err != nil {
		return nil, err
	}
	return s.List(ctx, model.EventFilter{CreatedBy: username})
}

// Update applies a whitelisted partial update on behalf of actor.
func (s *EventService) Update(ctx context.Context, actor auth.Identity, id int64, in UpdateEventInput) (*model.Event, error) {
	if err := s.authorizeOwner(ctx, actor, id); err != nil {
		return nil, err
	}

	patch := model.EventPatch{
		Capacity: in.Capacity,
		Price:    in.Price,
	}
	if in.Title != nil {
		v := sanitize.Text(*in.Title)
		patch.Title, in.Title = &v, &v
	}
	if in.Description != nil {
		v := sanitize.HTML(*in.Description)
		patch.Description, in.Description = &v, &v
	}
	if in.Location != nil {
		v := sanitize.Text(*in.Location)
		patch.Location, in.Location = &v, &v
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.Date != nil {
		if err := s.checkFuture(*in.Date); err != nil {
			return nil, err
		}
		patch.Date = in.Date
	}
	if in.ImageURL != nil {
		v, err := cleanURL("image_url", "Image URL", *in.ImageURL)
		if err != nil {
			return nil, err
		}
		patch.ImageURL = &v
	}
	if in.URL != nil {
		v, err := cleanURL("url", "URL", *in.URL)
		if err != nil {
			return nil, err
		}
		patch.URL = &v
	}
	if patch.Empty() {
		return nil, apperror.ValidationFailed("", "No valid fields to update")
	}

	event, err := s.events.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)

	s.logger.Info("event updated",
		slog.Int64("event_id", id),
		slog.String("by", actor.Username),
	)
	return event, nil
}

// Delete removes an event and, by cascade, its registrations.
func (s *EventService) Delete(ctx context.Context, actor auth.Identity, id int64) error {
	if err := s.authorizeOwner(ctx, actor, id); err != nil {
		return err
	}
	if err := s.events.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)

	s.logger.Info("event deleted",
		slog.Int64("event_id", id),
		slog.String("by", actor.Username),
	)
	return nil
}

// authorizeOwner loads the event and allows its creator and any admin.
// A missing event is reported as NotFound before any permission check.
func (s *EventService) authorizeOwner(ctx context.Context, actor auth.Identity, id int64) error {
	if actor.Username == "" {
		return apperror.Unauthorized("Authentication required")
	}
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin && event.CreatedBy != actor.Username {
		return apperror.Forbidden("Not authorized to modify this event")
	}
	return nil
}

func (s *EventService) invalidate(ctx context.Context, id int64) {
	if err := s.cache.Delete(ctx, cache.EventKey(id)); err != nil {
		s.logger.Warn("cache invalidation failed",
			slog.Int64("event_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (s *EventService) checkFuture(t time.Time) error {
	if !t.After(s.now()) {
		return apperror.ValidationFailed("date", "Event date must be in the future")
	}
	return nil
}

// cleanURL accepts "" (no link) or an absolute http(s) URL.
func cleanURL(field, label, raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	clean := sanitize.URL(raw)
	if clean == "" {
		return "", apperror.ValidationFailed(field, label+" must be a valid http(s) URL")
	}
	return clean, nil
}
