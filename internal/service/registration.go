package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/community-events/internal/apperror"
	"github.com/sakif/community-events/internal/auth"
	"github.com/sakif/community-events/internal/cache"
	"github.com/sakif/community-events/internal/metrics"
	"github.com/sakif/community-events/internal/model"
	"github.com/sakif/community-events/internal/repository"
)

// RegistrationService handles signing users up for events.
//
// CAPACITY:
// The capacity check and the insert are one repository call
// (RegistrationRepository.Register), so two requests racing for the last
// seat cannot both win. This service adds nothing between them.
type RegistrationService struct {
	registrations repository.RegistrationRepository
	events        repository.EventRepository
	users         repository.UserRepository
	cache         cache.Cache
	logger        *slog.Logger
}

func NewRegistrationService(store repository.Store, c cache.Cache, logger *slog.Logger) *RegistrationService {
	if c == nil {
		c = cache.Nop{}
	}
	return &RegistrationService{
		registrations: store.Registrations(),
		events:        store.Events(),
		users:         store.Users(),
		cache:         c,
		logger:        logger,
	}
}

// Register signs username up for the event.
func (s *RegistrationService) Register(ctx context.Context, eventID int64, username string) (*model.Registration, error) {
	if username == "" {
		return nil, apperror.Unauthorized("Authentication required")
	}

	reg, err := s.registrations.Register(ctx, eventID, username)
	metrics.RegistrationAttempts.WithLabelValues(registrationOutcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, eventID)

	s.logger.Info("user registered for event",
		slog.Int64("event_id", eventID),
		slog.String("username", username),
	)
	return reg, nil
}

// Unregister removes username from the event.
func (s *RegistrationService) Unregister(ctx context.Context, eventID int64, username string) error {
	if username == "" {
		return apperror.Unauthorized("Authentication required")
	}
	if err := s.registrations.Unregister(ctx, eventID, username); err != nil {
		return err
	}
	metrics.Unregistrations.Inc()
	s.invalidate(ctx, eventID)

	s.logger.Info("user unregistered from event",
		slog.Int64("event_id", eventID),
		slog.String("username", username),
	)
	return nil
}

// ListByEvent returns the attendees of an event in signup order.
func (s *RegistrationService) ListByEvent(ctx context.Context, eventID int64) ([]model.EventRegistrant, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.registrations.ListByEvent(ctx, eventID)
}

// ListByUser returns a user's registrations, soonest event first. Only the
// user themself and admins may see them.
func (s *RegistrationService) ListByUser(ctx context.Context, actor auth.Identity, username string) ([]model.UserRegistration, error) {
	if err := canActOn(actor, username, "You can only view your own registrations"); err != nil {
		return nil, err
	}
	if _, err := s.users.GetByUsername(ctx, username); err != nil {
		return nil, err
	}
	return s.registrations.ListByUser(ctx, username)
}

func (s *RegistrationService) IsRegistered(ctx context.Context, eventID int64, username string) (bool, error) {
	return s.registrations.IsRegistered(ctx, eventID, username)
}

func (s *RegistrationService) Count(ctx context.Context, eventID int64) (int, error) {
	return s.registrations.Count(ctx, eventID)
}

func (s *RegistrationService) invalidate(ctx context.Context, eventID int64) {
	if err := s.cache.Delete(ctx, cache.EventKey(eventID)); err != nil {
		s.logger.Warn("cache invalidation failed",
			slog.Int64("event_id", eventID),
			slog.String("error", err.Error()),
		)
	}
}

func registrationOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeRegistered
	case errors.Is(err, apperror.ErrCapacityExceeded):
		return metrics.OutcomeCapacityExceeded
	case errors.Is(err, apperror.ErrAlreadyRegistered):
		return metrics.OutcomeAlreadyRegistered
	case errors.Is(err, apperror.ErrNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
