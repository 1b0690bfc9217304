// Package repository declares the persistence contracts the services depend on.
//
// Two implementations live in subpackages: sqlite (embedded, the default and
// what the tests run against) and postgres (pgx). Services only ever see these
// interfaces, so swapping the backend is a configuration change.
//
// ERROR CONTRACT:
// Implementations translate driver errors into apperror values:
//   - missing rows             → apperror.NotFound
//   - unique violations        → apperror.Conflict (or AlreadyRegistered)
//   - foreign-key violations   → apperror.NotFound
//
// Anything else is wrapped and returned as-is; the HTTP layer treats it as 500.
package repository

import (
	"context"

	"github.com/sakif/community-events/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	Update(ctx context.Context, username string, patch model.UserPatch) (*model.User, error)
	LinkGitHub(ctx context.Context, username string, githubID int64) error
	// Delete removes the user; their events and registrations cascade.
	Delete(ctx context.Context, username string) error
}

type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	GetByID(ctx context.Context, id int64) (*model.Event, error)
	List(ctx context.Context, filter model.EventFilter) ([]model.Event, error)
	// Update applies the patch. Lowering capacity below the current number
	// of registrations fails with a validation error.
	Update(ctx context.Context, id int64, patch model.EventPatch) (*model.Event, error)
	Delete(ctx context.Context, id int64) error
}

type RegistrationRepository interface {
	// Register atomically checks capacity and inserts the registration.
	// It returns apperror.CapacityExceeded when the event is full and
	// apperror.AlreadyRegistered when the pair already exists.
	Register(ctx context.Context, eventID int64, username string) (*model.Registration, error)
	Unregister(ctx context.Context, eventID int64, username string) error
	ListByEvent(ctx context.Context, eventID int64) ([]model.EventRegistrant, error)
	ListByUser(ctx context.Context, username string) ([]model.UserRegistration, error)
	IsRegistered(ctx context.Context, eventID int64, username string) (bool, error)
	Count(ctx context.Context, eventID int64) (int, error)
}

// Store bundles the repositories over one database handle.
type Store interface {
	Users() UserRepository
	Events() EventRepository
	Registrations() RegistrationRepository
	Ping(ctx context.Context) error
	Close() error
}
