package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/community-events/internal/apperror"
	"github.com/sakif/community-events/internal/auth"
	"github.com/sakif/community-events/internal/cache"
	"github.com/sakif/community-events/internal/model"
	"github.com/sakif/community-events/internal/repository"
	"github.com/sakif/community-events/internal/sanitize"
)

// UserService manages account profiles.
//
// AUTHORIZATION:
// Every mutating method takes the acting Identity. Users may change or delete
// only their own account; admins may act on anyone. Only an admin may flip
// isAdmin, including their own.
type UserService struct {
	users         repository.UserRepository
	events        repository.EventRepository
	registrations repository.RegistrationRepository
	passwords     *auth.PasswordService
	cache         cache.Cache
	logger        *slog.Logger
}

func NewUserService(store repository.Store, passwords *auth.PasswordService, c cache.Cache, logger *slog.Logger) *UserService {
	if c == nil {
		c = cache.Nop{}
	}
	return &UserService{
		users:         store.Users(),
		events:        store.Events(),
		registrations: store.Registrations(),
		passwords:     passwords,
		cache:         c,
		logger:        logger,
	}
}

// UpdateUserInput is the PATCH /api/users/{username} payload. Absent fields
// are left unchanged.
type UpdateUserInput struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
	Password *string `json:"password" validate:"omitempty,min=6,maxbytes=72"`
	IsAdmin  *bool   `json:"isAdmin"`
}

func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/user: listing users: %w", err)
	}
	return users, nil
}

// Get returns a profile. The email is included only when viewer is the
// account owner or an admin.
func (s *UserService) Get(ctx context.Context, viewer auth.Identity, username string) (*model.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if !viewer.IsAdmin && viewer.Username != user.Username {
		user.Email = ""
	}
	return user, nil
}

// Update applies a partial profile change on behalf of actor.
func (s *UserService) Update(ctx context.Context, actor auth.Identity, username string, in UpdateUserInput) (*model.User, error) {
	if err := canActOn(actor, username, "You can only update your own account"); err != nil {
		return nil, err
	}
	if in.IsAdmin != nil && !actor.IsAdmin {
		return nil, apperror.Forbidden("Only admins can change admin status")
	}

	if in.Name != nil {
		v := sanitize.Text(*in.Name)
		in.Name = &v
	}
	if in.Email != nil {
		v := strings.ToLower(strings.TrimSpace(*in.Email))
		in.Email = &v
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	patch := model.UserPatch{Name: in.Name, Email: in.Email, IsAdmin: in.IsAdmin}
	if in.Password != nil {
		hash, err := s.passwords.Hash(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("service/user: %w", err)
		}
		patch.PasswordHash = &hash
	}
	if patch.Empty() {
		return nil, apperror.ValidationFailed("", "No valid fields to update")
	}

	user, err := s.users.Update(ctx, username, patch)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user updated",
		slog.String("username", username),
		slog.String("by", actor.Username),
	)
	return user, nil
}

// Delete removes an account together with its events and registrations.
//
// The cascade happens in the database; cached copies of the affected events
// are dropped here first, because afterwards there is no way to find them.
func (s *UserService) Delete(ctx context.Context, actor auth.Identity, username string) error {
	if err := canActOn(actor, username, "You can only delete your own account"); err != nil {
		return err
	}

	var stale []string
	if owned, err := s.events.List(ctx, model.EventFilter{CreatedBy: username}); err == nil {
		for _, e := range owned {
			stale = append(stale, cache.EventKey(e.ID))
		}
	}
	if regs, err := s.registrations.ListByUser(ctx, username); err == nil {
		for _, r := range regs {
			stale = append(stale, cache.EventKey(r.EventID))
		}
	}

	if err := s.users.Delete(ctx, username); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, stale...); err != nil {
		s.logger.Warn("cache invalidation failed", slog.String("error", err.Error()))
	}

	s.logger.Info("user deleted",
		slog.String("username", username),
		slog.String("by", actor.Username),
	)
	return nil
}

// BootstrapAdmin makes sure the configured admin account exists and is an
// admin. It is safe to call on every start.
//
//   - no such user: create it with the given password, isAdmin = true
//   - user exists: promote it if needed; the password is left alone
func (s *UserService) BootstrapAdmin(ctx context.Context, username, email, password string) (*model.User, error) {
	existing, err := s.users.GetByUsername(ctx, username)
	switch {
	case err == nil:
		if existing.IsAdmin {
			return existing, nil
		}
		yes := true
		user, err := s.users.Update(ctx, username, model.UserPatch{IsAdmin: &yes})
		if err != nil {
			return nil, fmt.Errorf("service/user: promoting %s: %w", username, err)
		}
		s.logger.Info("bootstrap admin promoted", slog.String("username", username))
		return user, nil
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/user: looking up %s: %w", username, err)
	}

	in := RegisterInput{
		Username: username,
		Name:     username,
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Password: password,
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/user: %w", err)
	}
	user := &model.User{
		Username:     in.Username,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		IsAdmin:      true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("bootstrap admin created", slog.String("username", username))
	return user, nil
}

// canActOn allows the account owner and admins.
func canActOn(actor auth.Identity, username, denied string) error {
	if actor.Username == "" {
		return apperror.Unauthorized("Authentication required")
	}
	if actor.IsAdmin || actor.Username == username {
		return nil
	}
	return apperror.Forbidden(denied)
}
