package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sakif/community-events/internal/apperror"
	"github.com/sakif/community-events/internal/auth"
	"github.com/sakif/community-events/internal/model"
	"github.com/sakif/community-events/internal/repository"
	"github.com/sakif/community-events/internal/sanitize"
)

const msgInvalidCredentials = "Invalid username or password"

// AuthService handles the authentication business logic. It sits between
// the HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
//
// KEY RESPONSIBILITIES:
//   - Register and Login with username + password
//   - Verify tokens for callers that are not behind the HTTP middleware
//   - Complete the GitHub OAuth login: find, link or create the account
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// RegisterInput is the payload of POST /api/auth/register.
type RegisterInput struct {
	Username string `json:"username" validate:"required,username"`
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,maxbytes=72"`
}

// LoginInput is the payload of POST /api/auth/login.
type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResult bundles the user record and the issued JWT so the handler can
// respond in one step.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// Register creates a new, non-admin account and logs it in.
//
// Uniqueness is checked up front for the friendly message, and again by the
// UNIQUE constraints on insert, which is the check that holds under
// concurrent signups.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Name = sanitize.Text(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := validateStruct(in); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByUsername(ctx, in.Username); err == nil {
		return nil, apperror.Conflict("Username already taken")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: checking username: %w", err)
	}
	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, apperror.Conflict("Email already registered")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: checking email: %w", err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{
		Username:     in.Username,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		IsAdmin:      false,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("username", user.Username))
	return s.issue(user)
}

// Login checks the credentials and issues a token.
//
// Unknown usernames and wrong passwords produce the same error and take about
// the same time, so the endpoint cannot be used to discover accounts.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validateStruct(in); err != nil {
		return nil, apperror.ValidationFailed("", "Username and password are required")
	}

	user, err := s.users.GetByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			_ = s.passwords.VerifyDummy(in.Password)
			return nil, apperror.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: loading user: %w", err)
	}

	// OAuth-only accounts have no password hash.
	if user.PasswordHash == "" {
		_ = s.passwords.VerifyDummy(in.Password)
		return nil, apperror.Unauthorized(msgInvalidCredentials)
	}
	if err := s.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("password verification failed",
				slog.String("username", user.Username),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperror.Unauthorized(msgInvalidCredentials)
	}

	s.logger.Info("user logged in", slog.String("username", user.Username))
	return s.issue(user)
}

// Verify validates a token and returns the identity it encodes.
func (s *AuthService) Verify(token string) (auth.Identity, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		if auth.IsExpired(err) {
			return auth.Identity{}, apperror.Unauthorized("Token has expired. Please login again.")
		}
		return auth.Identity{}, apperror.Unauthorized("Invalid or expired token. Please login again.")
	}
	return auth.Identity{Username: claims.Username, IsAdmin: claims.IsAdmin}, nil
}

// Me returns the current user's record.
func (s *AuthService) Me(ctx context.Context, username string) (*model.User, error) {
	if username == "" {
		return nil, apperror.Unauthorized("Authentication required")
	}
	return s.users.GetByUsername(ctx, username)
}

// LoginWithGitHub finds or creates the account for a GitHub profile.
//
// LOOKUP ORDER:
//  1. An account already linked to this GitHub ID
//  2. An account with the same (GitHub-verified) email, which gets linked
//  3. A new account. Its username is derived from the GitHub login and
//     suffixed until unique. It has no password and is never admin.
func (s *AuthService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil || gh.ID == 0 {
		return nil, fmt.Errorf("service/auth: GitHub user must not be empty")
	}

	user, err := s.users.GetByGitHubID(ctx, gh.ID)
	if err == nil {
		s.logger.Info("user authenticated via GitHub", slog.String("username", user.Username))
		return s.issue(user)
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up github id %d: %w", gh.ID, err)
	}

	email := strings.ToLower(strings.TrimSpace(gh.Email))
	if email == "" {
		return nil, apperror.ValidationFailed("email", "Your GitHub account has no verified email address")
	}

	user, err = s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.users.LinkGitHub(ctx, user.Username, gh.ID); err != nil {
			return nil, err
		}
		id := gh.ID
		user.GitHubID = &id
		s.logger.Info("linked GitHub account",
			slog.String("username", user.Username),
			slog.Int64("github_id", gh.ID),
		)
		return s.issue(user)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up email: %w", err)
	}

	username, err := s.freeUsername(ctx, gh.Login)
	if err != nil {
		return nil, err
	}
	name := sanitize.Text(gh.Name)
	if name == "" {
		name = username
	}
	id := gh.ID
	user = &model.User{
		Username: username,
		Name:     name,
		Email:    email,
		GitHubID: &id,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered via GitHub",
		slog.String("username", user.Username),
		slog.Int64("github_id", gh.ID),
	)
	return s.issue(user)
}

var nonUsernameChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// freeUsername maps a GitHub login onto the username alphabet and appends a
// counter until no account has it.
func (s *AuthService) freeUsername(ctx context.Context, login string) (string, error) {
	base := nonUsernameChars.ReplaceAllString(login, "_")
	if len(base) > 44 {
		base = base[:44]
	}
	for len(base) < 3 {
		base += "_"
	}

	candidate := base
	for i := 2; i < 1000; i++ {
		_, err := s.users.GetByUsername(ctx, candidate)
		if errors.Is(err, apperror.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("service/auth: checking username %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
	return "", apperror.Conflict("Could not derive a free username from the GitHub login")
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.Username, user.IsAdmin)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %s: %w", user.Username, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
