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

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB reads and writes the users table.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `username, name, email, password, is_admin, github_id, created_at`

// Create inserts a new user. CreatedAt is set here.
//
// Unique violations are reported with the message the API shows the client,
// so a race between the service's pre-check and the insert still produces
// "Username already taken" rather than a 500.
func (r *UserDB) Create(ctx context.Context, user *model.User) error {
	user.CreatedAt = dbTime(time.Now())

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO users (username, name, email, password, is_admin, github_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Username,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.IsAdmin,
		user.GitHubID,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return userConflict(err)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Username, err)
	}
	return nil
}

func userConflict(err error) error {
	switch {
	case violatesColumn(err, "users.email"):
		return apperror.Conflict("Email already registered")
	case violatesColumn(err, "users.github_id"):
		return apperror.Conflict("GitHub account already linked")
	default:
		return apperror.Conflict("Username already taken")
	}
}

// GetByUsername returns apperror.ErrNotFound if no user exists with that username.
func (r *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, "username = ?", username)
}

func (r *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "email = ?", email)
}

func (r *UserDB) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return r.getOne(ctx, "github_id = ?", githubID)
}

func (r *UserDB) getOne(ctx context.Context, where string, arg any) (*model.User, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("User")
		}
		return nil, fmt.Errorf("sqlite: getting user (%s %v): %w", where, arg, err)
	}
	return u, nil
}

// List returns every user, newest first.
func (r *UserDB) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, username ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

// Update applies the non-nil fields of patch and returns the updated row.
//
// The SET clause is built from a fixed whitelist of column names; user
// input only ever reaches the query as bound parameters.
func (r *UserDB) Update(ctx context.Context, username string, patch model.UserPatch) (*model.User, error) {
	if patch.Empty() {
		return nil, apperror.ValidationFailed("", "No valid fields to update")
	}

	var (
		sets []string
		args []any
	)
	if patch.Name != nil {
		sets, args = append(sets, "name = ?"), append(args, *patch.Name)
	}
	if patch.Email != nil {
		sets, args = append(sets, "email = ?"), append(args, *patch.Email)
	}
	if patch.PasswordHash != nil {
		sets, args = append(sets, "password = ?"), append(args, *patch.PasswordHash)
	}
	if patch.IsAdmin != nil {
		sets, args = append(sets, "is_admin = ?"), append(args, *patch.IsAdmin)
	}
	args = append(args, username)

	result, err := r.conn.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE username = ?`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, userConflict(err)
		}
		return nil, fmt.Errorf("sqlite: updating user %s: %w", username, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, apperror.NotFound("User")
	}

	return r.GetByUsername(ctx, username)
}

// LinkGitHub attaches a GitHub account to an existing user.
func (r *UserDB) LinkGitHub(ctx context.Context, username string, githubID int64) error {
	result, err := r.conn.ExecContext(ctx,
		`UPDATE users SET github_id = ? WHERE username = ?`, githubID, username)
	if err != nil {
		if isUniqueViolation(err) {
			return userConflict(err)
		}
		return fmt.Errorf("sqlite: linking github account for %s: %w", username, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("User")
	}
	return nil
}

// Delete removes the user. ON DELETE CASCADE takes their events (and those
// events' registrations) and their own registrations with it.
func (r *UserDB) Delete(ctx context.Context, username string) error {
	result, err := r.conn.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", username, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("User")
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	var u model.User
	if err := s.Scan(
		&u.Username,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.IsAdmin,
		&u.GitHubID,
		&u.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}
