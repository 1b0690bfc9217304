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

var _ repository.UserRepository = (*UserDB)(nil)

type UserDB struct {
	pool *pgxpool.Pool
}

const userColumns = `username, name, email, password, is_admin, github_id, created_at`

func (r *UserDB) Create(ctx context.Context, user *model.User) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, name, email, password, is_admin, github_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		user.Username, user.Name, user.Email, user.PasswordHash, user.IsAdmin, user.GitHubID,
	).Scan(&user.CreatedAt)
	if err != nil {
		if mapped := userConflict(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("postgres: inserting user %s: %w", user.Username, err)
	}
	return nil
}

func (r *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, "username = $1", username)
}

func (r *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "email = $1", email)
}

func (r *UserDB) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return r.getOne(ctx, "github_id = $1", githubID)
}

func (r *UserDB) getOne(ctx context.Context, where string, arg any) (*model.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("User")
		}
		return nil, fmt.Errorf("postgres: getting user (%s %v): %w", where, arg, err)
	}
	return u, nil
}

func (r *UserDB) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, username ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating users: %w", err)
	}
	return users, nil
}

func (r *UserDB) Update(ctx context.Context, username string, patch model.UserPatch) (*model.User, error) {
	if patch.Empty() {
		return nil, apperror.ValidationFailed("", "No valid fields to update")
	}

	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.PasswordHash != nil {
		add("password", *patch.PasswordHash)
	}
	if patch.IsAdmin != nil {
		add("is_admin", *patch.IsAdmin)
	}
	args = append(args, username)

	row := r.pool.QueryRow(ctx,
		fmt.Sprintf(`UPDATE users SET %s WHERE username = $%d RETURNING %s`,
			strings.Join(sets, ", "), len(args), userColumns),
		args...,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("User")
		}
		if mapped := userConflict(err); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("postgres: updating user %s: %w", username, err)
	}
	return u, nil
}

func (r *UserDB) LinkGitHub(ctx context.Context, username string, githubID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET github_id = $1 WHERE username = $2`, githubID, username)
	if err != nil {
		if mapped := userConflict(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("postgres: linking github account for %s: %w", username, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("User")
	}
	return nil
}

func (r *UserDB) Delete(ctx context.Context, username string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("postgres: deleting user %s: %w", username, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("User")
	}
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(
		&u.Username, &u.Name, &u.Email, &u.PasswordHash,
		&u.IsAdmin, &u.GitHubID, &u.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}
