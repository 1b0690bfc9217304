package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sakif/community-events/internal/apperror"
)

// SQLSTATE codes we translate. Everything else is an internal error.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
	codeCheckViolation      = "23514"
)

func pgError(err error) *pgconn.PgError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr
	}
	return nil
}

func hasCode(err error, code string) bool {
	pgErr := pgError(err)
	return pgErr != nil && pgErr.Code == code
}

// mapConstraint turns the generic constraint errors into API errors.
// It returns nil when err is not one of them, so callers can fall through
// to wrapping.
func mapConstraint(err error, notFound string) error {
	pgErr := pgError(err)
	if pgErr == nil {
		return nil
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return apperror.Conflict("Resource already exists")
	case codeForeignKeyViolation:
		return apperror.NotFound(notFound)
	case codeInvalidText, codeCheckViolation:
		return apperror.ValidationFailed(pgErr.ColumnName, "Invalid input")
	}
	return nil
}

func userConflict(err error) error {
	pgErr := pgError(err)
	if pgErr == nil {
		return nil
	}
	if pgErr.Code != codeUniqueViolation {
		return nil
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "email"):
		return apperror.Conflict("Email already registered")
	case strings.Contains(pgErr.ConstraintName, "github_id"):
		return apperror.Conflict("GitHub account already linked")
	default:
		return apperror.Conflict("Username already taken")
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
