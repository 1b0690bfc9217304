// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Username is the natural key. It appears in tokens, in events.created_by and
// in registrations, so it is never changed after the account exists.
//
// WHY PasswordHash HAS json:"-"?
// The bcrypt hash must never leave the server. Tagging it out of JSON means
// handlers can return a *User directly without building a separate DTO.
//
// GitHubID is nil for accounts that never signed in with GitHub.
type User struct {
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"isAdmin"`
	GitHubID     *int64    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserPatch is a partial update. Nil fields are left untouched.
type UserPatch struct {
	Name         *string
	Email        *string
	PasswordHash *string
	IsAdmin      *bool
}

// Empty reports whether the patch would change nothing.
func (p UserPatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.PasswordHash == nil && p.IsAdmin == nil
}
