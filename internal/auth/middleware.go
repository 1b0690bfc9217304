package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Identity is who is making the request, as stated by a validated token.
type Identity struct {
	Username string
	IsAdmin  bool
}

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. A plain string key could be
// read or shadowed by any package that knows the string. Only this package
// can create a key of type contextKey.
type contextKey string

const identityKey contextKey = "identity"

// Messages for the 401/403 bodies written by the middleware.
const (
	msgAuthRequired  = "Authentication required. Please provide a valid token."
	msgInvalidToken  = "Invalid or expired token. Please login again."
	msgAdminRequired = "Admin access required"
)

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the authenticated identity.
// ok is false for anonymous requests.
//
//	id, ok := auth.IdentityFromContext(r.Context())
//	if !ok {
//	    // anonymous user
//	}
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.Username != ""
}

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads the JWT from the "Authorization: Bearer <token>" header, validates
// it, and stores the Identity in the request context. A missing or invalid
// token ends the chain with 401.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware takes an http.Handler and returns a new http.Handler that
// wraps it. Chi applies them in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", msgAuthRequired)
				return
			}
			claims, err := tokens.Validate(raw)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", msgInvalidToken)
				return
			}

			ctx := WithIdentity(r.Context(), Identity{Username: claims.Username, IsAdmin: claims.IsAdmin})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the Identity when a valid token is present and lets
// the request through either way.
//
// Used on public routes where a logged-in caller may see more, e.g.
// GET /api/users/{username} shows the email to its owner.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw, ok := BearerToken(r); ok {
				if claims, err := tokens.Validate(raw); err == nil {
					r = r.WithContext(WithIdentity(r.Context(), Identity{
						Username: claims.Username,
						IsAdmin:  claims.IsAdmin,
					}))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin must run after RequireAuth. Anonymous callers get 401,
// authenticated non-admins get 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized", msgAuthRequired)
			return
		}
		if !id.IsAdmin {
			writeAuthError(w, http.StatusForbidden, "forbidden", msgAdminRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// IsExpired reports whether a Validate error was caused by expiry.
func IsExpired(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}

// writeAuthError writes the same {"error","message"} body the handlers use.
// The handler package cannot be imported from here without a cycle.
func writeAuthError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errType,
		"message": message,
	})
}
