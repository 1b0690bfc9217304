// Package auth provides the authentication primitives of the events API:
// JWT access tokens, bcrypt password hashing, the GitHub OAuth provider and
// the HTTP middleware that turns a bearer token into a request identity.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. POST /api/auth/register or /api/auth/login → the service verifies the
//     credentials and calls TokenService.Generate(username, isAdmin)
//  2. The client keeps the token and sends it on every call:
//     Authorization: Bearer <token>
//  3. RequireAuth / OptionalAuth validate the token and store an Identity
//     in the request context
//  4. Handlers and services read the Identity; RequireAdmin gates admin routes
//
// WHY JWT?
// The token carries everything the API needs to authorize a request
// (username + admin flag), signed with a server secret. No session table,
// no lookup per request.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims → {"sub":"alice","username":"alice","isAdmin":false,"exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// The admin flag is a snapshot taken at issue time. Promoting or demoting a
// user takes effect on their next login.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

// DefaultTokenExpiry is the token lifetime used when none is configured.
const DefaultTokenExpiry = 7 * 24 * time.Hour

// DefaultIssuer is stamped into every token and required on validation.
const DefaultIssuer = "community-events"

var (
	// ErrTokenExpired is returned by Validate for a well-formed token past its exp.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrInvalidToken covers every other validation failure.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens.
// The same secret must be used for both operations; rotating it logs
// everybody out.
type TokenService struct {
	secret []byte
	issuer string
	expiry time.Duration
}

// TokenConfig configures a TokenService. Zero Issuer and Expiry fall back to
// DefaultIssuer and DefaultTokenExpiry.
type TokenConfig struct {
	Secret string
	Issuer string
	Expiry time.Duration
}

// NewTokenService creates a TokenService from cfg.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultTokenExpiry
	}
	return &TokenService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		expiry: cfg.Expiry,
	}, nil
}

// Claims is the JWT payload.
//
// Username duplicates the standard "sub" claim so clients that decode the
// token without a JWT library can read it by name.
type Claims struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
	jwt.RegisteredClaims
}

// Expiry returns the configured token lifetime.
func (s *TokenService) Expiry() time.Duration {
	return s.expiry
}

// Generate creates and signs a token for the given user with the configured
// lifetime.
func (s *TokenService) Generate(username string, isAdmin bool) (string, error) {
	return s.GenerateWithDuration(username, isAdmin, s.expiry)
}

// GenerateWithDuration creates a token with a custom expiry duration.
// A negative duration yields an already-expired token, which the tests use.
//
// Signing algorithm: HS256 (HMAC-SHA256). Symmetric: one key signs and
// verifies, which is all a single-service deployment needs.
func (s *TokenService) GenerateWithDuration(username string, isAdmin bool, d time.Duration) (string, error) {
	if username == "" {
		return "", errors.New("auth: username must not be empty")
	}
	now := time.Now()

	c := Claims{
		Username: username,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        xid.New().String(),
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    s.issuer,
		},
	}

	// jwt.NewWithClaims creates an unsigned token with the given algorithm.
	// SignedString(key) signs it and returns the complete JWT string.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a JWT string and returns its claims.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired, and carries an exp at all
//   - Issuer matches ours (prevents tokens from other apps)
//   - Algorithm is HS256 (prevents algorithm confusion attacks)
//
// ALGORITHM CONFUSION ATTACK:
// Without checking the algorithm, an attacker could send a token signed with
// "none" and the library might accept it. jwt.WithValidMethods prevents this.
//
// Errors wrap ErrTokenExpired or ErrInvalidToken.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: unexpected claims", ErrInvalidToken)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}
	if c.Username == "" {
		c.Username = c.Subject
	}
	return c, nil
}
