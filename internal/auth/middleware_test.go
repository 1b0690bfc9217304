package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// whoami echoes the identity the middleware attached, or "anonymous".
func whoami(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		_, _ = w.Write([]byte("anonymous"))
		return
	}
	if id.IsAdmin {
		_, _ = w.Write([]byte(id.Username + ":admin"))
		return
	}
	_, _ = w.Write([]byte(id.Username))
}

func do(t *testing.T, h http.Handler, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"Bearer ", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"abc.def.ghi", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		got, ok := BearerToken(req)
		assert.Equal(t, tc.ok, ok, "header %q", tc.header)
		assert.Equal(t, tc.want, got, "header %q", tc.header)
	}
}

func TestRequireAuth(t *testing.T) {
	ts := newTestTokenService(t)
	h := RequireAuth(ts)(http.HandlerFunc(whoami))

	t.Run("valid token", func(t *testing.T) {
		token, _ := ts.Generate("alice", false)
		rec := do(t, h, "Bearer "+token)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice", rec.Body.String())
	})

	t.Run("missing token", func(t *testing.T) {
		rec := do(t, h, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		body := decodeBody(t, rec)
		assert.Equal(t, "unauthorized", body["error"])
		assert.Equal(t, msgAuthRequired, body["message"])
	})

	t.Run("expired token", func(t *testing.T) {
		token, _ := ts.GenerateWithDuration("alice", false, -time.Minute)
		rec := do(t, h, "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, msgInvalidToken, decodeBody(t, rec)["message"])
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := do(t, h, "Bearer nope")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestOptionalAuth(t *testing.T) {
	ts := newTestTokenService(t)
	h := OptionalAuth(ts)(http.HandlerFunc(whoami))

	token, _ := ts.Generate("alice", true)
	assert.Equal(t, "alice:admin", do(t, h, "Bearer "+token).Body.String())
	assert.Equal(t, "anonymous", do(t, h, "").Body.String())
	assert.Equal(t, "anonymous", do(t, h, "Bearer broken").Body.String())
}

func TestRequireAdmin(t *testing.T) {
	ts := newTestTokenService(t)
	h := RequireAuth(ts)(RequireAdmin(http.HandlerFunc(whoami)))

	admin, _ := ts.Generate("boss", true)
	rec := do(t, h, "Bearer "+admin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "boss:admin", rec.Body.String())

	user, _ := ts.Generate("alice", false)
	rec = do(t, h, "Bearer "+user)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "forbidden", body["error"])
	assert.Equal(t, msgAdminRequired, body["message"])

	// Without RequireAuth in front, an anonymous call is 401, not 403.
	rec = do(t, RequireAdmin(http.HandlerFunc(whoami)), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityFromContext_EmptyUsername(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := WithIdentity(req.Context(), Identity{})
	_, ok := IdentityFromContext(ctx)
	assert.False(t, ok)
}
