package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/community-events/internal/auth"
	"github.com/sakif/community-events/internal/cache"
	"github.com/sakif/community-events/internal/model"
	"github.com/sakif/community-events/internal/repository/sqlite"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// The services run against a real in-memory SQLite store. Only the cache is
// faked, so tests can see which keys were written and dropped.

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// recordingCache is an in-memory cache.Cache that remembers deletions.
type recordingCache struct {
	mu      sync.Mutex
	items   map[string]any
	deleted []string
}

var _ cache.Cache = (*recordingCache)(nil)

func newRecordingCache() *recordingCache {
	return &recordingCache{items: make(map[string]any)}
}

func (c *recordingCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	if !ok {
		return false, nil
	}
	// Only events are cached in these tests.
	*dest.(*model.Event) = v.(model.Event)
	return true, nil
}

func (c *recordingCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = *value.(*model.Event)
	return nil
}

func (c *recordingCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
		c.deleted = append(c.deleted, k)
	}
	return nil
}

func (c *recordingCache) Close() error { return nil }

func (c *recordingCache) wasDeleted(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.deleted {
		if k == key {
			return true
		}
	}
	return false
}

var (
	admin = auth.Identity{Username: "admin", IsAdmin: true}
	alice = auth.Identity{Username: "alice"}
	bob   = auth.Identity{Username: "bob"}
)

func seedUser(t *testing.T, db *sqlite.DB, username string, isAdmin bool) *model.User {
	t.Helper()
	u := &model.User{
		Username:     username,
		Name:         "Test " + username,
		Email:        username + "@example.com",
		PasswordHash: "$2a$04$not-a-real-hash",
		IsAdmin:      isAdmin,
	}
	require.NoError(t, db.Users().Create(context.Background(), u))
	return u
}

// seedEvent stores an event directly, bypassing the service rules.
func seedEvent(t *testing.T, db *sqlite.DB, creator string, capacity int) *model.Event {
	t.Helper()
	e := &model.Event{
		Title:     "Gopher Meetup",
		Location:  "Leeds",
		Date:      time.Now().UTC().Add(72 * time.Hour).Truncate(time.Second),
		Capacity:  capacity,
		CreatedBy: creator,
	}
	require.NoError(t, db.Events().Create(context.Background(), e))
	return e
}

func validEventInput() CreateEventInput {
	return CreateEventInput{
		Title:       "Go Workshop",
		Description: "Hands-on concurrency",
		Location:    "Leeds",
		Date:        time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second),
		Capacity:    20,
		Price:       5,
	}
}
