package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/sakif/community-events/internal/model"
)

// newTestDB opens a fresh in-memory database for one test.
//
// The pool is capped at one connection, so ":memory:" behaves like a single
// database for the whole test. t.Cleanup closes it when the test finishes.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, username string, admin bool) *model.User {
	t.Helper()
	user := &model.User{
		Username:     username,
		Name:         "Test " + username,
		Email:        username + "@example.com",
		PasswordHash: "$2a$04$not-a-real-hash",
		IsAdmin:      admin,
	}
	if err := db.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// futureDate is a second-precision UTC time a few days from now, the shape
// the repository stores.
func futureDate(days int) time.Time {
	return time.Now().UTC().Truncate(time.Second).Add(time.Duration(days) * 24 * time.Hour)
}

func createTestEvent(t *testing.T, db *DB, creator, title string, capacity int, price float64, date time.Time) *model.Event {
	t.Helper()
	event := &model.Event{
		Title:       title,
		Description: "About " + title,
		Location:    "Manchester",
		Date:        date,
		Capacity:    capacity,
		Price:       price,
		CreatedBy:   creator,
	}
	if err := db.Events().Create(context.Background(), event); err != nil {
		t.Fatalf("failed to create test event: %v", err)
	}
	return event
}

func TestNew_IsIdempotent(t *testing.T) {
	path := t.TempDir() + "/events.db"

	db, err := New(path)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	createTestUser(t, db, "alice", false)
	db.Close()

	// Running migrations against an existing schema must not fail or drop data.
	db, err = New(path)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db.Close()

	if _, err := db.Users().GetByUsername(context.Background(), "alice"); err != nil {
		t.Errorf("user lost across reopen: %v", err)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestLikePattern(t *testing.T) {
	tests := map[string]string{
		"tech":   "%tech%",
		"50%":    `%50\%%`,
		"a_b":    `%a\_b%`,
		`back\s`: `%back\\s%`,
	}
	for in, want := range tests {
		if got := likePattern(in); got != want {
			t.Errorf("likePattern(%q) = %q, want %q", in, got, want)
		}
	}
}
