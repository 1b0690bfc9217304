package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/community-events/internal/apperror"
	"github.com/sakif/community-events/internal/auth"
	"github.com/sakif/community-events/internal/cache"
	"github.com/sakif/community-events/internal/model"
	"github.com/sakif/community-events/internal/repository"
	"github.com/sakif/community-events/internal/repository/sqlite"
)

func newTestEventService(t *testing.T) (*EventService, *sqlite.DB, *recordingCache) {
	t.Helper()
	db := newTestStore(t)
	c := newRecordingCache()
	seedUser(t, db, "admin", true)
	seedUser(t, db, "alice", false)
	seedUser(t, db, "bob", false)
	return NewEventService(db, c, time.Minute, discardLogger()), db, c
}

func ptr[T any](v T) *T { return &v }

func assertValidation(t *testing.T, err error, field, msg string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, field, appErr.Field)
	if msg != "" {
		assert.Equal(t, msg, appErr.Message)
	}
}

// =========================================================================
// CREATE
// =========================================================================

func TestCreateEvent(t *testing.T) {
	svc, _, _ := newTestEventService(t)
	in := validEventInput()

	e, err := svc.Create(context.Background(), admin, in)
	require.NoError(t, err)
	assert.NotZero(t, e.ID)
	assert.Equal(t, "Go Workshop", e.Title)
	assert.Equal(t, "admin", e.CreatedBy)
	assert.Equal(t, "Test admin", e.CreatorName)
	assert.Equal(t, 0, e.RegisteredCount)
	assert.True(t, in.Date.Equal(e.Date))
}

func TestCreateEvent_NonAdminForbidden(t *testing.T) {
	svc, _, _ := newTestEventService(t)

	// Even an invalid payload reports Forbidden, not a validation error.
	in := validEventInput()
	in.Capacity = 0
	_, err := svc.Create(context.Background(), alice, in)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestCreateEvent_Anonymous(t *testing.T) {
	svc, _, _ := newTestEventService(t)

	_, err := svc.Create(context.Background(), auth.Identity{}, validEventInput())
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestCreateEvent_Validation(t *testing.T) {
	svc, _, _ := newTestEventService(t)

	tests := []struct {
		name   string
		modify func(*CreateEventInput)
		field  string
		msg    string
	}{
		{"past date", func(in *CreateEventInput) { in.Date = time.Now().Add(-time.Hour) }, "date", "Event date must be in the future"},
		{"missing date", func(in *CreateEventInput) { in.Date = time.Time{} }, "date", "Date is required"},
		{"zero capacity", func(in *CreateEventInput) { in.Capacity = 0 }, "capacity", "Capacity must be at least 1"},
		{"negative price", func(in *CreateEventInput) { in.Price = -1 }, "price", "Price cannot be negative"},
		{"price too large", func(in *CreateEventInput) { in.Price = 1e9 }, "price", "Price must be at most 99999999.99"},
		{"missing title", func(in *CreateEventInput) { in.Title = "  " }, "title", "Title is required"},
		{"title is only markup", func(in *CreateEventInput) { in.Title = "<script>x</script>" }, "title", "Title is required"},
		{"missing location", func(in *CreateEventInput) { in.Location = "" }, "location", "Location is required"},
		{"javascript url", func(in *CreateEventInput) { in.URL = "javascript:alert(1)" }, "url", "URL must be a valid http(s) URL"},
		{"relative image", func(in *CreateEventInput) { in.ImageURL = "/img.png" }, "image_url", "Image URL must be a valid http(s) URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validEventInput()
			tt.modify(&in)
			_, err := svc.Create(context.Background(), admin, in)
			assertValidation(t, err, tt.field, tt.msg)
		})
	}
}

func TestCreateEvent_Sanitizes(t *testing.T) {
	svc, _, _ := newTestEventService(t)
	in := validEventInput()
	in.Title = "<b>Go</b> Workshop"
	in.Description = `<p onclick="steal()">Bring a <em>laptop</em></p><script>alert(1)</script>`
	in.URL = "https://example.com/go?ref=home"

	e, err := svc.Create(context.Background(), admin, in)
	require.NoError(t, err)
	assert.Equal(t, "Go Workshop", e.Title)
	assert.Equal(t, "<p>Bring a <em>laptop</em></p>", e.Description)
	assert.Equal(t, "https://example.com/go?ref=home", e.URL)
}

// =========================================================================
// GET (cache)
// =========================================================================

func TestGetEvent_ReadsThroughCache(t *testing.T) {
	svc, db, c := newTestEventService(t)
	ctx := context.Background()
	seeded := seedEvent(t, db, "admin", 3)

	first, err := svc.Get(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Contains(t, c.items, cache.EventKey(seeded.ID))

	// Change the row behind the cache's back: the cached copy is served.
	_, err = db.Events().Update(ctx, seeded.ID, model.EventPatch{Title: ptr("Renamed")})
	require.NoError(t, err)

	second, err := svc.Get(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Title, second.Title)
}

func TestGetEvent_NotFound(t *testing.T) {
	svc, _, c := newTestEventService(t)

	_, err := svc.Get(context.Background(), 404)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Empty(t, c.items, "misses must not be cached")
}

// interleavedEvents runs afterRead once, right after the first GetByID
// returns, to land a write between a cache miss and the cache fill.
type interleavedEvents struct {
	repository.EventRepository
	afterRead func()
}

func (e *interleavedEvents) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	event, err := e.EventRepository.GetByID(ctx, id)
	if e.afterRead != nil {
		hook := e.afterRead
		e.afterRead = nil
		hook()
	}
	return event, err
}

type interleavedStore struct {
	*sqlite.DB
	events *interleavedEvents
}

func (s interleavedStore) Events() repository.EventRepository { return s.events }

func TestGetEvent_CountStaysLiveAcrossCacheFill(t *testing.T) {
	_, db, c := newTestEventService(t)
	ctx := context.Background()
	seeded := seedEvent(t, db, "admin", 3)
	regs := NewRegistrationService(db, c, discardLogger())

	events := &interleavedEvents{EventRepository: db.Events()}
	events.afterRead = func() {
		_, err := regs.Register(ctx, seeded.ID, "alice")
		require.NoError(t, err)
	}
	svc := NewEventService(interleavedStore{DB: db, events: events}, c, time.Minute, discardLogger())

	first, err := svc.Get(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, first.RegisteredCount, "read before the registration committed")
	require.Contains(t, c.items, cache.EventKey(seeded.ID), "the stale row was cached")

	second, err := svc.Get(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, second.RegisteredCount)
	assert.Equal(t, seeded.Title, second.Title)
}

// =========================================================================
// UPDATE / DELETE
// =========================================================================

func TestUpdateEvent(t *testing.T) {
	svc, _, c := newTestEventService(t)
	ctx := context.Background()
	e, err := svc.Create(ctx, admin, validEventInput())
	require.NoError(t, err)
	_, err = svc.Get(ctx, e.ID) // warm the cache
	require.NoError(t, err)

	updated, err := svc.Update(ctx, admin, e.ID, UpdateEventInput{
		Title: ptr("Advanced Go"),
		Price: ptr(0.0),
	})
	require.NoError(t, err)
	assert.Equal(t, "Advanced Go", updated.Title)
	assert.Equal(t, 0.0, updated.Price)
	assert.Equal(t, "Leeds", updated.Location, "absent fields are unchanged")
	assert.True(t, c.wasDeleted(cache.EventKey(e.ID)))

	got, err := svc.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Advanced Go", got.Title)
}

func TestUpdateEvent_Rules(t *testing.T) {
	svc, db, _ := newTestEventService(t)
	ctx := context.Background()
	e := seedEvent(t, db, "admin", 5)

	t.Run("empty patch", func(t *testing.T) {
		_, err := svc.Update(ctx, admin, e.ID, UpdateEventInput{})
		assertValidation(t, err, "", "No valid fields to update")
	})
	t.Run("past date", func(t *testing.T) {
		_, err := svc.Update(ctx, admin, e.ID, UpdateEventInput{Date: ptr(time.Now().Add(-time.Minute))})
		assertValidation(t, err, "date", "Event date must be in the future")
	})
	t.Run("zero capacity", func(t *testing.T) {
		_, err := svc.Update(ctx, admin, e.ID, UpdateEventInput{Capacity: ptr(0)})
		assertValidation(t, err, "capacity", "Capacity must be at least 1")
	})
	t.Run("price above column range", func(t *testing.T) {
		_, err := svc.Update(ctx, admin, e.ID, UpdateEventInput{Price: ptr(100000000.0)})
		assertValidation(t, err, "price", "Price must be at most 99999999.99")
	})
	t.Run("not the creator", func(t *testing.T) {
		_, err := svc.Update(ctx, alice, e.ID, UpdateEventInput{Title: ptr("Mine now")})
		assert.ErrorIs(t, err, apperror.ErrForbidden)
	})
	t.Run("missing event is NotFound before Forbidden", func(t *testing.T) {
		_, err := svc.Update(ctx, alice, 9999, UpdateEventInput{Title: ptr("x")})
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})
}

func TestUpdateEvent_CapacityBelowRegistrations(t *testing.T) {
	svc, db, _ := newTestEventService(t)
	ctx := context.Background()
	e := seedEvent(t, db, "admin", 5)
	for _, u := range []string{"alice", "bob"} {
		_, err := db.Registrations().Register(ctx, e.ID, u)
		require.NoError(t, err)
	}

	_, err := svc.Update(ctx, admin, e.ID, UpdateEventInput{Capacity: ptr(1)})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestDeleteEvent_CascadesRegistrations(t *testing.T) {
	svc, db, c := newTestEventService(t)
	ctx := context.Background()
	e := seedEvent(t, db, "admin", 5)
	_, err := db.Registrations().Register(ctx, e.ID, "alice")
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, alice, e.ID), apperror.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, admin, e.ID))
	assert.True(t, c.wasDeleted(cache.EventKey(e.ID)))

	_, err = svc.Get(ctx, e.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	regs, err := db.Registrations().ListByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, regs)
}

// =========================================================================
// LIST
// =========================================================================

func TestListEvents(t *testing.T) {
	svc, db, _ := newTestEventService(t)
	ctx := context.Background()
	seedEvent(t, db, "admin", 5)

	in := validEventInput()
	in.Title = "Rust Night"
	in.Price = 30
	_, err := svc.Create(ctx, admin, in)
	require.NoError(t, err)

	all, err := svc.List(ctx, model.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filter, err := ParseEventFilter(EventQuery{Search: "rust", MinPrice: "10"})
	require.NoError(t, err)
	got, err := svc.List(ctx, filter)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Rust Night", got[0].Title)
}

func TestListByCreator(t *testing.T) {
	svc, db, _ := newTestEventService(t)
	ctx := context.Background()
	seedEvent(t, db, "admin", 5)

	events, err := svc.ListByCreator(ctx, "admin")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	events, err = svc.ListByCreator(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = svc.ListByCreator(ctx, "nobody")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
