package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sakif/community-events/internal/apperror"
)

func TestRegister_IncrementsCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "admin", true)
	createTestUser(t, db, "alice", false)
	e := createTestEvent(t, db, "admin", "Meetup", 2, 0, futureDate(1))

	reg, err := db.Registrations().Register(ctx, e.ID, "alice")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if reg.ID == 0 || reg.EventID != e.ID || reg.Username != "alice" || reg.RegisteredAt.IsZero() {
		t.Errorf("Register() = %+v", reg)
	}

	n, err := db.Registrations().Count(ctx, e.ID)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}

	ok, err := db.Registrations().IsRegistered(ctx, e.ID, "alice")
	if err != nil || !ok {
		t.Errorf("IsRegistered() = %v, %v; want true, nil", ok, err)
	}
}

func TestRegister_AtCapacity(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "admin", true)
	createTestUser(t, db, "alice", false)
	createTestUser(t, db, "bob", false)
	e := createTestEvent(t, db, "admin", "Tiny", 1, 0, futureDate(1))

	if _, err := db.Registrations().Register(ctx, e.ID, "alice"); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}

	_, err := db.Registrations().Register(ctx, e.ID, "bob")
	if !errors.Is(err, apperror.ErrCapacityExceeded) {
		t.Fatalf("Register() error = %v, want ErrCapacityExceeded", err)
	}
	if n, _ := db.Registrations().Count(ctx, e.ID); n != 1 {
		t.Errorf("Count() = %d after rejected registration, want 1", n)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "admin", true)
	createTestUser(t, db, "alice", false)
	e := createTestEvent(t, db, "admin", "Meetup", 10, 0, futureDate(1))

	if _, err := db.Registrations().Register(ctx, e.ID, "alice"); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	_, err := db.Registrations().Register(ctx, e.ID, "alice")
	if !errors.Is(err, apperror.ErrAlreadyRegistered) {
		t.Errorf("second Register() error = %v, want ErrAlreadyRegistered", err)
	}
}

// A full event reports capacity before duplication.
func TestRegister_DuplicateOnFullEventReportsCapacity(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "admin", true)
	createTestUser(t, db, "alice", false)
	e := createTestEvent(t, db, "admin", "Tiny", 1, 0, futureDate(1))

	if _, err := db.Registrations().Register(ctx, e.ID, "alice"); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	_, err := db.Registrations().Register(ctx, e.ID, "alice")
	if !errors.Is(err, apperror.ErrCapacityExceeded) {
		t.Errorf("Register() error = %v, want ErrCapacityExceeded", err)
	}
}

func TestRegister_UnknownEventOrUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "admin", true)
	e := createTestEvent(t, db, "admin", "Meetup", 10, 0, futureDate(1))

	if _, err := db.Registrations().Register(ctx, 999, "admin"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Register(unknown event) error = %v, want ErrNotFound", err)
	}
	if _, err := db.Registrations().Register(ctx, e.ID, "ghost"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Register(unknown user) error = %v, want ErrNotFound", err)
	}
}

func TestUnregister(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "admin", true)
	createTestUser(t, db, "alice", false)
	e := createTestEvent(t, db, "admin", "Meetup", 10, 0, futureDate(1))

	if err := db.Registrations().Unregister(ctx, e.ID, "alice"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Unregister(not registered) error = %v, want ErrNotFound", err)
	}

	if _, err := db.Registrations().Register(ctx, e.ID, "alice"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := db.Registrations().Unregister(ctx, e.ID, "alice"); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	if ok, _ := db.Registrations().IsRegistered(ctx, e.ID, "alice"); ok {
		t.Error("IsRegistered() = true after Unregister")
	}

	// The freed spot can be taken again.
	if _, err := db.Registrations().Register(ctx, e.ID, "alice"); err != nil {
		t.Errorf("re-Register() error = %v", err)
	}
}

func TestListByEvent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "admin", true)
	createTestUser(t, db, "alice", false)
	createTestUser(t, db, "bob", false)
	e := createTestEvent(t, db, "admin", "Meetup", 10, 0, futureDate(1))

	for _, u := range []string{"bob", "alice"} {
		if _, err := db.Registrations().Register(ctx, e.ID, u); err != nil {
			t.Fatalf("Register(%s) error = %v", u, err)
		}
	}

	regs, err := db.Registrations().ListByEvent(ctx, e.ID)
	if err != nil {
		t.Fatalf("ListByEvent() error = %v", err)
	}
	if len(regs) != 2 {
		t.Fatalf("ListByEvent() returned %d rows, want 2", len(regs))
	}
	// Sign-up order, with user details joined in.
	if regs[0].Username != "bob" || regs[1].Username != "alice" {
		t.Errorf("order = [%s %s], want [bob alice]", regs[0].Username, regs[1].Username)
	}
	if regs[1].Name != "Test alice" || regs[1].Email != "alice@example.com" {
		t.Errorf("joined user = %q <%s>", regs[1].Name, regs[1].Email)
	}
}

func TestListByUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "admin", true)
	createTestUser(t, db, "alice", false)
	later := createTestEvent(t, db, "admin", "Later", 10, 20, futureDate(9))
	sooner := createTestEvent(t, db, "admin", "Sooner", 3, 5, futureDate(2))

	for _, id := range []int64{later.ID, sooner.ID} {
		if _, err := db.Registrations().Register(ctx, id, "alice"); err != nil {
			t.Fatalf("Register(%d) error = %v", id, err)
		}
	}

	regs, err := db.Registrations().ListByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(regs) != 2 {
		t.Fatalf("ListByUser() returned %d rows, want 2", len(regs))
	}
	if regs[0].Title != "Sooner" || regs[1].Title != "Later" {
		t.Errorf("order = [%s %s], want [Sooner Later]", regs[0].Title, regs[1].Title)
	}
	got := regs[0]
	if got.Location != "Manchester" || got.Price != 5 || got.Capacity != 3 || got.RegisteredCount != 1 {
		t.Errorf("joined event = %+v", got)
	}
}

// =========================================================================
// CONCURRENCY TESTS
// =========================================================================

// TestRegister_Concurrent fires many simultaneous registrations at an event
// with a handful of spots. Exactly capacity-many must succeed; every other
// attempt must be turned away as full. Anything else means overbooking.
func TestRegister_Concurrent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "admin", true)

	const (
		capacity    = 5
		numRequests = 100
	)
	for i := 0; i < numRequests; i++ {
		createTestUser(t, db, fmt.Sprintf("gopher%d", i), false)
	}
	e := createTestEvent(t, db, "admin", "The Big GopherCon", capacity, 0, futureDate(30))

	var (
		successCount int32
		fullCount    int32
		errorCount   int32
		wg           sync.WaitGroup
	)
	wg.Add(numRequests)
	for i := 0; i < numRequests; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := db.Registrations().Register(ctx, e.ID, fmt.Sprintf("gopher%d", i))
			switch {
			case err == nil:
				atomic.AddInt32(&successCount, 1)
			case errors.Is(err, apperror.ErrCapacityExceeded):
				atomic.AddInt32(&fullCount, 1)
			default:
				t.Logf("unexpected error for gopher%d: %v", i, err)
				atomic.AddInt32(&errorCount, 1)
			}
		}(i)
	}
	wg.Wait()

	t.Logf("successes=%d full=%d errors=%d", successCount, fullCount, errorCount)

	if successCount != capacity {
		t.Errorf("successes = %d, want exactly %d", successCount, capacity)
	}
	if fullCount != numRequests-capacity {
		t.Errorf("capacity rejections = %d, want %d", fullCount, numRequests-capacity)
	}
	if n, _ := db.Registrations().Count(ctx, e.ID); n != capacity {
		t.Errorf("Count() = %d, want %d", n, capacity)
	}
}

// Two users racing for the last spot: one wins, one is told the event is full.
func TestRegister_ConcurrentLastSpot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "admin", true)
	createTestUser(t, db, "alice", false)
	createTestUser(t, db, "bob", false)
	e := createTestEvent(t, db, "admin", "Last Spot", 1, 0, futureDate(1))

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, u := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			_, err := db.Registrations().Register(ctx, e.ID, u)
			errs <- err
		}(u)
	}
	wg.Wait()
	close(errs)

	var ok, full int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperror.ErrCapacityExceeded):
			full++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || full != 1 {
		t.Errorf("ok=%d full=%d, want 1 and 1", ok, full)
	}
}
