package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newCounterStore(t *testing.T, ticketTypeID string, capacity int) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	if err := s.EnsureCounter(context.Background(), ticketTypeID, capacity); err != nil {
		t.Fatalf("failed to seed counter: %v", err)
	}
	return s
}

func pending(id, ticketTypeID string, qty int) Reservation {
	return Reservation{
		ID:           id,
		TicketTypeID: ticketTypeID,
		Quantity:     qty,
		ExpiresAt:    testNow.Add(15 * time.Minute),
		CreatedAt:    testNow,
	}
}

func remaining(t *testing.T, s Store, ticketTypeID string) int {
	t.Helper()
	c, err := s.GetCounter(context.Background(), ticketTypeID)
	if err != nil {
		t.Fatalf("get counter: %v", err)
	}
	return c.Remaining
}

// --- Counter lifecycle ---

func TestEnsureCounter_SeedsRemainingWithCapacity(t *testing.T) {
	s := newCounterStore(t, "standard", 50)
	c, err := s.GetCounter(context.Background(), "standard")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Remaining != 50 || c.Capacity != 50 {
		t.Errorf("expected 50/50, got %d/%d", c.Remaining, c.Capacity)
	}
}

func TestEnsureCounter_RebuildClampsButNeverReplenishes(t *testing.T) {
	ctx := context.Background()
	s := newCounterStore(t, "standard", 50)
	if err := s.Reserve(ctx, pending("r1", "standard", 30)); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// Capacity raised: remaining untouched.
	if err := s.EnsureCounter(ctx, "standard", 60); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if got := remaining(t, s, "standard"); got != 20 {
		t.Errorf("expected remaining 20 after capacity raise, got %d", got)
	}

	// Capacity lowered below remaining: clamped.
	if err := s.EnsureCounter(ctx, "standard", 10); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if got := remaining(t, s, "standard"); got != 10 {
		t.Errorf("expected remaining clamped to 10, got %d", got)
	}
}

func TestGetCounter_NotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetCounter(context.Background(), "ghost")
	if !errors.Is(err, ErrCounterNotFound) {
		t.Errorf("expected ErrCounterNotFound, got %v", err)
	}
}

// --- Reserve / release ---

func TestReserve_ThenReleaseRestoresRemaining(t *testing.T) {
	ctx := context.Background()
	s := newCounterStore(t, "standard", 10)

	if err := s.Reserve(ctx, pending("r1", "standard", 3)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got := remaining(t, s, "standard"); got != 7 {
		t.Fatalf("expected remaining 7, got %d", got)
	}

	r, err := s.Release(ctx, "r1", testNow)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if r.Status != StatusReleased {
		t.Errorf("expected status released, got %s", r.Status)
	}
	if got := remaining(t, s, "standard"); got != 10 {
		t.Errorf("expected remaining restored to 10, got %d", got)
	}
}

func TestReserve_InsufficientLeavesCounterUnchanged(t *testing.T) {
	ctx := context.Background()
	s := newCounterStore(t, "standard", 2)

	err := s.Reserve(ctx, pending("r1", "standard", 3))
	if !errors.Is(err, ErrInsufficientInventory) {
		t.Fatalf("expected ErrInsufficientInventory, got %v", err)
	}
	if got := remaining(t, s, "standard"); got != 2 {
		t.Errorf("expected remaining unchanged at 2, got %d", got)
	}
	if _, err := s.GetReservation(ctx, "r1"); !errors.Is(err, ErrReservationNotFound) {
		t.Errorf("failed reserve must not record a reservation, got %v", err)
	}
}

func TestReserve_NonPositiveQuantity(t *testing.T) {
	s := newCounterStore(t, "standard", 10)
	for _, qty := range []int{0, -1} {
		err := s.Reserve(context.Background(), pending("r1", "standard", qty))
		if !errors.Is(err, ErrInvalidQuantity) {
			t.Errorf("quantity %d: expected ErrInvalidQuantity, got %v", qty, err)
		}
	}
}

func TestReserve_UnknownCounter(t *testing.T) {
	s := NewMemoryStore()
	err := s.Reserve(context.Background(), pending("r1", "ghost", 1))
	if !errors.Is(err, ErrCounterNotFound) {
		t.Errorf("expected ErrCounterNotFound, got %v", err)
	}
}

// --- Confirm ---

func TestConfirm_PendingWithinWindow(t *testing.T) {
	ctx := context.Background()
	s := newCounterStore(t, "standard", 10)
	if err := s.Reserve(ctx, pending("r1", "standard", 2)); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	r, err := s.Confirm(ctx, "r1", testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if r.Status != StatusConfirmed {
		t.Errorf("expected status confirmed, got %s", r.Status)
	}
	// Confirmed tickets stay deducted.
	if got := remaining(t, s, "standard"); got != 8 {
		t.Errorf("expected remaining 8 after confirm, got %d", got)
	}
}

func TestConfirm_PastExpiry(t *testing.T) {
	ctx := context.Background()
	s := newCounterStore(t, "standard", 10)
	if err := s.Reserve(ctx, pending("r1", "standard", 2)); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	_, err := s.Confirm(ctx, "r1", testNow.Add(16*time.Minute))
	if !errors.Is(err, ErrReservationExpired) {
		t.Errorf("expected ErrReservationExpired, got %v", err)
	}
}

func TestConfirm_Twice(t *testing.T) {
	ctx := context.Background()
	s := newCounterStore(t, "standard", 10)
	s.Reserve(ctx, pending("r1", "standard", 2))
	s.Confirm(ctx, "r1", testNow)

	if _, err := s.Confirm(ctx, "r1", testNow); !errors.Is(err, ErrReservationConfirmed) {
		t.Errorf("expected ErrReservationConfirmed, got %v", err)
	}
}

func TestRelease_AfterConfirmRejected(t *testing.T) {
	ctx := context.Background()
	s := newCounterStore(t, "standard", 10)
	s.Reserve(ctx, pending("r1", "standard", 2))
	s.Confirm(ctx, "r1", testNow)

	if _, err := s.Release(ctx, "r1", testNow); !errors.Is(err, ErrReservationConfirmed) {
		t.Errorf("expected ErrReservationConfirmed, got %v", err)
	}
}

func TestRelease_Twice(t *testing.T) {
	ctx := context.Background()
	s := newCounterStore(t, "standard", 10)
	s.Reserve(ctx, pending("r1", "standard", 2))
	s.Release(ctx, "r1", testNow)

	if _, err := s.Release(ctx, "r1", testNow); !errors.Is(err, ErrReservationReleased) {
		t.Errorf("expected ErrReservationReleased, got %v", err)
	}
}

func TestRelease_ClampsAtCapacity(t *testing.T) {
	ctx := context.Background()
	s := newCounterStore(t, "standard", 10)
	if err := s.Reserve(ctx, pending("r1", "standard", 4)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	// Simulate an external refill that makes the pending release exceed
	// capacity.
	if err := s.EnsureCounter(ctx, "standard", 10); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	s.mu.Lock()
	s.counters["standard"].Remaining = 9
	s.mu.Unlock()

	_, err := s.Release(ctx, "r1", testNow)
	if !errors.Is(err, ErrOverRelease) {
		t.Fatalf("expected ErrOverRelease, got %v", err)
	}
	if got := remaining(t, s, "standard"); got != 10 {
		t.Errorf("expected remaining clamped at capacity 10, got %d", got)
	}
}

// --- Expiry sweep ---

func TestReleaseExpired_ReturnsLapsedHoldsToInventory(t *testing.T) {
	ctx := context.Background()
	s := newCounterStore(t, "standard", 10)

	expired := pending("r1", "standard", 3)
	expired.ExpiresAt = testNow.Add(-time.Minute)
	live := pending("r2", "standard", 2)

	s.Reserve(ctx, expired)
	s.Reserve(ctx, live)

	n, err := s.ReleaseExpired(ctx, testNow)
	if err != nil {
		t.Fatalf("release expired: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired reservation, got %d", n)
	}
	if got := remaining(t, s, "standard"); got != 8 {
		t.Errorf("expected remaining 8 (live hold kept), got %d", got)
	}

	r, err := s.GetReservation(ctx, "r1")
	if err != nil {
		t.Fatalf("get reservation: %v", err)
	}
	if r.Status != StatusExpired {
		t.Errorf("expected status expired, got %s", r.Status)
	}
}

func TestReleaseExpired_ClampDoesNotAbortSweep(t *testing.T) {
	ctx := context.Background()
	s := newCounterStore(t, "standard", 10)
	if err := s.EnsureCounter(ctx, "workshop", 5); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	clamped := pending("r1", "standard", 4)
	clamped.ExpiresAt = testNow.Add(-time.Minute)
	other := pending("r2", "workshop", 2)
	other.ExpiresAt = testNow.Add(-time.Minute)

	s.Reserve(ctx, clamped)
	s.Reserve(ctx, other)

	// Simulate an external refill so releasing r1 would exceed capacity.
	s.mu.Lock()
	s.counters["standard"].Remaining = 9
	s.mu.Unlock()

	n, err := s.ReleaseExpired(ctx, testNow)
	if err != nil {
		t.Fatalf("release expired: %v", err)
	}
	if n != 2 {
		t.Errorf("expected both expired holds released, got %d", n)
	}
	if got := remaining(t, s, "standard"); got != 10 {
		t.Errorf("expected remaining clamped at capacity 10, got %d", got)
	}
	if got := remaining(t, s, "workshop"); got != 5 {
		t.Errorf("expected workshop hold returned, got remaining %d", got)
	}
	for _, id := range []string{"r1", "r2"} {
		r, err := s.GetReservation(ctx, id)
		if err != nil {
			t.Fatalf("get reservation %s: %v", id, err)
		}
		if r.Status != StatusExpired {
			t.Errorf("expected %s expired, got %s", id, r.Status)
		}
	}
}

// --- Concurrency ---

func TestReserve_ConcurrentNeverOversells(t *testing.T) {
	const (
		capacity = 10
		attempts = 100
	)
	ctx := context.Background()
	s := newCounterStore(t, "standard", capacity)

	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results <- s.Reserve(ctx, pending(fmt.Sprintf("r%d", n), "standard", 1))
		}(i)
	}
	wg.Wait()
	close(results)

	successes, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrInsufficientInventory):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if successes != capacity {
		t.Errorf("expected exactly %d successes, got %d", capacity, successes)
	}
	if conflicts != attempts-capacity {
		t.Errorf("expected %d conflicts, got %d", attempts-capacity, conflicts)
	}
	if got := remaining(t, s, "standard"); got != 0 {
		t.Errorf("expected remaining 0, got %d", got)
	}
}
