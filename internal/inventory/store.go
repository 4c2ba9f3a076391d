package inventory

import (
	"context"
	"time"
)

// Store is the persistence interface for counters and reservations.
// PostgreSQL is the source of truth; Redis provides a read-through cache
// for counter reads; the in-memory store serves tests and development.
type Store interface {
	// --- Counters ---

	// EnsureCounter creates the counter for a ticket type if absent, or
	// updates its capacity on a catalogue rebuild. Remaining is seeded
	// with the capacity on first creation and clamped to the new capacity
	// on update, never replenished.
	EnsureCounter(ctx context.Context, ticketTypeID string, capacity int) error

	// GetCounter retrieves the counter for a ticket type.
	GetCounter(ctx context.Context, ticketTypeID string) (Counter, error)

	// ListCounters returns all counters.
	ListCounters(ctx context.Context) ([]Counter, error)

	// --- Reservation lifecycle ---

	// Reserve atomically checks-and-decrements the counter and records a
	// pending reservation. Fails with ErrInsufficientInventory when fewer
	// than res.Quantity tickets remain, leaving the counter unchanged.
	Reserve(ctx context.Context, res Reservation) error

	// GetReservation retrieves a reservation by ID.
	GetReservation(ctx context.Context, id string) (Reservation, error)

	// Confirm marks a pending reservation as purchased. Fails with
	// ErrReservationExpired past the hold window and with
	// ErrReservationConfirmed / ErrReservationReleased on repeat calls.
	Confirm(ctx context.Context, id string, now time.Time) (Reservation, error)

	// Release returns a pending reservation's tickets to the counter.
	// The compensating action for payment failure or abandonment. The
	// counter is clamped at capacity; a clamped release reports
	// ErrOverRelease after persisting the clamped state.
	Release(ctx context.Context, id string, now time.Time) (Reservation, error)

	// ReleaseExpired releases every pending reservation whose hold lapsed
	// before now, marking them expired. Returns how many were released.
	ReleaseExpired(ctx context.Context, now time.Time) (int, error)
}
