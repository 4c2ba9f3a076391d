// Package inventory tracks per-ticket-type remaining counts and the
// tentative-reservation lifecycle: reserve → confirm or release.
//
// Reservation is the locus of concurrency risk. Every Store implementation
// must make check-and-decrement atomic so concurrent purchase attempts can
// never oversell past the configured capacity.
package inventory

import (
	"errors"
	"time"
)

var (
	// ErrInsufficientInventory is returned when a reservation asks for
	// more tickets than remain. Recoverable: the purchaser retries their
	// selection. Kept distinct from persistence errors so callers can
	// tell a sold-out conflict from a storage failure.
	ErrInsufficientInventory = errors.New("inventory: insufficient inventory")

	// ErrCounterNotFound is returned for an unknown ticket type.
	ErrCounterNotFound = errors.New("inventory: counter not found")

	// ErrReservationNotFound is returned for an unknown reservation ID.
	ErrReservationNotFound = errors.New("inventory: reservation not found")

	// ErrReservationExpired is returned when confirming a reservation
	// whose hold window has lapsed.
	ErrReservationExpired = errors.New("inventory: reservation expired")

	// ErrReservationConfirmed is returned when releasing or re-confirming
	// an already confirmed reservation.
	ErrReservationConfirmed = errors.New("inventory: reservation already confirmed")

	// ErrReservationReleased is returned when acting on a reservation that
	// was already released or expired.
	ErrReservationReleased = errors.New("inventory: reservation already released")

	// ErrOverRelease is returned when a release would push a counter past
	// its configured capacity. The counter is clamped at capacity and the
	// error flags the internal-consistency bug to the caller.
	ErrOverRelease = errors.New("inventory: release exceeds configured capacity")

	// ErrInvalidQuantity is returned for a non-positive reservation size.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
)

// Counter is the remaining-inventory read model for one ticket type.
// Remaining only moves through Reserve and Release; Capacity is the
// configured maximum and never changes outside a catalogue rebuild.
type Counter struct {
	TicketTypeID string `json:"ticket_type_id"`
	Remaining    int    `json:"remaining"`
	Capacity     int    `json:"capacity"`
}

// SoldOut reports whether no tickets remain.
func (c Counter) SoldOut() bool {
	return c.Remaining <= 0
}

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusReleased  ReservationStatus = "released"
	StatusExpired   ReservationStatus = "expired"
)

// Reservation is a tentative decrement of a counter, pending purchase
// completion. Pending reservations past ExpiresAt are returned to
// inventory by ReleaseExpired.
type Reservation struct {
	ID           string            `json:"id"`
	TicketTypeID string            `json:"ticket_type_id"`
	Quantity     int               `json:"quantity"`
	Status       ReservationStatus `json:"status"`
	ExpiresAt    time.Time         `json:"expires_at"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Expired reports whether a pending reservation's hold has lapsed.
func (r Reservation) Expired(now time.Time) bool {
	return r.Status == StatusPending && now.After(r.ExpiresAt)
}
