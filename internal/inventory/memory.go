package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu           sync.Mutex
	counters     map[string]*Counter
	reservations map[string]*Reservation
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters:     make(map[string]*Counter),
		reservations: make(map[string]*Reservation),
	}
}

func (s *MemoryStore) EnsureCounter(_ context.Context, ticketTypeID string, capacity int) error {
	if capacity < 0 {
		return fmt.Errorf("inventory: capacity for %s must not be negative", ticketTypeID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[ticketTypeID]
	if !ok {
		s.counters[ticketTypeID] = &Counter{
			TicketTypeID: ticketTypeID,
			Remaining:    capacity,
			Capacity:     capacity,
		}
		return nil
	}

	c.Capacity = capacity
	if c.Remaining > capacity {
		c.Remaining = capacity
	}
	return nil
}

func (s *MemoryStore) GetCounter(_ context.Context, ticketTypeID string) (Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[ticketTypeID]
	if !ok {
		return Counter{}, fmt.Errorf("%w: %s", ErrCounterNotFound, ticketTypeID)
	}
	return *c, nil
}

func (s *MemoryStore) ListCounters(_ context.Context) ([]Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counters := make([]Counter, 0, len(s.counters))
	for _, c := range s.counters {
		counters = append(counters, *c)
	}
	return counters, nil
}

// Reserve holds the store lock across check and decrement, making the
// operation atomic with respect to concurrent reservations.
func (s *MemoryStore) Reserve(_ context.Context, res Reservation) error {
	if res.Quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, res.Quantity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[res.TicketTypeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCounterNotFound, res.TicketTypeID)
	}
	if c.Remaining < res.Quantity {
		return fmt.Errorf("%w: %s: %d requested, %d remaining",
			ErrInsufficientInventory, res.TicketTypeID, res.Quantity, c.Remaining)
	}

	c.Remaining -= res.Quantity
	stored := res
	stored.Status = StatusPending
	s.reservations[res.ID] = &stored
	return nil
}

func (s *MemoryStore) GetReservation(_ context.Context, id string) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return Reservation{}, fmt.Errorf("%w: %s", ErrReservationNotFound, id)
	}
	return *r, nil
}

func (s *MemoryStore) Confirm(_ context.Context, id string, now time.Time) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[id]
	if !ok {
		return Reservation{}, fmt.Errorf("%w: %s", ErrReservationNotFound, id)
	}
	switch r.Status {
	case StatusConfirmed:
		return Reservation{}, fmt.Errorf("%w: %s", ErrReservationConfirmed, id)
	case StatusReleased, StatusExpired:
		return Reservation{}, fmt.Errorf("%w: %s", ErrReservationReleased, id)
	}
	if now.After(r.ExpiresAt) {
		return Reservation{}, fmt.Errorf("%w: %s", ErrReservationExpired, id)
	}

	r.Status = StatusConfirmed
	return *r, nil
}

func (s *MemoryStore) Release(_ context.Context, id string, _ time.Time) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked(id, StatusReleased)
}

func (s *MemoryStore) ReleaseExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	released := 0
	for id, r := range s.reservations {
		if !r.Expired(now) {
			continue
		}
		// Over-release on expiry sweep is clamped silently, matching the
		// Postgres store; later expired holds are still released.
		if _, err := s.releaseLocked(id, StatusExpired); err != nil && !errors.Is(err, ErrOverRelease) {
			return released, err
		}
		released++
	}
	return released, nil
}

// releaseLocked returns a pending reservation's quantity to its counter,
// clamping at capacity. Caller holds s.mu.
func (s *MemoryStore) releaseLocked(id string, to ReservationStatus) (Reservation, error) {
	r, ok := s.reservations[id]
	if !ok {
		return Reservation{}, fmt.Errorf("%w: %s", ErrReservationNotFound, id)
	}
	switch r.Status {
	case StatusConfirmed:
		return Reservation{}, fmt.Errorf("%w: %s", ErrReservationConfirmed, id)
	case StatusReleased, StatusExpired:
		return Reservation{}, fmt.Errorf("%w: %s", ErrReservationReleased, id)
	}

	r.Status = to

	c, ok := s.counters[r.TicketTypeID]
	if !ok {
		return Reservation{}, fmt.Errorf("%w: %s", ErrCounterNotFound, r.TicketTypeID)
	}
	restored := c.Remaining + r.Quantity
	if restored > c.Capacity {
		c.Remaining = c.Capacity
		return *r, fmt.Errorf("%w: %s: %d over capacity %d",
			ErrOverRelease, r.TicketTypeID, restored-c.Capacity, c.Capacity)
	}
	c.Remaining = restored
	return *r, nil
}
