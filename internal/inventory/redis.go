package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for counter reads. Reservation writes go to the primary store and
// invalidate the affected counter; reads check Redis first then fall back
// to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) EnsureCounter(ctx context.Context, ticketTypeID string, capacity int) error {
	if err := s.primary.EnsureCounter(ctx, ticketTypeID, capacity); err != nil {
		return err
	}
	s.rdb.Del(ctx, counterKey(ticketTypeID))
	return nil
}

func (s *CachedStore) Reserve(ctx context.Context, res Reservation) error {
	if err := s.primary.Reserve(ctx, res); err != nil {
		return err
	}
	s.rdb.Del(ctx, counterKey(res.TicketTypeID))
	return nil
}

func (s *CachedStore) Confirm(ctx context.Context, id string, now time.Time) (Reservation, error) {
	return s.primary.Confirm(ctx, id, now)
}

func (s *CachedStore) Release(ctx context.Context, id string, now time.Time) (Reservation, error) {
	r, err := s.primary.Release(ctx, id, now)
	if r.TicketTypeID != "" {
		s.rdb.Del(ctx, counterKey(r.TicketTypeID))
	}
	return r, err
}

func (s *CachedStore) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	released, err := s.primary.ReleaseExpired(ctx, now)
	if released > 0 {
		// Counters changed in bulk; drop every cached counter rather than
		// tracking which ticket types were touched.
		if keys, kerr := s.rdb.Keys(ctx, counterKey("*")).Result(); kerr == nil && len(keys) > 0 {
			s.rdb.Del(ctx, keys...)
		}
	}
	return released, err
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetCounter(ctx context.Context, ticketTypeID string) (Counter, error) {
	data, err := s.rdb.Get(ctx, counterKey(ticketTypeID)).Bytes()
	if err == nil {
		var c Counter
		if json.Unmarshal(data, &c) == nil {
			return c, nil
		}
	}

	// Cache miss: read from primary.
	c, err := s.primary.GetCounter(ctx, ticketTypeID)
	if err != nil {
		return Counter{}, err
	}

	if data, err := json.Marshal(c); err == nil {
		s.rdb.Set(ctx, counterKey(ticketTypeID), data, s.ttl)
	}
	return c, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListCounters(ctx context.Context) ([]Counter, error) {
	return s.primary.ListCounters(ctx)
}

func (s *CachedStore) GetReservation(ctx context.Context, id string) (Reservation, error) {
	return s.primary.GetReservation(ctx, id)
}

func counterKey(ticketTypeID string) string {
	return fmt.Sprintf("counter:%s", ticketTypeID)
}
