package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// The check-and-decrement is a single guarded UPDATE inside the same
// transaction as the reservation insert, so concurrent reservations for
// the same ticket type serialize on the counter row and can never oversell.
//
// Expected schema:
//
//	CREATE TABLE ticket_counters (
//	    ticket_type_id TEXT PRIMARY KEY,
//	    remaining      INT NOT NULL CHECK (remaining >= 0),
//	    capacity       INT NOT NULL CHECK (capacity >= 0)
//	);
//	CREATE TABLE reservations (
//	    id             TEXT PRIMARY KEY,
//	    ticket_type_id TEXT NOT NULL REFERENCES ticket_counters (ticket_type_id),
//	    quantity       INT NOT NULL CHECK (quantity > 0),
//	    status         TEXT NOT NULL,
//	    expires_at     TIMESTAMPTZ NOT NULL,
//	    created_at     TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX reservations_pending_expiry
//	    ON reservations (expires_at) WHERE status = 'pending';
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) EnsureCounter(ctx context.Context, ticketTypeID string, capacity int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ticket_counters (ticket_type_id, remaining, capacity)
		 VALUES ($1, $2, $2)
		 ON CONFLICT (ticket_type_id) DO UPDATE
		 SET capacity = EXCLUDED.capacity,
		     remaining = LEAST(ticket_counters.remaining, EXCLUDED.capacity)`,
		ticketTypeID, capacity,
	)
	if err != nil {
		return fmt.Errorf("ensure counter %s: %w", ticketTypeID, err)
	}
	return nil
}

func (s *PostgresStore) GetCounter(ctx context.Context, ticketTypeID string) (Counter, error) {
	var c Counter
	err := s.pool.QueryRow(ctx,
		`SELECT ticket_type_id, remaining, capacity
		 FROM ticket_counters WHERE ticket_type_id = $1`, ticketTypeID).
		Scan(&c.TicketTypeID, &c.Remaining, &c.Capacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Counter{}, fmt.Errorf("%w: %s", ErrCounterNotFound, ticketTypeID)
		}
		return Counter{}, fmt.Errorf("get counter %s: %w", ticketTypeID, err)
	}
	return c, nil
}

func (s *PostgresStore) ListCounters(ctx context.Context) ([]Counter, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ticket_type_id, remaining, capacity
		 FROM ticket_counters ORDER BY ticket_type_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counters []Counter
	for rows.Next() {
		var c Counter
		if err := rows.Scan(&c.TicketTypeID, &c.Remaining, &c.Capacity); err != nil {
			return nil, err
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

func (s *PostgresStore) Reserve(ctx context.Context, res Reservation) error {
	if res.Quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, res.Quantity)
	}

	return s.withTx(ctx, func(tx pgx.Tx) error {
		// Guarded decrement: no row is updated when remaining < quantity.
		tag, err := tx.Exec(ctx,
			`UPDATE ticket_counters
			 SET remaining = remaining - $2
			 WHERE ticket_type_id = $1 AND remaining >= $2`,
			res.TicketTypeID, res.Quantity,
		)
		if err != nil {
			return fmt.Errorf("reserve %s: %w", res.TicketTypeID, err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM ticket_counters WHERE ticket_type_id = $1)`,
				res.TicketTypeID).Scan(&exists); err != nil {
				return fmt.Errorf("reserve %s: %w", res.TicketTypeID, err)
			}
			if !exists {
				return fmt.Errorf("%w: %s", ErrCounterNotFound, res.TicketTypeID)
			}
			return fmt.Errorf("%w: %s: %d requested",
				ErrInsufficientInventory, res.TicketTypeID, res.Quantity)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO reservations (id, ticket_type_id, quantity, status, expires_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			res.ID, res.TicketTypeID, res.Quantity, StatusPending, res.ExpiresAt, res.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert reservation %s: %w", res.ID, err)
		}
		return nil
	})
}

func (s *PostgresStore) GetReservation(ctx context.Context, id string) (Reservation, error) {
	var r Reservation
	err := s.pool.QueryRow(ctx,
		`SELECT id, ticket_type_id, quantity, status, expires_at, created_at
		 FROM reservations WHERE id = $1`, id).
		Scan(&r.ID, &r.TicketTypeID, &r.Quantity, &r.Status, &r.ExpiresAt, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, fmt.Errorf("%w: %s", ErrReservationNotFound, id)
		}
		return Reservation{}, fmt.Errorf("get reservation %s: %w", id, err)
	}
	return r, nil
}

func (s *PostgresStore) Confirm(ctx context.Context, id string, now time.Time) (Reservation, error) {
	var confirmed Reservation
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		r, err := lockReservation(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := checkPending(r); err != nil {
			return err
		}
		if now.After(r.ExpiresAt) {
			return fmt.Errorf("%w: %s", ErrReservationExpired, id)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE reservations SET status = $2 WHERE id = $1`,
			id, StatusConfirmed); err != nil {
			return fmt.Errorf("confirm reservation %s: %w", id, err)
		}
		r.Status = StatusConfirmed
		confirmed = r
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	return confirmed, nil
}

func (s *PostgresStore) Release(ctx context.Context, id string, _ time.Time) (Reservation, error) {
	var released Reservation
	var clampErr error

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		r, err := lockReservation(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := checkPending(r); err != nil {
			return err
		}

		clampErr, err = restoreCounter(ctx, tx, r)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE reservations SET status = $2 WHERE id = $1`,
			id, StatusReleased); err != nil {
			return fmt.Errorf("release reservation %s: %w", id, err)
		}
		r.Status = StatusReleased
		released = r
		return nil
	})
	if err != nil {
		return Reservation{}, err
	}
	return released, clampErr
}

func (s *PostgresStore) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	released := 0
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT id, ticket_type_id, quantity, status, expires_at, created_at
			 FROM reservations
			 WHERE status = $1 AND expires_at < $2
			 FOR UPDATE`, StatusPending, now)
		if err != nil {
			return fmt.Errorf("list expired reservations: %w", err)
		}

		var expired []Reservation
		for rows.Next() {
			var r Reservation
			if err := rows.Scan(&r.ID, &r.TicketTypeID, &r.Quantity, &r.Status,
				&r.ExpiresAt, &r.CreatedAt); err != nil {
				rows.Close()
				return err
			}
			expired = append(expired, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, r := range expired {
			// Over-release on expiry sweep is clamped silently; the
			// counter row already holds the corrected value.
			if _, err := restoreCounter(ctx, tx, r); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx,
				`UPDATE reservations SET status = $2 WHERE id = $1`,
				r.ID, StatusExpired); err != nil {
				return fmt.Errorf("expire reservation %s: %w", r.ID, err)
			}
			released++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func lockReservation(ctx context.Context, tx pgx.Tx, id string) (Reservation, error) {
	var r Reservation
	err := tx.QueryRow(ctx,
		`SELECT id, ticket_type_id, quantity, status, expires_at, created_at
		 FROM reservations WHERE id = $1 FOR UPDATE`, id).
		Scan(&r.ID, &r.TicketTypeID, &r.Quantity, &r.Status, &r.ExpiresAt, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, fmt.Errorf("%w: %s", ErrReservationNotFound, id)
		}
		return Reservation{}, fmt.Errorf("lock reservation %s: %w", id, err)
	}
	return r, nil
}

func checkPending(r Reservation) error {
	switch r.Status {
	case StatusConfirmed:
		return fmt.Errorf("%w: %s", ErrReservationConfirmed, r.ID)
	case StatusReleased, StatusExpired:
		return fmt.Errorf("%w: %s", ErrReservationReleased, r.ID)
	}
	return nil
}

// restoreCounter returns a reservation's quantity to its counter, clamped
// at capacity. The first return value carries ErrOverRelease when clamping
// occurred; the second carries persistence failures.
func restoreCounter(ctx context.Context, tx pgx.Tx, r Reservation) (error, error) {
	var remaining, capacity int
	err := tx.QueryRow(ctx,
		`SELECT remaining, capacity FROM ticket_counters
		 WHERE ticket_type_id = $1 FOR UPDATE`,
		r.TicketTypeID).Scan(&remaining, &capacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrCounterNotFound, r.TicketTypeID)
		}
		return nil, fmt.Errorf("restore counter %s: %w", r.TicketTypeID, err)
	}

	var clampErr error
	restored := remaining + r.Quantity
	if restored > capacity {
		clampErr = fmt.Errorf("%w: %s: %d over capacity %d",
			ErrOverRelease, r.TicketTypeID, restored-capacity, capacity)
		restored = capacity
	}

	if _, err := tx.Exec(ctx,
		`UPDATE ticket_counters SET remaining = $2 WHERE ticket_type_id = $1`,
		r.TicketTypeID, restored); err != nil {
		return nil, fmt.Errorf("restore counter %s: %w", r.TicketTypeID, err)
	}
	return clampErr, nil
}
