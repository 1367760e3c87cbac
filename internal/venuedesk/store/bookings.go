package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/venuedesk/venuedesk/internal/venuedesk/booking"
)

// ErrBookingNotFound is returned by GetBooking when no record exists for the
// given identifier.  Callers use errors.Is to distinguish first contact
// (which self-creates a record at intake) from real failures.
var ErrBookingNotFound = errors.New("store: booking not found")

// PutBooking inserts or replaces the booking record.  The full typed record
// is stored as JSON; step, caller step and thread state are denormalised
// into columns for querying.
func (s *Store) PutBooking(ctx context.Context, b *booking.Booking) error {
	b.UpdatedAt = time.Now().UTC()

	stateJSON, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal booking %s: %w", b.ID, err)
	}

	var callerStep sql.NullInt64
	if b.CallerStep != nil {
		callerStep = sql.NullInt64{Int64: int64(*b.CallerStep), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bookings (id, client_email, state_json, step, caller_step, thread_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client_email = excluded.client_email,
			state_json   = excluded.state_json,
			step         = excluded.step,
			caller_step  = excluded.caller_step,
			thread_state = excluded.thread_state,
			updated_at   = excluded.updated_at
	`, b.ID, b.ClientEmail, string(stateJSON), int(b.Step), callerStep, string(b.Thread), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to put booking %s: %w", b.ID, err)
	}

	return nil
}

// GetBooking retrieves a booking by ID.
func (s *Store) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM bookings WHERE id = ?`, id,
	).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking %s: %w", id, err)
	}

	var b booking.Booking
	if err := json.Unmarshal([]byte(stateJSON), &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal booking %s: %w", id, err)
	}
	return &b, nil
}

// GetBookingByClient returns the most recent non-completed booking for a
// client address, so inbound mail without a booking reference still routes
// to the right engagement.
func (s *Store) GetBookingByClient(ctx context.Context, clientEmail string) (*booking.Booking, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT state_json FROM bookings
		WHERE client_email = ? AND thread_state != ?
		ORDER BY updated_at DESC
		LIMIT 1
	`, clientEmail, string(booking.ThreadCompleted)).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: client %s", ErrBookingNotFound, clientEmail)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking for client %s: %w", clientEmail, err)
	}

	var b booking.Booking
	if err := json.Unmarshal([]byte(stateJSON), &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal booking for client %s: %w", clientEmail, err)
	}
	return &b, nil
}

// ListBookings returns bookings filtered by thread state.  Pass "" for all.
func (s *Store) ListBookings(ctx context.Context, threadState string) ([]*booking.Booking, error) {
	var rows *sql.Rows
	var err error

	if threadState == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT state_json FROM bookings ORDER BY updated_at DESC LIMIT 200`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT state_json FROM bookings WHERE thread_state = ? ORDER BY updated_at DESC LIMIT 200`,
			threadState)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*booking.Booking
	for rows.Next() {
		var stateJSON string
		if err := rows.Scan(&stateJSON); err != nil {
			return nil, fmt.Errorf("failed to scan booking row: %w", err)
		}
		var b booking.Booking
		if err := json.Unmarshal([]byte(stateJSON), &b); err != nil {
			return nil, fmt.Errorf("failed to unmarshal booking row: %w", err)
		}
		bookings = append(bookings, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}

	return bookings, nil
}

// BookingCount returns the number of bookings that have not completed.
func (s *Store) BookingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE thread_state != 'completed'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return n, nil
}
