package approvals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrDraftNotFound is returned when no draft exists for the given ID.
var ErrDraftNotFound = errors.New("approvals: draft not found")

// ErrAlreadyDecided is returned when a decision targets a draft that is no
// longer pending.
var ErrAlreadyDecided = errors.New("approvals: draft already decided")

// Store persists and retrieves Draft records.
type Store struct {
	db *sql.DB
}

// NewStore creates a new approvals Store backed by the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create persists a new pending draft for a booking.  Any prior pending
// draft for the same booking is marked superseded first, so at most one
// draft per booking is ever outstanding and the latest engine output wins.
func (s *Store) Create(ctx context.Context, bookingID string, step int, body string, ttl time.Duration) (*Draft, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx, `
		UPDATE drafts
		SET decision = ?, decided_at = ?
		WHERE booking_id = ? AND decision = 'pending'
	`, string(DecisionSuperseded), now, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to supersede prior drafts for %s: %w", bookingID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drafts (id, booking_id, step, body, decision, created_at, expires_at)
		VALUES (?, ?, ?, ?, 'pending', ?, ?)
	`, id, bookingID, step, body, now, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create draft for %s: %w", bookingID, err)
	}

	return &Draft{
		ID:        id,
		BookingID: bookingID,
		Step:      step,
		Body:      body,
		Decision:  DecisionPending,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}, nil
}

// Get retrieves a draft by ID.
func (s *Store) Get(ctx context.Context, id string) (*Draft, error) {
	d := &Draft{}
	var editedBody, decidedBy, decideReason sql.NullString
	var decidedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, booking_id, step, body, decision,
		       edited_body, decided_by, decide_reason,
		       created_at, expires_at, decided_at
		FROM drafts
		WHERE id = ?
	`, id).Scan(
		&d.ID, &d.BookingID, &d.Step, &d.Body, &d.Decision,
		&editedBody, &decidedBy, &decideReason,
		&d.CreatedAt, &d.ExpiresAt, &decidedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}

	if editedBody.Valid {
		d.EditedBody = &editedBody.String
	}
	if decidedBy.Valid {
		d.DecidedBy = &decidedBy.String
	}
	if decideReason.Valid {
		d.DecideReason = &decideReason.String
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		d.DecidedAt = &t
	}

	return d, nil
}

// PendingByBooking returns the outstanding pending draft for a booking, or
// ErrDraftNotFound when none exists.
func (s *Store) PendingByBooking(ctx context.Context, bookingID string) (*Draft, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM drafts
		WHERE booking_id = ? AND decision = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
	`, bookingID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: booking %s has no pending draft", ErrDraftNotFound, bookingID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending draft for %s: %w", bookingID, err)
	}
	return s.Get(ctx, id)
}

// decide is the internal helper to resolve a pending draft.
func (s *Store) decide(ctx context.Context, id string, decision Decision, decidedBy string, editedBody, reason *string) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE drafts
		SET decision = ?, decided_by = ?, edited_body = ?, decide_reason = ?, decided_at = ?
		WHERE id = ? AND decision = 'pending'
	`, string(decision), decidedBy, editedBody, reason, now, id)
	if err != nil {
		return fmt.Errorf("failed to decide draft: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		// Either ID not found or already resolved — check which.
		existing, lookupErr := s.Get(ctx, id)
		if lookupErr != nil {
			return fmt.Errorf("%w: %s", ErrDraftNotFound, id)
		}
		return fmt.Errorf("%w: %s is %q", ErrAlreadyDecided, id, existing.Decision)
	}

	return nil
}

// Approve marks the draft as approved; the engine then sends Body verbatim.
func (s *Store) Approve(ctx context.Context, id, decidedBy string) error {
	return s.decide(ctx, id, DecisionApproved, decidedBy, nil, nil)
}

// Edit marks the draft as edited with replacement text; the engine then
// sends the edited body instead of the original.
func (s *Store) Edit(ctx context.Context, id, decidedBy, editedBody string) error {
	if editedBody == "" {
		return fmt.Errorf("approvals: edited body must not be empty")
	}
	return s.decide(ctx, id, DecisionEdited, decidedBy, &editedBody, nil)
}

// Reject marks the draft as rejected; nothing is sent.
func (s *Store) Reject(ctx context.Context, id, decidedBy, reason string) error {
	var r *string
	if reason != "" {
		r = &reason
	}
	return s.decide(ctx, id, DecisionRejected, decidedBy, nil, r)
}

// ExpireStale marks all pending drafts past their deadline as expired.
// Returns the number of drafts expired.
func (s *Store) ExpireStale(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE drafts
		SET decision = 'expired', decided_at = ?
		WHERE decision = 'pending' AND expires_at < ?
	`, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale drafts: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}

	return n, nil
}
