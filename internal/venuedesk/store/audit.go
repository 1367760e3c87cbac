package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/venuedesk/venuedesk/common/trace"
)

// AuditEntry is one append-only record of a routing decision, state
// transition or draft decision.  Seq is monotonically increasing per
// booking, so the full history of an engagement replays in order even
// when wall clocks drift.
type AuditEntry struct {
	ID        int64     `json:"id"`
	BookingID string    `json:"booking_id"`
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"ts"`
	TraceID   string    `json:"trace_id,omitempty"`
	Kind      string    `json:"kind"`
	Payload   string    `json:"payload,omitempty"` // JSON detail, shape depends on Kind
}

// Audit kinds recorded by the engine.
const (
	AuditMessageReceived = "message_received"
	AuditClassified      = "classified"
	AuditDetourStarted   = "detour_started"
	AuditDetourReturned  = "detour_returned"
	AuditChangeDeferred  = "change_deferred"
	AuditChangeReplayed  = "change_replayed"
	AuditFastSkip        = "fast_skip"
	AuditStepAdvanced    = "step_advanced"
	AuditHalted          = "halted"
	AuditDraftQueued     = "draft_queued"
	AuditDraftDecided    = "draft_decided"
	AuditReplySent       = "reply_sent"
)

// AppendAudit writes a new entry for the booking, assigning the next
// sequence number.  The read-increment-insert is safe because the store
// serialises all statements through a single connection.
func (s *Store) AppendAudit(ctx context.Context, bookingID, kind, payload string) error {
	traceID := trace.FromContext(ctx)

	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_trail WHERE booking_id = ?`,
		bookingID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to compute audit seq for %s: %w", bookingID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_trail (booking_id, seq, ts, trace_id, kind, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, bookingID, seq, time.Now().UTC(), traceID, kind, payload)
	if err != nil {
		return fmt.Errorf("failed to append audit entry for %s: %w", bookingID, err)
	}

	return nil
}

// AuditByBooking returns the full ordered history for a booking.
func (s *Store) AuditByBooking(ctx context.Context, bookingID string) ([]*AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, booking_id, seq, ts, trace_id, kind, payload_json
		FROM audit_trail
		WHERE booking_id = ?
		ORDER BY seq ASC
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail for %s: %w", bookingID, err)
	}
	defer rows.Close()

	return scanAuditRows(rows)
}

// AuditByTrace returns every entry stamped with the given trace ID, across
// bookings, ordered by time.  Used to reconstruct one inbound message's
// full path through the engine.
func (s *Store) AuditByTrace(ctx context.Context, traceID string) ([]*AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, booking_id, seq, ts, trace_id, kind, payload_json
		FROM audit_trail
		WHERE trace_id = ?
		ORDER BY ts ASC, seq ASC
	`, traceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail for trace %s: %w", traceID, err)
	}
	defer rows.Close()

	return scanAuditRows(rows)
}

func scanAuditRows(rows *sql.Rows) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var traceID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.BookingID, &e.Seq, &e.Timestamp, &traceID, &e.Kind, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		e.TraceID = traceID.String
		e.Payload = payload.String
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}
	return entries, nil
}
