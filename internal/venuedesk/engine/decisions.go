package engine

import (
	"context"
	"fmt"

	"github.com/venuedesk/venuedesk/common/trace"
	"github.com/venuedesk/venuedesk/internal/venuedesk/booking"
	"github.com/venuedesk/venuedesk/internal/venuedesk/store"
)

// Decision is the outcome of a collaborator acting on a held draft.
type Decision struct {
	// SendText is the reply to actually deliver to the client ("" on
	// rejection).
	SendText string `json:"send_text,omitempty"`

	// BookingID is the booking the decision resumed.
	BookingID string `json:"booking_id"`

	// Thread is the conversation state after the decision.
	Thread booking.ThreadState `json:"thread"`
}

// ApproveDraft approves the held draft verbatim and resumes the booking.
// The returned SendText is what the transport layer delivers.
func (e *Engine) ApproveDraft(ctx context.Context, draftID, decidedBy string) (*Decision, error) {
	if err := e.gate.Store().Approve(ctx, draftID, decidedBy); err != nil {
		return nil, err
	}
	return e.resumeAfterSend(ctx, draftID, decidedBy, "approved")
}

// EditDraft replaces the draft text and sends the edited version.
func (e *Engine) EditDraft(ctx context.Context, draftID, decidedBy, editedBody string) (*Decision, error) {
	if err := e.gate.Store().Edit(ctx, draftID, decidedBy, editedBody); err != nil {
		return nil, err
	}
	return e.resumeAfterSend(ctx, draftID, decidedBy, "edited")
}

// RejectDraft discards the draft; nothing is sent and the booking returns to
// in-progress so the engine (or a human) can try again.
func (e *Engine) RejectDraft(ctx context.Context, draftID, decidedBy, reason string) (*Decision, error) {
	if err := e.gate.Store().Reject(ctx, draftID, decidedBy, reason); err != nil {
		return nil, err
	}

	d, err := e.gate.Store().Get(ctx, draftID)
	if err != nil {
		return nil, err
	}

	// Decisions mutate the booking record, so they take the same per-booking
	// lock as message turns; otherwise a decision landing mid-turn would
	// revert the turn's writes.
	_, release := e.sessions.Acquire(d.BookingID)
	defer release()

	b, err := e.store.GetBooking(ctx, d.BookingID)
	if err != nil {
		return nil, err
	}

	if b.Thread == booking.ThreadAwaitingApproval {
		b.Thread = booking.ThreadInProgress
	}
	if err := e.store.PutBooking(ctx, b); err != nil {
		return nil, err
	}

	e.audit(ctx, b.ID, store.AuditDraftDecided, map[string]any{
		"draft_id":   draftID,
		"decision":   "rejected",
		"decided_by": decidedBy,
		"reason":     reason,
	})

	return &Decision{BookingID: b.ID, Thread: b.Thread}, nil
}

// resumeAfterSend records the decision, flips the booking out of the
// awaiting-approval state, and hands the final text back for delivery.
func (e *Engine) resumeAfterSend(ctx context.Context, draftID, decidedBy, decision string) (*Decision, error) {
	if trace.FromContext(ctx) == "" {
		ctx = trace.WithTraceID(ctx, trace.GenerateID())
	}

	d, err := e.gate.Store().Get(ctx, draftID)
	if err != nil {
		return nil, err
	}

	// Same per-booking lock as ProcessMessage: the resume read-modify-write
	// must not interleave with an in-flight turn.
	_, release := e.sessions.Acquire(d.BookingID)
	defer release()

	b, err := e.store.GetBooking(ctx, d.BookingID)
	if err != nil {
		return nil, fmt.Errorf("engine: resume booking for draft %s: %w", draftID, err)
	}

	switch {
	case b.Step == booking.StepConfirmation && booking.Step(d.Step) == booking.StepConfirmation:
		b.Thread = booking.ThreadCompleted
	case b.OfferStatus == booking.OfferDeclined:
		b.Thread = booking.ThreadCompleted
	default:
		b.Thread = booking.ThreadAwaitingClient
	}
	if err := e.store.PutBooking(ctx, b); err != nil {
		return nil, err
	}

	e.audit(ctx, b.ID, store.AuditDraftDecided, map[string]any{
		"draft_id":   draftID,
		"decision":   decision,
		"decided_by": decidedBy,
	})
	e.audit(ctx, b.ID, store.AuditReplySent, map[string]any{
		"draft_id": draftID,
		"bytes":    len(d.FinalBody()),
	})

	return &Decision{
		SendText:  d.FinalBody(),
		BookingID: b.ID,
		Thread:    b.Thread,
	}, nil
}
