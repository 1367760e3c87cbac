package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/venuedesk/venuedesk/internal/venuedesk/booking"
	"github.com/venuedesk/venuedesk/internal/venuedesk/classify"
	"github.com/venuedesk/venuedesk/internal/venuedesk/detour"
)

// Named halt reasons recorded in the audit trail when a guard refuses to run
// a step body.  A halted turn never mutates the booking.
const (
	HaltMissingDate      = "missing_event_date"
	HaltMissingHeadcount = "missing_headcount"
	HaltDateNotConfirmed = "date_not_confirmed"
	HaltNoRoomLocked     = "no_room_locked"
	HaltNoOffer          = "no_offer_outstanding"
	HaltBillingMissing   = "billing_incomplete"
	HaltDuplicate        = "duplicate_message"
	HaltRateLimited      = "rate_limited"
	HaltLowConfidence    = "low_confidence_clarify"
	HaltAlreadyComplete  = "booking_complete"
)

// turn carries everything a step handler may read for one inbound message.
// Handlers mutate only the booking, and only after their guard passed.
type turn struct {
	b   *booking.Booking
	res *classify.Result

	// cleaned is the fresh message text with quoted history stripped.
	cleaned string

	// directive is set when this turn re-opened an earlier step; its Value
	// carries the bound change the target step must absorb.
	directive *detour.Directive
}

// stepOutcome is the verdict of one step execution.
type stepOutcome struct {
	// reply is the client-facing text drafted by the body ("" when the step
	// produced nothing to say this turn).
	reply string

	// advance moves the booking to the next step (or back to the caller when
	// a detour is in flight).
	advance bool

	// halt names the guard failure when the body did not run.
	halt string

	// await stops the in-turn step chain: the reply asks the client (or the
	// approver) something and later steps must not run on this message.
	await bool

	// done marks the terminal step as finished.
	done bool
}

// runStep dispatches to the handler owning the booking's current step.
// Each handler runs guard, body, exit in that order.
func (e *Engine) runStep(ctx context.Context, t *turn) (stepOutcome, error) {
	switch t.b.Step {
	case booking.StepIntake:
		return e.stepIntake(ctx, t)
	case booking.StepDateConfirmation:
		return e.stepDateConfirmation(ctx, t)
	case booking.StepRoomAvailability:
		return e.stepRoomAvailability(ctx, t)
	case booking.StepOffer:
		return e.stepOffer(ctx, t)
	case booking.StepNegotiation:
		return e.stepNegotiation(ctx, t)
	case booking.StepTransitionCheckpoint:
		return e.stepCheckpoint(ctx, t)
	case booking.StepConfirmation:
		return e.stepConfirmation(ctx, t)
	}
	return stepOutcome{}, fmt.Errorf("engine: booking %s at invalid step %d", t.b.ID, t.b.Step)
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// awaitingRoomDecision reports whether the booking has been shown room
// options without locking one yet.  Feeds the classifier's guarded
// acceptance-vs-selection disambiguation.
func awaitingRoomDecision(b *booking.Booking) bool {
	return b.Step == booking.StepRoomAvailability && b.RoomID == "" &&
		(b.Thread == booking.ThreadAwaitingClient || b.Thread == booking.ThreadAwaitingApproval)
}
