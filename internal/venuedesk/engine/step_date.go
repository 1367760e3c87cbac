package engine

import (
	"context"

	"github.com/venuedesk/venuedesk/internal/venuedesk/booking"
	"github.com/venuedesk/venuedesk/internal/venuedesk/classify"
	"github.com/venuedesk/venuedesk/internal/venuedesk/fingerprint"
)

// stepDateConfirmation locks the event date.  The date is the root decision:
// everything downstream (room evaluation, offer) hangs off it, which is why
// date changes always detour here.
func (e *Engine) stepDateConfirmation(ctx context.Context, t *turn) (stepOutcome, error) {
	b := t.b

	// guard
	proposed := b.EventDate
	if t.res.Entities.Date != "" {
		proposed = t.res.Entities.Date
	}
	if t.directive != nil && t.directive.Kind == booking.ChangeDate {
		proposed = t.directive.Value
	}
	if proposed == "" {
		b.Thread = booking.ThreadAwaitingClient
		return stepOutcome{halt: HaltMissingDate, reply: "Which date did you have in mind for the event?"}, nil
	}

	// body
	accepted := t.res.Intent == classify.IntentConfirmation ||
		t.res.SignalSet(classify.SignalIsAcceptance) ||
		proposed != b.EventDate || // a freshly stated date counts as the client's word
		t.directive != nil

	if !accepted {
		b.Thread = booking.ThreadAwaitingClient
		return stepOutcome{reply: draftDateConfirmRequest(b)}, nil
	}

	if len(e.roomsFor(proposed, b.Headcount, b.Constraints)) == 0 {
		b.Thread = booking.ThreadAwaitingClient
		return stepOutcome{reply: draftDateUnavailable(proposed)}, nil
	}

	b.EventDate = proposed
	b.DateConfirmed = true
	b.RequirementsFingerprint = fingerprint.Requirements(b.EventDate, b.Headcount, b.Constraints)

	// A locked room must still hold on the new date; if not, the room
	// decision re-opens before control returns to the caller.
	if b.RoomID != "" {
		newRoomFP := fingerprint.RoomEvaluation(b.RoomID, b.RequirementsFingerprint)
		ok := fingerprint.Match(b.RoomEvalFingerprint, newRoomFP)
		if !ok {
			if room, found := e.catalog.RoomByID(b.RoomID); found && e.roomFits(room, b) {
				b.RoomEvalFingerprint = newRoomFP
				ok = true
			}
		}
		if !ok {
			// Room no longer works; re-open the room decision in place.
			// The detour caller, if any, is preserved.
			b.RoomID = ""
			b.RoomEvalFingerprint = ""
			b.Step = booking.StepRoomAvailability
			return e.stepRoomAvailability(ctx, t)
		}
	}

	if t.directive != nil {
		return stepOutcome{advance: true, reply: draftChangeAck(booking.ChangeDate, b.EventDate)}, nil
	}
	return stepOutcome{advance: true}, nil
}
