package engine

import (
	"context"

	"github.com/venuedesk/venuedesk/internal/venuedesk/booking"
	"github.com/venuedesk/venuedesk/internal/venuedesk/classify"
)

// stepNegotiation handles the client's reaction to an outstanding offer:
// accept, decline, counter, or ask.  Structural changes never reach this
// body — the detour router intercepts them first.
func (e *Engine) stepNegotiation(ctx context.Context, t *turn) (stepOutcome, error) {
	b := t.b

	// guard
	if b.OfferID == "" || b.OfferStatus == booking.OfferNone {
		return stepOutcome{halt: HaltNoOffer, reply: "We have not sent an offer yet; let me put one together first."}, nil
	}

	// body

	// Re-confirming an already agreed fact is a no-op, not an offer
	// acceptance: "just to confirm, our event is on the 14th" keeps the
	// negotiation open.
	if t.res.Intent == classify.IntentConfirmation {
		if t.res.Entities.Date != "" && t.res.Entities.Date == b.EventDate {
			return stepOutcome{reply: draftFastSkipAck(booking.ChangeDate), await: true}, nil
		}
		if mention := t.res.Entities.RoomID; mention != "" {
			room, ok := e.catalog.RoomByID(mention)
			if !ok {
				room, ok = e.catalog.MatchRoomName(mention)
			}
			if ok && room.ID == b.RoomID {
				return stepOutcome{reply: draftFastSkipAck(booking.ChangeRoom), await: true}, nil
			}
		}
	}

	switch t.res.Intent {
	case classify.IntentConfirmation:
		b.OfferStatus = booking.OfferAccepted
		return stepOutcome{advance: true}, nil

	case classify.IntentDecline:
		b.OfferStatus = booking.OfferDeclined
		b.Thread = booking.ThreadCompleted
		return stepOutcome{reply: draftDeclineAck(), await: true}, nil

	case classify.IntentCounterOffer:
		// Product adjustments are folded into a revised offer; price is a
		// commercial decision, so the revision itself still needs approval.
		if len(t.res.Entities.Products) > 0 {
			b.Products = mergeProducts(b.Products, e.resolveProducts(t.res.Entities.Products))
		}
		b.OfferStatus = booking.OfferCountered
		b.Step = booking.StepOffer
		return e.stepOffer(ctx, t)

	case classify.IntentGeneralQuestion:
		b.Thread = booking.ThreadAwaitingClient
		return stepOutcome{reply: "Good question. Let me check with the team and come back to you with the details.", await: true}, nil
	}

	// Nothing actionable bound; restate where we stand.
	b.Thread = booking.ThreadAwaitingClient
	return stepOutcome{reply: "Just checking in: does the offer we sent work for you, or would you like any changes?", await: true}, nil
}
