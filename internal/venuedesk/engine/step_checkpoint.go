package engine

import (
	"context"

	"github.com/venuedesk/venuedesk/common/textclean"
	"github.com/venuedesk/venuedesk/internal/venuedesk/booking"
	"github.com/venuedesk/venuedesk/internal/venuedesk/classify"
)

func mentionsPayment(cleaned string) bool {
	return textclean.ContainsAnyWord(cleaned,
		"deposit", "paid", "payment", "transferred", "transfer", "wired")
}

// stepCheckpoint gates the transition from an accepted offer to the final
// confirmation: invoicing details must be complete and the deposit settled.
// Billing fields arrive whenever the client sends them (the pipeline
// captures them at any step), so this body mostly checks and nudges.
func (e *Engine) stepCheckpoint(ctx context.Context, t *turn) (stepOutcome, error) {
	b := t.b

	// guard
	if b.OfferStatus != booking.OfferAccepted {
		return stepOutcome{halt: HaltNoOffer, reply: "Let's finish agreeing the offer first, then we can sort out the paperwork."}, nil
	}

	// body
	wasRequested := b.Deposit == booking.DepositRequested
	if b.Deposit == booking.DepositNone {
		b.Deposit = booking.DepositRequested
	}
	// The client reporting the transfer is the only deposit signal we have;
	// there is no payment rail wired in, and a human approves the resulting
	// draft anyway.
	if wasRequested && t.res.Intent == classify.IntentConfirmation && mentionsPayment(t.cleaned) {
		b.Deposit = booking.DepositReceived
	}

	depositSettled := b.Deposit == booking.DepositReceived || b.Deposit == booking.DepositWaived
	if b.Billing.Complete() && depositSettled {
		return stepOutcome{advance: true}, nil
	}

	b.Thread = booking.ThreadAwaitingClient
	return stepOutcome{reply: draftCheckpointRequest(b), await: true}, nil
}
