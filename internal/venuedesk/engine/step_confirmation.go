package engine

import (
	"context"

	"github.com/venuedesk/venuedesk/internal/venuedesk/booking"
)

// stepConfirmation issues the final booking summary and closes the thread.
func (e *Engine) stepConfirmation(ctx context.Context, t *turn) (stepOutcome, error) {
	b := t.b

	// guard
	if !b.Billing.Complete() {
		b.Thread = booking.ThreadAwaitingClient
		return stepOutcome{halt: HaltBillingMissing, reply: draftCheckpointRequest(b)}, nil
	}

	room, ok := e.catalog.RoomByID(b.RoomID)
	if !ok {
		return stepOutcome{halt: HaltNoRoomLocked, reply: draftNoRoomFits(b)}, nil
	}

	// body
	b.Thread = booking.ThreadCompleted
	return stepOutcome{reply: draftFinalConfirmation(b, room), done: true, await: true}, nil
}
