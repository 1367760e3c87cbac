package engine

import (
	"context"

	"github.com/venuedesk/venuedesk/internal/venuedesk/booking"
)

// stepIntake captures the client's basics.  There is no guard: any message
// from a new client runs intake, and whatever the message already carries
// (shortcut capture) counts.
func (e *Engine) stepIntake(ctx context.Context, t *turn) (stepOutcome, error) {
	b, ents := t.b, t.res.Entities

	if b.EventDate == "" && ents.Date != "" {
		b.EventDate = ents.Date
	}
	if b.Headcount == 0 && ents.Headcount > 0 {
		b.Headcount = ents.Headcount
	}

	var missing []string
	if b.EventDate == "" {
		missing = append(missing, "the event date")
	}
	if b.Headcount == 0 {
		missing = append(missing, "the number of guests")
	}

	if len(missing) > 0 {
		b.Thread = booking.ThreadAwaitingClient
		return stepOutcome{reply: draftIntakeGreeting(b, missing)}, nil
	}

	return stepOutcome{reply: draftIntakeGreeting(b, nil), advance: true}, nil
}
