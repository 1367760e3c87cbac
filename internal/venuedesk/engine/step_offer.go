package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/venuedesk/venuedesk/internal/venuedesk/booking"
	"github.com/venuedesk/venuedesk/internal/venuedesk/catalog"
)

// stepOffer assembles the priced offer from the locked room and the chosen
// add-ons.  Every revision bumps the offer version; the offer ID is stable
// for the booking's lifetime.
func (e *Engine) stepOffer(ctx context.Context, t *turn) (stepOutcome, error) {
	b := t.b

	// guard
	if b.RoomID == "" {
		b.Thread = booking.ThreadAwaitingClient
		return stepOutcome{halt: HaltNoRoomLocked, reply: "Let's settle the room first. " + draftRoomOptions(b, e.roomsFor(b.EventDate, b.Headcount, b.Constraints))}, nil
	}
	room, ok := e.catalog.RoomByID(b.RoomID)
	if !ok {
		b.Thread = booking.ThreadAwaitingClient
		return stepOutcome{halt: HaltNoRoomLocked, reply: draftNoRoomFits(b)}, nil
	}

	// body
	if t.directive != nil && t.directive.Kind == booking.ChangeProducts {
		b.Products = e.resolveProducts(splitCSV(t.directive.Value))
	} else if len(t.res.Entities.Products) > 0 {
		b.Products = mergeProducts(b.Products, e.resolveProducts(t.res.Entities.Products))
	}

	if b.OfferID == "" {
		b.OfferID = uuid.NewString()[:8]
	}
	b.OfferVersion++
	b.OfferStatus = booking.OfferSent
	b.Thread = booking.ThreadAwaitingClient

	reply := draftOffer(b, room, e.productsOf(b))
	if t.directive != nil {
		reply = draftChangeAck(t.directive.Kind, t.directive.Value) + "\n\n" + reply
	}
	return stepOutcome{reply: reply, advance: true, await: true}, nil
}

// resolveProducts maps free-text mentions to catalog product IDs, dropping
// anything the catalog does not carry.
func (e *Engine) resolveProducts(mentions []string) []string {
	var out []string
	for _, m := range mentions {
		if p, ok := e.catalog.ProductByID(m); ok {
			out = append(out, p.ID)
			continue
		}
		for _, p := range e.catalog.Products() {
			if equalFold(p.Name, m) {
				out = append(out, p.ID)
				break
			}
		}
	}
	return out
}

// productsOf resolves the booking's product IDs to catalog entries.
func (e *Engine) productsOf(b *booking.Booking) []catalog.Product {
	var out []catalog.Product
	for _, id := range b.Products {
		if p, ok := e.catalog.ProductByID(id); ok {
			out = append(out, p)
		}
	}
	return out
}

func mergeProducts(have, add []string) []string {
	seen := make(map[string]bool, len(have))
	out := append([]string(nil), have...)
	for _, id := range have {
		seen[id] = true
	}
	for _, id := range add {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
