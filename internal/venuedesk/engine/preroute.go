package engine

import (
	"context"
	"log/slog"

	"github.com/venuedesk/venuedesk/common/textclean"
	"github.com/venuedesk/venuedesk/internal/venuedesk/booking"
	"github.com/venuedesk/venuedesk/internal/venuedesk/classify"
)

// classifyTurn runs the unified classification for this turn: exactly one
// classifier call per inbound message, its result shared by every later
// stage.  When the sender exceeds the rate limit the LLM path is skipped and
// the deterministic rules answer instead.
func (e *Engine) classifyTurn(ctx context.Context, b *booking.Booking, sender, message string) (*classify.Result, error) {
	req := classify.Request{
		Message:              message,
		SenderEmail:          sender,
		CurrentStep:          int(b.Step),
		AwaitingRoomDecision: awaitingRoomDecision(b),
		ConfirmedDate:        b.EventDate,
		Headcount:            b.Headcount,
		KnownRoomNames:       e.knownRoomNames(),
		KnownProducts:        e.knownProductNames(),
		PendingDraft:         b.Thread == booking.ThreadAwaitingApproval,
	}

	provider := e.classifier
	if e.limiter != nil && !e.limiter.Allow(sender) {
		slog.Warn("classifier rate limit hit, using rule path",
			"booking_id", b.ID,
			"sender", sender,
		)
		provider = e.fallback
	}

	return provider.Classify(ctx, req)
}

func (e *Engine) knownRoomNames() []string {
	rooms := e.catalog.Rooms()
	out := make([]string, 0, len(rooms)*2)
	for _, r := range rooms {
		out = append(out, r.ID, r.Name)
	}
	return out
}

func (e *Engine) knownProductNames() []string {
	products := e.catalog.Products()
	out := make([]string, 0, len(products)*2)
	for _, p := range products {
		out = append(out, p.ID, p.Name)
	}
	return out
}

// outOfContextGate clears entities that only the quoted history supports.
// Clients reply with the whole thread below their message; a date or price
// in that tail is old conversation, not a new instruction.  An entity
// survives only when the fresh text corroborates it.  Returns the names of
// the suppressed entities for the audit trail.
func outOfContextGate(res *classify.Result, message string) []string {
	quoted := textclean.QuotedOnly(message)
	if quoted == "" {
		return nil
	}
	cleaned := textclean.Strip(message)

	var suppressed []string

	if res.Entities.Date != "" && classify.ExtractDate(cleaned, timeNow()) == "" &&
		classify.ExtractDate(quoted, timeNow()) != "" {
		res.Entities.Date = ""
		suppressed = append(suppressed, "date")
	}

	if res.Entities.Headcount != 0 && classify.ExtractHeadcount(cleaned) == 0 &&
		classify.ExtractHeadcount(quoted) != 0 {
		res.Entities.Headcount = 0
		suppressed = append(suppressed, "headcount")
	}

	// Prices never bind an entity, but a stale quoted price with no fresh
	// counterpart downgrades an LLM counter-offer call to a question.
	if res.Intent == classify.IntentCounterOffer &&
		classify.ContainsPrice(quoted) && !classify.ContainsPrice(cleaned) {
		res.Intent = classify.IntentGeneralQuestion
		suppressed = append(suppressed, "price")
	}

	return suppressed
}

// shortcutCapture records fields the client volunteered ahead of the step
// that owns them.  Values are captured, never confirmed: the owning step's
// gating still runs when the process reaches it.
func shortcutCapture(b *booking.Booking, res *classify.Result) []string {
	var captured []string

	if b.EventDate == "" && res.Entities.Date != "" {
		b.EventDate = res.Entities.Date
		captured = append(captured, "event_date")
	}
	if b.Headcount == 0 && res.Entities.Headcount > 0 {
		b.Headcount = res.Entities.Headcount
		captured = append(captured, "headcount")
	}

	return captured
}

// captureBilling merges invoicing fields into the booking regardless of the
// current step.  Billing is capture-anytime and never detours.
func captureBilling(b *booking.Booking, res *classify.Result) bool {
	if !res.Entities.HasBilling() {
		return false
	}
	ents := res.Entities
	if ents.BillingCompany != "" {
		b.Billing.Company = ents.BillingCompany
	}
	if ents.BillingAddress != "" {
		b.Billing.Address = ents.BillingAddress
	}
	if ents.BillingTaxID != "" {
		b.Billing.TaxID = ents.BillingTaxID
	}
	if ents.BillingEmail != "" {
		b.Billing.Email = ents.BillingEmail
	}
	return true
}
