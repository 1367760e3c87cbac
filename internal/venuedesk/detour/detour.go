// Package detour decides whether a classified message asserts a structural
// change to an already-locked decision, and if so which earlier step must
// re-open to absorb it.
//
// The detector never mutates the booking.  It returns a Directive the router
// consumes immediately: the directive's caller step is copied into the
// booking, the target step runs, and on completion control returns to the
// caller (round trip).
package detour

import (
	"github.com/venuedesk/venuedesk/internal/venuedesk/booking"
	"github.com/venuedesk/venuedesk/internal/venuedesk/classify"
	"github.com/venuedesk/venuedesk/internal/venuedesk/fingerprint"
)

// Directive instructs the router to re-open an earlier step.
type Directive struct {
	// Kind is the structural change that caused the detour.
	Kind booking.ChangeKind
	// Value carries the bound entity (new date, room ID, headcount as text).
	Value string
	// TargetStep is the step that owns the changed decision.
	TargetStep booking.Step
	// CallerStep is the step the booking was at when the change arrived;
	// the router copies it into the record and returns there afterwards.
	CallerStep booking.Step
}

// Outcome is the full detector verdict for one turn.
type Outcome struct {
	// Directive is non-nil when a detour must run this turn.
	Directive *Directive
	// Deferred lists the structural changes that lost the priority decision
	// when one message carried more than one change, in priority order.
	// They must be queued on the booking, never dropped.
	Deferred []booking.QueuedChange
	// FastSkip is true when a confirmed change recomputed to the identical
	// fingerprint: the locked decision is still valid and no detour is
	// needed.
	FastSkip bool
	// SkippedKind names the change that fast-skipped, for the acknowledgement
	// draft.  Set only when FastSkip is true.
	SkippedKind booking.ChangeKind
}

// changePriority is the deterministic order applied when one message carries
// more than one structural change: the owner earliest in the process wins
// and the rest are deferred to the next turn.  Date outranks room because a
// date change invalidates the room evaluation anyway.
var changePriority = []booking.ChangeKind{
	booking.ChangeDate,
	booking.ChangeRoom,
	booking.ChangeRequirements,
	booking.ChangeProducts,
}

// targetSteps maps each change kind to the step that owns the decision.
var targetSteps = map[booking.ChangeKind]booking.Step{
	booking.ChangeDate:         booking.StepDateConfirmation,
	booking.ChangeRoom:         booking.StepRoomAvailability,
	booking.ChangeRequirements: booking.StepRoomAvailability,
	booking.ChangeProducts:     booking.StepOffer,
}

// TargetStep returns the step owning decisions of the given kind.  Used by
// the router when replaying a queued change on a later turn.
func TargetStep(kind booking.ChangeKind) (booking.Step, bool) {
	s, ok := targetSteps[kind]
	return s, ok
}

// Detect inspects the classification result against the booking and returns
// the detour verdict for this turn.
//
// Rules, in priority order:
//   - Hypothetical phrasing never detours (the classifier already routed it
//     to general-question; this is a second guard).
//   - Billing updates never detour: capture-anytime handles them in place.
//   - A bound, explicit change marker is required; ambiguous phrasing stays
//     on the current step.
//   - A confirmed change whose recomputed fingerprint equals the stored one
//     is a fast-skip (confirm-anytime: redundant confirmations are no-ops).
//   - Otherwise the highest-priority change detours; every further change
//     in the same message is deferred, not dropped.
func Detect(res *classify.Result, b *booking.Booking) Outcome {
	if res.SignalSet(classify.SignalHypothetical) {
		return Outcome{}
	}

	changes := boundChanges(res, b)
	if len(changes) == 0 {
		return Outcome{}
	}

	// Pick the winner by priority; every loser is deferred, in order.
	winner := changes[0]
	var deferred []booking.QueuedChange
	for _, c := range changes[1:] {
		deferred = append(deferred, booking.QueuedChange{Kind: c.kind, Value: c.value})
	}

	if fastSkip(winner, b) {
		return Outcome{FastSkip: true, SkippedKind: winner.kind, Deferred: deferred}
	}

	target := targetSteps[winner.kind]
	if b.Step <= target && !b.InDetour() {
		// The owning step has not completed yet; the change is absorbed by
		// normal forward flow, not a detour.
		return Outcome{Deferred: deferred}
	}

	return Outcome{
		Directive: &Directive{
			Kind:       winner.kind,
			Value:      winner.value,
			TargetStep: target,
			CallerStep: b.Step,
		},
		Deferred: deferred,
	}
}

type boundChange struct {
	kind  booking.ChangeKind
	value string
}

// boundChanges collects every structural change the message binds, ordered
// by priority.  Redundant restatements of current values are filtered here,
// which is what makes confirm-anytime idempotent.
func boundChanges(res *classify.Result, b *booking.Booking) []boundChange {
	var out []boundChange
	for _, kind := range changePriority {
		switch kind {
		case booking.ChangeDate:
			date := res.Entities.Date
			if date == "" || !explicitChange(res, b, kind) {
				continue
			}
			if b.DateConfirmed && date == b.EventDate {
				continue // redundant confirmation of the agreed date
			}
			if !b.DateConfirmed && b.EventDate == "" {
				continue // no locked date yet; forward flow owns this
			}
			if date != b.EventDate {
				out = append(out, boundChange{kind, date})
			}

		case booking.ChangeRoom:
			room := res.Entities.RoomID
			if room == "" || !explicitChange(res, b, kind) {
				continue
			}
			if b.RoomID != "" && room == b.RoomID {
				continue // restating the locked room
			}
			out = append(out, boundChange{kind, room})

		case booking.ChangeRequirements:
			hc := res.Entities.Headcount
			if hc == 0 || !explicitChange(res, b, kind) {
				continue
			}
			if hc == b.Headcount {
				continue // restating the known headcount
			}
			if b.Headcount == 0 {
				continue // first capture, not a change
			}
			out = append(out, boundChange{kind, itoa(hc)})

		case booking.ChangeProducts:
			if len(res.Entities.Products) == 0 || !explicitChange(res, b, kind) {
				continue
			}
			out = append(out, boundChange{kind, join(res.Entities.Products)})
		}
	}
	return out
}

// explicitChange requires either the classifier's structural-change label or
// a bound change-marker signal naming this kind.  Either way the phrasing
// was explicit; hypotheticals were filtered before this point.
func explicitChange(res *classify.Result, b *booking.Booking, kind booking.ChangeKind) bool {
	if res.Signal(classify.SignalChangeMarker) == string(kind) {
		return true
	}
	return res.Intent == classify.IntentStructuralChange
}

// fastSkip recomputes the fingerprint the change would produce and compares
// it against the stored one.  A match means the locked decision still covers
// the "changed" inputs, so re-evaluation is skipped.
func fastSkip(c boundChange, b *booking.Booking) bool {
	switch c.kind {
	case booking.ChangeDate:
		newFP := fingerprint.Requirements(c.value, b.Headcount, b.Constraints)
		return fingerprint.Match(b.RequirementsFingerprint, newFP)

	case booking.ChangeRequirements:
		newFP := fingerprint.Requirements(b.EventDate, atoi(c.value), b.Constraints)
		return fingerprint.Match(b.RequirementsFingerprint, newFP)

	case booking.ChangeRoom:
		newFP := fingerprint.RoomEvaluation(c.value, b.RequirementsFingerprint)
		return fingerprint.Match(b.RoomEvalFingerprint, newFP)

	case booking.ChangeProducts:
		newFP := fingerprint.Products(splitList(c.value))
		return b.OfferID != "" && fingerprint.Match(fingerprint.Products(b.Products), newFP)
	}
	return false
}
