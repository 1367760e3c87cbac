package classify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/venuedesk/venuedesk/common/textclean"
)

// Rules is the deterministic pattern classifier.  It serves two roles: the
// fallback strategy when the LLM provider fails or times out, and the
// override authority for a small set of guarded disambiguation cases.
//
// All matching runs on cleaned text with word boundaries; no rule ever
// inspects the raw body directly.
type Rules struct {
	// Now is injected for year-less date resolution; defaults to time.Now.
	Now func() time.Time
}

// NewRules returns a Rules classifier.
func NewRules() *Rules {
	return &Rules{Now: time.Now}
}

// Keyword tables.  Phrases (with spaces) use phrase matching; single words
// use word-boundary matching.

var acceptanceWords = []string{
	"yes", "ok", "okay", "confirmed", "confirm", "agreed", "deal", "perfect",
	"sounds good", "works for us", "works for me", "go ahead", "we accept",
	"we agree", "that works", "looks good", "happy with that", "take it",
}

var declineWords = []string{
	"cancel", "decline", "withdraw", "not interested", "call it off",
	"unfortunately we", "we have decided against", "no longer need",
	"won't be going ahead", "will not be going ahead",
}

var counterWords = []string{
	"too expensive", "discount", "cheaper", "lower price", "reduce the price",
	"better price", "price is high", "over our budget", "budget is",
	"can you do", "match the price", "counter", "negotiate",
}

var escalationWords = []string{
	"manager", "supervisor", "person in charge", "speak to a human",
	"talk to someone", "real person", "escalate",
}

var questionStarters = []string{
	"what", "when", "where", "who", "how", "why", "which", "can", "could",
	"would", "is", "are", "do", "does",
}

var hypotheticalMarkers = []string{
	"what if", "hypothetically", "in theory", "out of curiosity",
	"would it be possible", "just wondering", "if we were to",
	"suppose we", "supposing we",
}

var dateChangeMarkers = []string{
	"change the date", "move the date", "new date", "different date",
	"reschedule", "postpone", "instead", "rather than", "shift the date",
	"push the date", "switch the date",
}

var roomChangeMarkers = []string{
	"switch to", "change the room", "different room", "instead",
	"rather have", "move to", "take the", "prefer the", "change rooms",
}

var requirementsChangeMarkers = []string{
	"now", "instead", "changed to", "grown to", "increased to",
	"decreased to", "down to", "up to", "we are expecting", "update the",
}

var productChangeMarkers = []string{
	"add", "remove", "drop", "also like", "no longer want", "skip the",
	"include", "without the", "one more",
}

var billingWords = []string{
	"invoice", "billing", "vat", "tax id", "company name",
	"billing address", "invoice address", "purchase order",
}

var paymentWords = []string{
	"deposit", "paid", "payment", "transferred", "transfer", "wired",
	"bank details", "settled",
}

// Classify implements Provider.  It never fails: a message with no matching
// pattern yields IntentNone at low confidence, which the policy layer turns
// into a clarifying question.
func (r *Rules) Classify(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cleaned := req.Cleaned
	if cleaned == "" {
		cleaned = textclean.Strip(req.Message)
	}
	lower := strings.ToLower(cleaned)
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}

	result := &Result{
		Signals:  make(map[string]string),
		Source:   "rules",
		Entities: r.extractEntities(cleaned, req, now),
	}

	// --- Auxiliary signals ---------------------------------------------------
	isQuestion := strings.Contains(cleaned, "?") || startsWithQuestionWord(lower)
	if isQuestion {
		result.Signals[SignalIsQuestion] = "true"
	}
	if textclean.ContainsAnyWord(cleaned, acceptanceWords...) {
		result.Signals[SignalIsAcceptance] = "true"
	}
	if textclean.ContainsAnyWord(cleaned, escalationWords...) {
		result.Signals[SignalWantsManager] = "true"
	}
	hypothetical := textclean.ContainsAnyWord(cleaned, hypotheticalMarkers...)
	if hypothetical {
		result.Signals[SignalHypothetical] = "true"
	}

	// --- Bound change markers ------------------------------------------------
	// A change marker only binds when the corresponding entity is present in
	// the fresh text; marker words alone are ambiguous phrasing.
	changeKind := ""
	switch {
	case result.Entities.Date != "" && result.Entities.Date != req.ConfirmedDate &&
		textclean.ContainsAnyWord(cleaned, dateChangeMarkers...):
		changeKind = "date"
	case result.Entities.RoomID != "" && textclean.ContainsAnyWord(cleaned, roomChangeMarkers...):
		changeKind = "room"
	case result.Entities.Headcount > 0 && result.Entities.Headcount != req.Headcount &&
		textclean.ContainsAnyWord(cleaned, requirementsChangeMarkers...):
		changeKind = "requirements"
	case len(result.Entities.Products) > 0 && textclean.ContainsAnyWord(cleaned, productChangeMarkers...):
		changeKind = "products"
	case result.Entities.HasBilling():
		changeKind = "billing"
	}
	if changeKind != "" && !hypothetical {
		result.Signals[SignalChangeMarker] = changeKind
	}

	// --- Intent scoring ------------------------------------------------------
	scores := map[Intent]float64{}
	reasons := map[Intent]string{}

	if changeKind != "" && changeKind != "billing" && !hypothetical {
		scores[IntentStructuralChange] = 0.9
		reasons[IntentStructuralChange] = fmt.Sprintf("bound %s change marker", changeKind)
	}
	if hypothetical && (changeKind != "" || isQuestion) {
		// Hypothetical phrasing must never count as a change request.
		scores[IntentGeneralQuestion] = 0.85
		reasons[IntentGeneralQuestion] = "hypothetical phrasing"
	}
	if textclean.ContainsAnyWord(cleaned, escalationWords...) {
		scores[IntentEscalation] = 0.85
		reasons[IntentEscalation] = "manager/escalation keywords"
	}
	if textclean.ContainsAnyWord(cleaned, declineWords...) {
		scores[IntentDecline] = 0.8
		reasons[IntentDecline] = "decline keywords"
	}
	if textclean.ContainsAnyWord(cleaned, counterWords...) {
		scores[IntentCounterOffer] = 0.75
		reasons[IntentCounterOffer] = "price/negotiation keywords"
	}
	if result.SignalSet(SignalIsAcceptance) && !isQuestion {
		// Guarded disambiguation: "Room A looks good" is a room selection
		// only when a room name is bound AND a room decision is pending;
		// otherwise acceptance keywords win.
		if result.Entities.RoomID != "" && req.AwaitingRoomDecision {
			scores[IntentStructuralChange] = maxFloat(scores[IntentStructuralChange], 0.85)
			reasons[IntentStructuralChange] = "room name bound while a room decision is pending"
			result.Signals[SignalChangeMarker] = "room"
		} else {
			scores[IntentConfirmation] = 0.8
			reasons[IntentConfirmation] = "acceptance keywords"
		}
	}
	if isQuestion && len(scores) == 0 {
		scores[IntentGeneralQuestion] = 0.7
		reasons[IntentGeneralQuestion] = "interrogative phrasing"
	}

	// Billing details or a payment report are cooperative statements, not
	// requests; score them as soft confirmations so the pipeline can capture
	// them instead of asking what the client meant.
	if len(scores) == 0 &&
		(changeKind == "billing" || textclean.ContainsAnyWord(cleaned, paymentWords...)) {
		scores[IntentConfirmation] = 0.6
		reasons[IntentConfirmation] = "billing or payment details provided"
	}

	// Bare entity statements without markers: weak evidence only.
	if len(scores) == 0 && (result.Entities.Date != "" || result.Entities.Headcount > 0) {
		scores[IntentConfirmation] = 0.45
		reasons[IntentConfirmation] = "entities stated without an explicit request"
		scores[IntentStructuralChange] = 0.35
		reasons[IntentStructuralChange] = "entities could imply a change"
	}

	// --- Pick the winner -----------------------------------------------------
	if len(scores) == 0 {
		result.Intent = IntentNone
		result.Confidence = 0.2
		result.Candidates = nil
		return result, nil
	}

	best := IntentNone
	bestScore := 0.0
	for intent, score := range scores {
		if score > bestScore || (score == bestScore && intent < best) {
			best, bestScore = intent, score
		}
	}
	result.Intent = best
	result.Confidence = bestScore

	for intent, score := range scores {
		result.Candidates = append(result.Candidates, Candidate{
			Intent: intent,
			Reason: fmt.Sprintf("%s (score %.2f)", reasons[intent], score),
		})
	}
	sort.Slice(result.Candidates, func(i, j int) bool {
		return scores[result.Candidates[i].Intent] > scores[result.Candidates[j].Intent]
	})

	return result, nil
}

// extractEntities binds structured values from the cleaned text.
func (r *Rules) extractEntities(cleaned string, req Request, now time.Time) Entities {
	e := Entities{
		Date:      ExtractDate(cleaned, now),
		Headcount: ExtractHeadcount(cleaned),
	}

	if name, ok := MatchName(cleaned, req.KnownRoomNames); ok {
		e.RoomID = name
	}
	for _, p := range req.KnownProducts {
		if matched, ok := MatchName(cleaned, []string{p}); ok {
			e.Products = append(e.Products, matched)
		}
	}

	if textclean.ContainsAnyWord(cleaned, billingWords...) {
		// Strip redacts mail addresses, so a billing email would never
		// survive into cleaned; extract from the unredacted current-turn
		// text instead.
		billingText := cleaned
		if req.Message != "" {
			billingText = textclean.StripQuoted(req.Message)
		}
		e.BillingCompany, e.BillingAddress, e.BillingTaxID, e.BillingEmail = ExtractBilling(billingText)
	}

	return e
}

func startsWithQuestionWord(lower string) bool {
	fields := strings.Fields(lower)
	if len(fields) == 0 {
		return false
	}
	first := strings.Trim(fields[0], ",.!")
	for _, q := range questionStarters {
		if first == q {
			return true
		}
	}
	return false
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
