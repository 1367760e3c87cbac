package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/venuedesk/venuedesk/common/textclean"
)

// Thresholds holds the confidence band boundaries.  Values come from the
// runtime config store; zero values fall back to the defaults.
type Thresholds struct {
	High float64
	Mid  float64
}

func (t Thresholds) withDefaults() Thresholds {
	if t.High <= 0 || t.High > 1 {
		t.High = DefaultHighConfidence
	}
	if t.Mid <= 0 || t.Mid >= t.High {
		t.Mid = DefaultMidConfidence
	}
	return t
}

// Hybrid combines the LLM provider with the deterministic rule classifier.
//
// Behaviour:
//   - The LLM path is primary.  Its call is bounded by Timeout; on error or
//     timeout the rule path takes over with confidence forced into the low
//     band, so the turn degrades to a clarifying question instead of a guess.
//   - Deterministic output augments the LLM result: rule-extracted entities
//     fill gaps, and the guarded override corrects acceptance-vs-selection
//     ambiguity using the room-name binding check.
//   - The confidence policy stamps the band and, in the low band, synthesises
//     a clarifying question enumerating the candidate interpretations.
//
// Hybrid implements Provider and is safe for concurrent use.
type Hybrid struct {
	llm        Provider // may be nil: rules-only deployment
	rules      *Rules
	thresholds Thresholds
	timeout    time.Duration
}

// NewHybrid builds the hybrid classifier.  llm may be nil, in which case the
// deterministic path is authoritative.
func NewHybrid(llm Provider, rules *Rules, thresholds Thresholds, timeout time.Duration) *Hybrid {
	if rules == nil {
		rules = NewRules()
	}
	if timeout <= 0 {
		timeout = defaultLLMTimeout
	}
	return &Hybrid{
		llm:        llm,
		rules:      rules,
		thresholds: thresholds.withDefaults(),
		timeout:    timeout,
	}
}

// Classify implements Provider.  It always returns a usable Result: provider
// failures are recovered locally and never surface to the client as errors.
func (h *Hybrid) Classify(ctx context.Context, req Request) (*Result, error) {
	if req.Cleaned == "" {
		req.Cleaned = textclean.Strip(req.Message)
	}
	if req.Quoted == "" {
		req.Quoted = textclean.QuotedOnly(req.Message)
	}

	ruleResult, err := h.rules.Classify(ctx, req)
	if err != nil {
		return nil, err
	}

	if h.llm == nil {
		return h.applyPolicy(ruleResult), nil
	}

	llmCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	llmResult, err := h.llm.Classify(llmCtx, req)
	if err != nil {
		// Classification failures are recovered locally: fall back to the
		// deterministic result with confidence forced low so the policy
		// layer asks rather than guesses.
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			slog.Warn("classify: provider timed out; using rule path", "sender", req.SenderEmail)
		case errors.Is(err, ErrMalformedOutput):
			slog.Warn("classify: malformed provider output; using rule path", "err", err)
		default:
			slog.Warn("classify: provider failed; using rule path", "err", err)
		}
		degraded := *ruleResult
		if degraded.Confidence > h.thresholds.Mid {
			degraded.Confidence = h.thresholds.Mid // never act boldly on a fallback
		}
		degraded.Source = "rules"
		return h.applyPolicy(&degraded), nil
	}

	merged := h.merge(llmResult, ruleResult, req)
	return h.applyPolicy(merged), nil
}

// merge combines the LLM result with deterministic evidence.
func (h *Hybrid) merge(llm, rules *Result, req Request) *Result {
	out := *llm
	if out.Signals == nil {
		out.Signals = make(map[string]string)
	}

	// Deterministic signals the LLM does not produce are carried over;
	// rule-extracted entities fill any the model left empty.
	for name, value := range rules.Signals {
		if _, ok := out.Signals[name]; !ok {
			out.Signals[name] = value
		}
	}
	if out.Entities.Date == "" {
		out.Entities.Date = rules.Entities.Date
	}
	if out.Entities.Headcount == 0 {
		out.Entities.Headcount = rules.Entities.Headcount
	}
	if out.Entities.RoomID == "" {
		out.Entities.RoomID = rules.Entities.RoomID
	}
	if len(out.Entities.Products) == 0 {
		out.Entities.Products = rules.Entities.Products
	}
	if !out.Entities.HasBilling() && rules.Entities.HasBilling() {
		out.Entities.BillingCompany = rules.Entities.BillingCompany
		out.Entities.BillingAddress = rules.Entities.BillingAddress
		out.Entities.BillingTaxID = rules.Entities.BillingTaxID
		out.Entities.BillingEmail = rules.Entities.BillingEmail
	}
	out.Candidates = rules.Candidates

	// Guarded overrides only.  A high-confidence LLM label is otherwise
	// authoritative; scattered keyword matching must not silently win.
	switch {
	case out.Intent == IntentConfirmation && out.Entities.RoomID != "" && req.AwaitingRoomDecision:
		// "Room A looks good" while room options are open is a selection.
		out.Intent = IntentStructuralChange
		out.Signals[SignalChangeMarker] = "room"
		out.Source = "llm+override"

	case out.Intent == IntentStructuralChange && rules.SignalSet(SignalHypothetical):
		// Hypothetical phrasing must never be treated as a change request.
		out.Intent = IntentGeneralQuestion
		delete(out.Signals, SignalChangeMarker)
		out.Source = "llm+override"

	case out.Intent == IntentStructuralChange && out.Signal(SignalChangeMarker) == "" &&
		rules.Signal(SignalChangeMarker) != "":
		out.Signals[SignalChangeMarker] = rules.Signal(SignalChangeMarker)
	}

	return &out
}

// applyPolicy stamps the confidence band and synthesises the clarifying
// question for the low band.
func (h *Hybrid) applyPolicy(r *Result) *Result {
	switch {
	case r.Confidence >= h.thresholds.High:
		r.Band = BandHigh

	case r.Confidence >= h.thresholds.Mid:
		r.Band = BandMid
		r.AuditFlag = true

	default:
		r.Band = BandLow
		r.Clarification = clarifyingQuestion(r.Candidates)
	}
	return r
}

// clarifyingQuestion enumerates the plausible interpretations so the client
// can disambiguate in one reply.  With no candidates at all, a generic
// prompt is used.
func clarifyingQuestion(candidates []Candidate) string {
	if len(candidates) == 0 {
		return "I want to make sure I help you with the right thing — could you tell me a bit more about what you'd like to do with your booking?"
	}

	var sb strings.Builder
	sb.WriteString("Just to make sure I understood you correctly — did you mean to:\n")
	for i, c := range candidates {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, describeIntent(c.Intent))
	}
	sb.WriteString("A short reply with the number or a quick rephrase is perfect.")
	return sb.String()
}

func describeIntent(intent Intent) string {
	switch intent {
	case IntentConfirmation:
		return "confirm the current arrangement as it stands"
	case IntentDecline:
		return "cancel or step back from the booking"
	case IntentCounterOffer:
		return "discuss the price or propose different terms"
	case IntentStructuralChange:
		return "change an agreed detail (date, room, guest count or products)"
	case IntentGeneralQuestion:
		return "ask a question without changing anything yet"
	case IntentEscalation:
		return "talk to a member of our team directly"
	default:
		return "something else"
	}
}
