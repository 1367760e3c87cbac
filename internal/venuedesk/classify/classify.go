// Package classify provides the hybrid natural-language classification layer
// for inbound client messages.
//
// Two strategies implement the same Provider interface: an LLM-backed
// provider (JSON-mode chat completion, schema-validated) and a deterministic
// rule classifier operating on cleaned text.  The Hybrid wrapper combines
// them: the LLM path is primary, the rule path is the fallback on provider
// failure or timeout, and a small set of guarded deterministic overrides may
// correct the LLM on ambiguous acceptance-vs-selection phrasing.
//
// The classifier only ever proposes: it never mutates a booking, and every
// client-facing draft produced downstream still passes the approval gate.
package classify

import (
	"context"
	"errors"
)

// Intent is the closed set of message intent labels.
type Intent string

const (
	IntentConfirmation     Intent = "confirmation"
	IntentDecline          Intent = "decline"
	IntentCounterOffer     Intent = "counter_offer"
	IntentStructuralChange Intent = "structural_change"
	IntentGeneralQuestion  Intent = "general_question"
	IntentEscalation       Intent = "escalation_request"
	IntentNone             Intent = "none"
)

// validIntents is the allow-list applied to LLM output.
var validIntents = map[Intent]bool{
	IntentConfirmation:     true,
	IntentDecline:          true,
	IntentCounterOffer:     true,
	IntentStructuralChange: true,
	IntentGeneralQuestion:  true,
	IntentEscalation:       true,
	IntentNone:             true,
}

// ValidIntent reports whether label is part of the closed intent set.
func ValidIntent(label Intent) bool {
	return validIntents[label]
}

// Confidence band thresholds.  These are defaults; the runtime config store
// can override them per deployment.
const (
	DefaultHighConfidence = 0.8
	DefaultMidConfidence  = 0.5
)

// Band is the behavioural bucket a confidence score falls into.
type Band string

const (
	// BandHigh: act immediately.
	BandHigh Band = "high"
	// BandMid: act, but flag the turn for lighter-weight audit review.
	BandMid Band = "mid"
	// BandLow: do not guess — hold the turn and ask a clarifying question.
	BandLow Band = "low"
)

// Signal names under which auxiliary detector output is keyed.
const (
	SignalIsQuestion   = "is_question"
	SignalIsAcceptance = "is_acceptance"
	SignalWantsManager = "wants_manager"
	SignalChangeMarker = "bound_change_marker" // value: date|room|requirements|products|billing
	SignalHypothetical = "hypothetical"
)

// ErrMalformedOutput is returned by the LLM provider when the model response
// cannot be interpreted as a schema-valid Result.
var ErrMalformedOutput = errors.New("classify: malformed response from provider")

// Entities holds structured values bound in the message text.  A zero value
// means the entity was not present; extraction alone never mutates a booking.
type Entities struct {
	// Date is an ISO 8601 date bound in the fresh (non-quoted) text.
	Date string `json:"date,omitempty"`
	// Headcount is a bound guest count (0 = absent).
	Headcount int `json:"headcount,omitempty"`
	// RoomID is a catalog room bound by name in the text.
	RoomID string `json:"room_id,omitempty"`
	// Products are catalog product IDs mentioned in the text.
	Products []string `json:"products,omitempty"`
	// BillingCompany/BillingAddress/BillingTaxID/BillingEmail are invoicing
	// fields offered in the message (capture-anytime).
	BillingCompany string `json:"billing_company,omitempty"`
	BillingAddress string `json:"billing_address,omitempty"`
	BillingTaxID   string `json:"billing_tax_id,omitempty"`
	BillingEmail   string `json:"billing_email,omitempty"`
}

// HasBilling reports whether any billing field was bound.
func (e Entities) HasBilling() bool {
	return e.BillingCompany != "" || e.BillingAddress != "" || e.BillingTaxID != "" || e.BillingEmail != ""
}

// Request is the input to a single classification call.  Callers populate the
// context fields fresh on each request; nothing is cached inside providers.
type Request struct {
	// Message is the raw inbound body.
	Message string

	// Cleaned is the message with quoted history, signatures, URLs and
	// addresses stripped.  The Hybrid fills this from Message when empty;
	// all deterministic rules operate on Cleaned only.
	Cleaned string

	// Quoted is the quoted-history portion of the body, used by the
	// out-of-context gate to spot stale dates and prices.
	Quoted string

	// SenderEmail identifies the client, for rate limiting and traceability.
	SenderEmail string

	// CurrentStep is the booking's step number (1–7) when the message arrived.
	CurrentStep int

	// AwaitingRoomDecision is true while the room-availability step has
	// presented options and no room is locked yet.  Required for the guarded
	// acceptance-vs-room-selection disambiguation.
	AwaitingRoomDecision bool

	// ConfirmedDate is the booking's confirmed event date ("" when none).
	ConfirmedDate string

	// Headcount is the booking's current headcount (0 when unknown).
	Headcount int

	// KnownRoomNames lists catalog room names/IDs for entity binding.
	KnownRoomNames []string

	// KnownProducts lists catalog product IDs/names for entity binding.
	KnownProducts []string

	// PendingDraft is true when a draft for this booking is already held at
	// the approval gate; latest-wins context for the supersede rule.
	PendingDraft bool
}

// Candidate is one plausible interpretation of an ambiguous message, used to
// compose the clarifying question in the low-confidence band.
type Candidate struct {
	Intent Intent `json:"intent"`
	Reason string `json:"reason"`
}

// Result is produced fresh per inbound message and never persisted beyond
// the turn except as an audit trace entry.
type Result struct {
	// Intent is the selected label from the closed set.
	Intent Intent `json:"intent"`

	// Confidence is the classifier's certainty in [0,1].
	Confidence float64 `json:"confidence"`

	// Signals holds auxiliary detector output keyed by detector name.
	Signals map[string]string `json:"signals,omitempty"`

	// Entities are structured values bound in the text.
	Entities Entities `json:"entities"`

	// Candidates lists the plausible interpretations considered.  Populated
	// by the rule strategy; used verbatim in clarifying questions.
	Candidates []Candidate `json:"candidates,omitempty"`

	// Source records which strategy produced the result: "llm", "rules", or
	// "llm+override".
	Source string `json:"source"`

	// Band is the confidence band after policy application.
	Band Band `json:"band"`

	// AuditFlag marks mid-band results for lighter-weight review.
	AuditFlag bool `json:"audit_flag,omitempty"`

	// Clarification carries the synthesised clarifying question when
	// Band == BandLow.  The turn holds; no step advances.
	Clarification string `json:"clarification,omitempty"`
}

// Signal returns the named signal value ("" when absent).
func (r *Result) Signal(name string) string {
	if r.Signals == nil {
		return ""
	}
	return r.Signals[name]
}

// SignalSet reports whether the named signal is present and truthy.
func (r *Result) SignalSet(name string) bool {
	v := r.Signal(name)
	return v != "" && v != "false"
}

// Provider classifies a free-form client message.  Implementations must be
// safe for concurrent use and must honour ctx cancellation; the Hybrid
// imposes a bounded timeout and degrades to the rule path on failure.
type Provider interface {
	Classify(ctx context.Context, req Request) (*Result, error)
}
