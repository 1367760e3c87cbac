// Package approvals implements the human approval workflow for outbound
// replies.  Every client-facing draft produced by the negotiation engine is
// held as a pending Draft in the database; a venue collaborator then
// approves, edits, or rejects it.  Approval is the only path to the send
// side effect.
package approvals

import (
	"time"
)

// Decision represents the lifecycle state of a pending draft.
type Decision string

const (
	DecisionPending    Decision = "pending"
	DecisionApproved   Decision = "approved"
	DecisionEdited     Decision = "edited"
	DecisionRejected   Decision = "rejected"
	DecisionSuperseded Decision = "superseded"
	DecisionExpired    Decision = "expired"
)

// DefaultTTL is the default time-to-live for a pending draft.
const DefaultTTL = 48 * time.Hour

// Draft represents a pending (or resolved) outbound reply awaiting a
// collaborator decision.
type Draft struct {
	// ID is a random identifier used in decision endpoints.
	ID string `json:"id"`

	// BookingID links the draft to the suspended booking.
	BookingID string `json:"booking_id"`

	// Step is the state machine step the draft was produced at.
	Step int `json:"step"`

	// Body is the reply text exactly as the engine drafted it.
	Body string `json:"body"`

	// Decision is the current lifecycle state.
	Decision Decision `json:"decision"`

	// EditedBody holds the collaborator's replacement text when the
	// decision is "edited".
	EditedBody *string `json:"edited_body,omitempty"`

	// DecidedBy identifies the collaborator who resolved the draft (if any).
	DecidedBy *string `json:"decided_by,omitempty"`

	// DecideReason is the optional reason given on rejection.
	DecideReason *string `json:"decide_reason,omitempty"`

	// CreatedAt is when the draft was queued.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the draft automatically expires if not actioned.
	ExpiresAt time.Time `json:"expires_at"`

	// DecidedAt is set when the draft is approved, edited, rejected or
	// superseded.
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// IsExpired returns true if the draft has passed its deadline and has not
// already been resolved.
func (d *Draft) IsExpired() bool {
	return d.Decision == DecisionPending && time.Now().After(d.ExpiresAt)
}

// FinalBody returns the text that should actually be sent: the edited
// replacement when present, otherwise the original body.
func (d *Draft) FinalBody() string {
	if d.EditedBody != nil && *d.EditedBody != "" {
		return *d.EditedBody
	}
	return d.Body
}
