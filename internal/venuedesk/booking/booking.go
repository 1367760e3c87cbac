// Package booking defines the typed process record for one client engagement
// and the step/state enums the routing engine operates on.
//
// The record deliberately replaces the dictionary-shaped conversation state of
// earlier prototypes: every field the pipeline reads or writes is a typed
// struct member, so the caller-step nullability rule and the fingerprint
// invariants can be checked in code instead of by convention.
package booking

import (
	"fmt"
	"time"
)

// Step is one of the seven ordered negotiation steps.
type Step int

const (
	StepIntake Step = iota + 1
	StepDateConfirmation
	StepRoomAvailability
	StepOffer
	StepNegotiation
	StepTransitionCheckpoint
	StepConfirmation
)

// stepNames maps steps to their audit/log labels.
var stepNames = map[Step]string{
	StepIntake:               "intake",
	StepDateConfirmation:     "date_confirmation",
	StepRoomAvailability:     "room_availability",
	StepOffer:                "offer",
	StepNegotiation:          "negotiation",
	StepTransitionCheckpoint: "transition_checkpoint",
	StepConfirmation:         "confirmation",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Valid reports whether s is one of the seven defined steps.
func (s Step) Valid() bool {
	return s >= StepIntake && s <= StepConfirmation
}

// Next returns the step after s.  Calling Next on the terminal step returns
// the terminal step unchanged.
func (s Step) Next() Step {
	if s >= StepConfirmation {
		return StepConfirmation
	}
	return s + 1
}

// ThreadState describes who the conversation is currently waiting on.
type ThreadState string

const (
	ThreadInProgress       ThreadState = "in_progress"
	ThreadAwaitingClient   ThreadState = "awaiting_client"
	ThreadAwaitingApproval ThreadState = "awaiting_approval"
	ThreadCompleted        ThreadState = "completed"
)

// ChangeKind identifies which locked decision a structural change targets.
type ChangeKind string

const (
	ChangeDate         ChangeKind = "date"
	ChangeRoom         ChangeKind = "room"
	ChangeRequirements ChangeKind = "requirements"
	ChangeProducts     ChangeKind = "products"
	// ChangeBilling never causes a detour; billing is captured in place
	// regardless of the current step.
	ChangeBilling ChangeKind = "billing"
)

// QueuedChange is a structural change that lost the priority decision when
// several changes arrived in one message.  It is replayed on a later turn
// rather than dropped.
type QueuedChange struct {
	Kind  ChangeKind `json:"kind"`
	Value string     `json:"value"`
}

// OfferStatus is the lifecycle state of the composed offer.
type OfferStatus string

const (
	OfferNone      OfferStatus = "none"
	OfferDrafted   OfferStatus = "drafted"
	OfferSent      OfferStatus = "sent"
	OfferCountered OfferStatus = "countered"
	OfferAccepted  OfferStatus = "accepted"
	OfferDeclined  OfferStatus = "declined"
)

// DepositState tracks the deposit requested at the transition checkpoint.
type DepositState string

const (
	DepositNone      DepositState = "none"
	DepositRequested DepositState = "requested"
	DepositReceived  DepositState = "received"
	DepositWaived    DepositState = "waived"
)

// Billing holds the invoicing fields captured anytime during the process.
type Billing struct {
	Company string `json:"company,omitempty"`
	Address string `json:"address,omitempty"`
	TaxID   string `json:"tax_id,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Complete reports whether the fields required for invoicing are present.
func (b Billing) Complete() bool {
	return b.Company != "" && b.Address != ""
}

// Booking is the process record for one client engagement.
//
// Invariants maintained by the engine:
//   - CallerStep is non-nil only while a detour is in flight and is cleared
//     exactly once control returns to it.
//   - RoomEvalFingerprint equals the digest of (RoomID, RequirementsFingerprint)
//     whenever the locked room is still considered valid; a mismatch forces
//     re-evaluation of room availability.
type Booking struct {
	ID          string `json:"id"`
	ClientEmail string `json:"client_email"`
	ClientName  string `json:"client_name,omitempty"`

	Step       Step  `json:"step"`
	CallerStep *Step `json:"caller_step,omitempty"`

	EventDate     string   `json:"event_date,omitempty"` // ISO 8601 date
	DateConfirmed bool     `json:"date_confirmed"`
	Headcount     int      `json:"headcount,omitempty"`
	Constraints   []string `json:"constraints,omitempty"`

	RoomID                  string `json:"room_id,omitempty"`
	RoomEvalFingerprint     string `json:"room_eval_fingerprint,omitempty"`
	RequirementsFingerprint string `json:"requirements_fingerprint,omitempty"`

	Products     []string    `json:"products,omitempty"`
	OfferID      string      `json:"offer_id,omitempty"`
	OfferVersion int         `json:"offer_version,omitempty"`
	OfferStatus  OfferStatus `json:"offer_status"`

	Billing Billing      `json:"billing"`
	Deposit DepositState `json:"deposit"`

	Thread ThreadState `json:"thread"`

	// PendingChanges queues the structural changes deferred by the priority
	// decision when one message carried more than one change.  Replayed in
	// order, one per turn; never silently dropped.
	PendingChanges []QueuedChange `json:"pending_changes,omitempty"`

	// ManagerRequested is set when the client asks for a human manager; it
	// flags the record for operator attention in the approval queue.
	ManagerRequested bool `json:"manager_requested"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns a fresh intake-stage booking for the given client address.
func New(id, clientEmail string) *Booking {
	now := time.Now().UTC()
	return &Booking{
		ID:          id,
		ClientEmail: clientEmail,
		Step:        StepIntake,
		OfferStatus: OfferNone,
		Deposit:     DepositNone,
		Thread:      ThreadInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// BeginDetour records the current step as the caller and moves to target.
// It is a no-op when the booking is already at target.
func (b *Booking) BeginDetour(target Step) {
	if b.Step == target {
		return
	}
	caller := b.Step
	b.CallerStep = &caller
	b.Step = target
}

// ReturnFromDetour moves control back to the caller step and clears it.
// Returns false when no detour is in flight.
func (b *Booking) ReturnFromDetour() bool {
	if b.CallerStep == nil {
		return false
	}
	b.Step = *b.CallerStep
	b.CallerStep = nil
	return true
}

// InDetour reports whether a detour is currently in flight.
func (b *Booking) InDetour() bool {
	return b.CallerStep != nil
}

// Completed reports whether the terminal step has finished.
func (b *Booking) Completed() bool {
	return b.Step == StepConfirmation && b.Thread == ThreadCompleted
}
