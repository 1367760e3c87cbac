// Package engine is the negotiation engine proper: it routes each inbound
// client message through classification, the pre-route pipeline, detour
// detection and the step state machine, and queues every client-facing
// reply at the approval gate.
//
// A turn is strictly serialised per booking (the session registry's record
// lock), so handlers never see concurrent mutations of the same record.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/venuedesk/venuedesk/common/textclean"
	"github.com/venuedesk/venuedesk/common/trace"
	"github.com/venuedesk/venuedesk/internal/venuedesk/approvals"
	"github.com/venuedesk/venuedesk/internal/venuedesk/booking"
	"github.com/venuedesk/venuedesk/internal/venuedesk/catalog"
	"github.com/venuedesk/venuedesk/internal/venuedesk/classify"
	"github.com/venuedesk/venuedesk/internal/venuedesk/detour"
	"github.com/venuedesk/venuedesk/internal/venuedesk/session"
	"github.com/venuedesk/venuedesk/internal/venuedesk/store"
)

// timeNow is a test seam.
var timeNow = time.Now

// maxStepChain caps how many steps a single message can progress through.
// The seven-step process never legitimately needs more than four in one
// turn.
const maxStepChain = 4

// Engine wires the classifier, catalog, detour router, store and approval
// gate into the message-processing entry point.
type Engine struct {
	store      *store.Store
	gate       *approvals.Gate
	classifier classify.Provider
	fallback   classify.Provider
	catalog    catalog.Catalog
	sessions   *session.Registry
	limiter    *classify.RateLimiter
}

// Options configures optional engine behaviour.
type Options struct {
	// Limiter caps classifier calls per sender; nil disables limiting.
	Limiter *classify.RateLimiter

	// Sessions overrides the session registry (defaults to a fresh one).
	Sessions *session.Registry
}

// New assembles an Engine.  classifier is the primary provider (normally the
// hybrid); fallback answers when the rate limiter blocks a sender and must
// be the deterministic rule path.
func New(st *store.Store, gate *approvals.Gate, classifier, fallback classify.Provider, cat catalog.Catalog, opts Options) *Engine {
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewRegistry(0)
	}
	return &Engine{
		store:      st,
		gate:       gate,
		classifier: classifier,
		fallback:   fallback,
		catalog:    cat,
		sessions:   sessions,
		limiter:    opts.Limiter,
	}
}

// Sessions exposes the registry for the maintenance sweeper.
func (e *Engine) Sessions() *session.Registry { return e.sessions }

// TurnResult is the outcome of processing one inbound message.
type TurnResult struct {
	// Reply is the text sent to the client this turn.  Empty while a draft
	// is held at the approval gate (the normal case) and filled only for
	// idempotent replays of an already-decided turn.
	Reply string `json:"reply,omitempty"`

	// DraftID identifies the draft queued for approval ("" when the turn
	// produced nothing to say).
	DraftID string `json:"draft_id,omitempty"`

	// Step is the booking's step after the turn.
	Step booking.Step `json:"step"`

	// Thread is the conversation state after the turn.
	Thread booking.ThreadState `json:"thread"`

	// Done is true when the booking reached its terminal state.
	Done bool `json:"done"`
}

// ProcessMessage runs one full turn for the booking.  It creates the record
// on first contact, so the caller only needs a stable booking ID per client
// thread.
func (e *Engine) ProcessMessage(ctx context.Context, bookingID, sender, message string) (*TurnResult, error) {
	if trace.FromContext(ctx) == "" {
		ctx = trace.WithTraceID(ctx, trace.GenerateID())
	}

	rec, release := e.sessions.Acquire(bookingID)
	defer release()

	b, err := e.store.GetBooking(ctx, bookingID)
	if errors.Is(err, store.ErrBookingNotFound) {
		b = booking.New(bookingID, sender)
		err = nil
	}
	if err != nil {
		return nil, err
	}

	e.audit(ctx, b.ID, store.AuditMessageReceived, map[string]any{
		"sender": sender,
		"bytes":  len(message),
		"step":   b.Step.String(),
	})

	if b.Completed() {
		e.audit(ctx, b.ID, store.AuditHalted, map[string]any{"reason": HaltAlreadyComplete})
		return &TurnResult{Step: b.Step, Thread: b.Thread, Done: true}, nil
	}

	res, err := e.classifyTurn(ctx, b, sender, message)
	if err != nil {
		return nil, fmt.Errorf("engine: classify booking %s: %w", b.ID, err)
	}
	e.audit(ctx, b.ID, store.AuditClassified, map[string]any{
		"intent":     res.Intent,
		"confidence": res.Confidence,
		"band":       res.Band,
		"source":     res.Source,
	})

	if suppressed := outOfContextGate(res, message); len(suppressed) > 0 {
		e.audit(ctx, b.ID, store.AuditHalted, map[string]any{
			"reason":     "out_of_context_suppressed",
			"suppressed": suppressed,
		})
	}

	// A resend of the last message replays the last verdict instead of
	// re-running the machine.  Comparison is whitespace-normalised so a
	// trailing newline or re-wrapped body still counts as the same message.
	normalized := normalizeMessage(message)
	if normalized != "" && normalized == rec.LastMessage {
		e.audit(ctx, b.ID, store.AuditHalted, map[string]any{"reason": HaltDuplicate})
		return &TurnResult{
			Reply:   rec.LastReply,
			DraftID: rec.LastDraftID,
			Step:    b.Step,
			Thread:  b.Thread,
			Done:    b.Completed(),
		}, nil
	}

	// First contact only captures; there is no decision to guess wrong, so
	// the low-confidence hold does not apply at intake.
	if res.Band == classify.BandLow && b.Step != booking.StepIntake {
		return e.holdForClarification(ctx, b, rec, message, res)
	}

	if res.Intent == classify.IntentEscalation {
		return e.holdForEscalation(ctx, b, rec, message)
	}

	if captured := shortcutCapture(b, res); len(captured) > 0 {
		e.audit(ctx, b.ID, store.AuditStepAdvanced, map[string]any{
			"note":     "shortcut_capture",
			"captured": captured,
		})
	}
	billingCaptured := captureBilling(b, res)

	t := &turn{b: b, res: res, cleaned: textclean.Strip(message)}

	outcome := detour.Detect(res, b)
	for _, def := range outcome.Deferred {
		b.PendingChanges = append(b.PendingChanges, def)
		e.audit(ctx, b.ID, store.AuditChangeDeferred, map[string]any{
			"kind":  def.Kind,
			"value": def.Value,
		})
	}
	if outcome.FastSkip {
		e.audit(ctx, b.ID, store.AuditFastSkip, map[string]any{"step": b.Step.String()})
		return e.finishTurn(ctx, b, rec, message, draftFastSkipAck(outcome.SkippedKind), false)
	}

	directive := outcome.Directive
	if directive == nil && len(b.PendingChanges) > 0 && !b.InDetour() {
		// The oldest change deferred on an earlier turn gets its own turn now.
		pc := b.PendingChanges[0]
		b.PendingChanges = b.PendingChanges[1:]
		if len(b.PendingChanges) == 0 {
			b.PendingChanges = nil
		}
		if target, ok := detour.TargetStep(pc.Kind); ok {
			directive = &detour.Directive{
				Kind:       pc.Kind,
				Value:      pc.Value,
				TargetStep: target,
				CallerStep: b.Step,
			}
			e.audit(ctx, b.ID, store.AuditChangeReplayed, map[string]any{
				"kind":  pc.Kind,
				"value": pc.Value,
			})
		}
	}

	if directive != nil {
		b.BeginDetour(directive.TargetStep)
		t.directive = directive
		e.audit(ctx, b.ID, store.AuditDetourStarted, map[string]any{
			"kind":        directive.Kind,
			"value":       directive.Value,
			"target_step": directive.TargetStep.String(),
			"caller_step": directive.CallerStep.String(),
		})
	}

	var replies []string
	done := false
	for i := 0; i < maxStepChain; i++ {
		out, err := e.runStep(ctx, t)
		if err != nil {
			return nil, err
		}
		if out.reply != "" {
			replies = append(replies, out.reply)
		}
		if out.halt != "" {
			e.audit(ctx, b.ID, store.AuditHalted, map[string]any{
				"reason": out.halt,
				"step":   b.Step.String(),
			})
			break
		}
		if out.done {
			done = true
			break
		}
		if !out.advance {
			break
		}

		if b.InDetour() {
			// The re-opened step completed; the round trip ends here even
			// when the detour had to re-open a second step along the way
			// (a date change that broke the room evaluation).
			caller := *b.CallerStep
			b.ReturnFromDetour()
			e.audit(ctx, b.ID, store.AuditDetourReturned, map[string]any{
				"caller_step": caller.String(),
			})
			break
		}

		prev := b.Step
		b.Step = b.Step.Next()
		e.audit(ctx, b.ID, store.AuditStepAdvanced, map[string]any{
			"from": prev.String(),
			"to":   b.Step.String(),
		})
		if out.await {
			break
		}
	}

	reply := strings.Join(replies, "\n\n")
	if reply == "" && billingCaptured {
		reply = "Thank you, we have recorded your invoicing details."
	}

	return e.finishTurn(ctx, b, rec, message, reply, done)
}

// finishTurn queues the reply draft, persists the booking, and updates the
// session caches.
func (e *Engine) finishTurn(ctx context.Context, b *booking.Booking, rec *session.Record, message, reply string, done bool) (*TurnResult, error) {
	var draftID string
	if reply != "" {
		d, err := e.gate.Enqueue(ctx, b.ID, int(b.Step), reply)
		if err != nil {
			return nil, fmt.Errorf("engine: queue draft for %s: %w", b.ID, err)
		}
		draftID = d.ID
		if b.Thread != booking.ThreadCompleted {
			b.Thread = booking.ThreadAwaitingApproval
		}
		e.audit(ctx, b.ID, store.AuditDraftQueued, map[string]any{
			"draft_id": draftID,
			"step":     b.Step.String(),
		})
	}

	if err := e.store.PutBooking(ctx, b); err != nil {
		return nil, err
	}

	rec.LastMessage = normalizeMessage(message)
	rec.LastReply = reply
	rec.LastDraftID = draftID

	return &TurnResult{
		DraftID: draftID,
		Step:    b.Step,
		Thread:  b.Thread,
		Done:    done || b.Completed(),
	}, nil
}

// holdForClarification queues the synthesised clarifying question instead of
// guessing.  Nothing on the booking moves.
func (e *Engine) holdForClarification(ctx context.Context, b *booking.Booking, rec *session.Record, message string, res *classify.Result) (*TurnResult, error) {
	e.audit(ctx, b.ID, store.AuditHalted, map[string]any{
		"reason":     HaltLowConfidence,
		"confidence": res.Confidence,
	})
	question := res.Clarification
	if question == "" {
		question = "Could you tell us a little more about what you would like to change?"
	}
	return e.finishTurn(ctx, b, rec, message, question, false)
}

// holdForEscalation marks the booking for manager attention and queues a
// human-sounding acknowledgement.
func (e *Engine) holdForEscalation(ctx context.Context, b *booking.Booking, rec *session.Record, message string) (*TurnResult, error) {
	b.ManagerRequested = true
	e.audit(ctx, b.ID, store.AuditHalted, map[string]any{"reason": "manager_requested"})
	return e.finishTurn(ctx, b, rec, message, draftEscalationAck(), false)
}

// normalizeMessage collapses all whitespace runs to single spaces for the
// duplicate-suppression comparison.
func normalizeMessage(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// audit writes a structured entry; audit failures are logged, never fatal.
func (e *Engine) audit(ctx context.Context, bookingID, kind string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	if err := e.store.AppendAudit(ctx, bookingID, kind, string(data)); err != nil {
		slog.Error("audit append failed",
			"booking_id", bookingID,
			"kind", kind,
			"error", err,
		)
	}
}
