package classify_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/venuedesk/venuedesk/internal/venuedesk/classify"
)

// stubProvider returns a canned result or error, standing in for the LLM.
type stubProvider struct {
	result *classify.Result
	err    error
}

func (s *stubProvider) Classify(ctx context.Context, req classify.Request) (*classify.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := *s.result
	return &out, nil
}

// slowProvider blocks until its context is cancelled.
type slowProvider struct{}

func (s *slowProvider) Classify(ctx context.Context, req classify.Request) (*classify.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newHybrid(llm classify.Provider) *classify.Hybrid {
	return classify.NewHybrid(llm, newTestRules(), classify.Thresholds{}, 50*time.Millisecond)
}

func TestHybrid_HighConfidencePassesThrough(t *testing.T) {
	llm := &stubProvider{result: &classify.Result{
		Intent:     classify.IntentConfirmation,
		Confidence: 0.93,
	}}

	res, err := newHybrid(llm).Classify(context.Background(), classify.Request{
		Message: "Yes, all confirmed from our side.",
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if res.Intent != classify.IntentConfirmation {
		t.Errorf("intent = %q", res.Intent)
	}
	if res.Band != classify.BandHigh {
		t.Errorf("band = %q, want high", res.Band)
	}
	if res.AuditFlag {
		t.Error("high band must not set the audit flag")
	}
}

func TestHybrid_MidBandSetsAuditFlag(t *testing.T) {
	llm := &stubProvider{result: &classify.Result{
		Intent:     classify.IntentCounterOffer,
		Confidence: 0.6,
	}}

	res, err := newHybrid(llm).Classify(context.Background(), classify.Request{
		Message: "Hmm, the price seems high.",
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if res.Band != classify.BandMid {
		t.Errorf("band = %q, want mid", res.Band)
	}
	if !res.AuditFlag {
		t.Error("mid band must set the audit flag")
	}
}

func TestHybrid_LowConfidenceAsksInsteadOfGuessing(t *testing.T) {
	llm := &stubProvider{result: &classify.Result{
		Intent:     classify.IntentConfirmation,
		Confidence: 0.2,
	}}

	res, err := newHybrid(llm).Classify(context.Background(), classify.Request{
		Message: "ok",
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if res.Band != classify.BandLow {
		t.Errorf("band = %q, want low", res.Band)
	}
	if res.Clarification == "" {
		t.Error("low band must synthesise a clarifying question")
	}
}

func TestHybrid_ProviderErrorFallsBackToRules(t *testing.T) {
	llm := &stubProvider{err: errors.New("upstream unavailable")}

	res, err := newHybrid(llm).Classify(context.Background(), classify.Request{
		Message:       "Actually, let's do 2025-12-20 instead.",
		ConfirmedDate: "2025-12-10",
		KnownRoomNames: testRooms,
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if res.Source != "rules" {
		t.Errorf("source = %q, want rules", res.Source)
	}
	// Fallback confidence is capped at the mid threshold: the engine may act,
	// but never boldly, on a degraded classification.
	if res.Confidence > classify.DefaultMidConfidence {
		t.Errorf("fallback confidence %.2f exceeds mid threshold", res.Confidence)
	}
	if res.Intent != classify.IntentStructuralChange {
		t.Errorf("intent = %q, want structural_change from the rule path", res.Intent)
	}
}

func TestHybrid_ProviderTimeoutFallsBackToRules(t *testing.T) {
	res, err := newHybrid(&slowProvider{}).Classify(context.Background(), classify.Request{
		Message: "I would like to speak to your manager.",
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if res.Source != "rules" {
		t.Errorf("source = %q, want rules after timeout", res.Source)
	}
	if res.Intent != classify.IntentEscalation {
		t.Errorf("intent = %q, want escalation_request", res.Intent)
	}
}

func TestHybrid_GuardedRoomOverride(t *testing.T) {
	// The LLM labels "Garden Hall looks good" as plain acceptance; the
	// override corrects it while a room decision is pending.
	llm := &stubProvider{result: &classify.Result{
		Intent:     classify.IntentConfirmation,
		Confidence: 0.9,
		Entities:   classify.Entities{RoomID: "garden-hall"},
	}}

	res, err := newHybrid(llm).Classify(context.Background(), classify.Request{
		Message:              "The Garden Hall looks good to us.",
		AwaitingRoomDecision: true,
		KnownRoomNames:       testRooms,
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if res.Intent != classify.IntentStructuralChange {
		t.Errorf("intent = %q, want structural_change via override", res.Intent)
	}
	if res.Source != "llm+override" {
		t.Errorf("source = %q, want llm+override", res.Source)
	}
}

func TestHybrid_HypotheticalOverride(t *testing.T) {
	llm := &stubProvider{result: &classify.Result{
		Intent:     classify.IntentStructuralChange,
		Confidence: 0.85,
		Entities:   classify.Entities{Date: "2025-12-20"},
	}}

	res, err := newHybrid(llm).Classify(context.Background(), classify.Request{
		Message:       "What if we moved it to 2025-12-20, just wondering?",
		ConfirmedDate: "2025-12-10",
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if res.Intent != classify.IntentGeneralQuestion {
		t.Errorf("intent = %q, want general_question", res.Intent)
	}
	if res.Signal(classify.SignalChangeMarker) != "" {
		t.Error("hypothetical override must clear the change marker")
	}
}

func TestHybrid_RulesFillMissingEntities(t *testing.T) {
	llm := &stubProvider{result: &classify.Result{
		Intent:     classify.IntentStructuralChange,
		Confidence: 0.9,
		Signals:    map[string]string{classify.SignalChangeMarker: "date"},
	}}

	res, err := newHybrid(llm).Classify(context.Background(), classify.Request{
		Message:       "Please change the date to 2025-12-20.",
		ConfirmedDate: "2025-12-10",
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if res.Entities.Date != "2025-12-20" {
		t.Errorf("rule-extracted date not merged: %q", res.Entities.Date)
	}
}

func TestClarifyingQuestionEnumeratesCandidates(t *testing.T) {
	res, err := newHybrid(nil).Classify(context.Background(), classify.Request{
		Message: "We have 30 people and 2025-12-20 in mind.",
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if res.Band != classify.BandLow {
		t.Fatalf("band = %q, want low for entity-only statement", res.Band)
	}
	if !strings.Contains(res.Clarification, "1.") {
		t.Errorf("clarification does not enumerate interpretations: %q", res.Clarification)
	}
}
