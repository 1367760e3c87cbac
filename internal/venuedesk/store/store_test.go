package store_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/venuedesk/venuedesk/common/trace"
	"github.com/venuedesk/venuedesk/internal/venuedesk/booking"
	"github.com/venuedesk/venuedesk/internal/venuedesk/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	// Use a temp file that is cleaned up after the test
	f, err := os.CreateTemp(t.TempDir(), "venuedesk-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	s, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

// --- Bookings ---

func TestPutAndGetBooking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := booking.New("bk-001", "anna@example.com")
	b.EventDate = "2026-03-14"
	b.Headcount = 40
	b.Constraints = []string{"projector", "wheelchair access"}

	if err := s.PutBooking(ctx, b); err != nil {
		t.Fatalf("PutBooking: %v", err)
	}

	got, err := s.GetBooking(ctx, "bk-001")
	if err != nil {
		t.Fatalf("GetBooking: %v", err)
	}

	if got.ClientEmail != "anna@example.com" {
		t.Errorf("ClientEmail: got %q, want %q", got.ClientEmail, "anna@example.com")
	}
	if got.EventDate != "2026-03-14" {
		t.Errorf("EventDate: got %q, want %q", got.EventDate, "2026-03-14")
	}
	if got.Headcount != 40 {
		t.Errorf("Headcount: got %d, want 40", got.Headcount)
	}
	if got.Step != booking.StepIntake {
		t.Errorf("Step: got %v, want %v", got.Step, booking.StepIntake)
	}
	if len(got.Constraints) != 2 {
		t.Errorf("Constraints: got %v, want 2 entries", got.Constraints)
	}
}

func TestGetBookingNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetBooking(context.Background(), "bk-missing")
	if !errors.Is(err, store.ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
}

func TestPutBookingUpdatesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := booking.New("bk-002", "ben@example.com")
	if err := s.PutBooking(ctx, b); err != nil {
		t.Fatalf("PutBooking: %v", err)
	}

	b.Step = booking.StepOffer
	b.Thread = booking.ThreadAwaitingApproval
	caller := booking.StepOffer
	b.CallerStep = &caller
	if err := s.PutBooking(ctx, b); err != nil {
		t.Fatalf("PutBooking update: %v", err)
	}

	got, err := s.GetBooking(ctx, "bk-002")
	if err != nil {
		t.Fatalf("GetBooking: %v", err)
	}
	if got.Step != booking.StepOffer {
		t.Errorf("Step: got %v, want %v", got.Step, booking.StepOffer)
	}
	if got.Thread != booking.ThreadAwaitingApproval {
		t.Errorf("Thread: got %v, want %v", got.Thread, booking.ThreadAwaitingApproval)
	}
	if got.CallerStep == nil || *got.CallerStep != booking.StepOffer {
		t.Errorf("CallerStep: got %v, want %v", got.CallerStep, booking.StepOffer)
	}
}

func TestGetBookingByClient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	done := booking.New("bk-old", "carla@example.com")
	done.Thread = booking.ThreadCompleted
	if err := s.PutBooking(ctx, done); err != nil {
		t.Fatalf("PutBooking: %v", err)
	}

	open := booking.New("bk-open", "carla@example.com")
	if err := s.PutBooking(ctx, open); err != nil {
		t.Fatalf("PutBooking: %v", err)
	}

	got, err := s.GetBookingByClient(ctx, "carla@example.com")
	if err != nil {
		t.Fatalf("GetBookingByClient: %v", err)
	}
	if got.ID != "bk-open" {
		t.Errorf("expected the open booking, got %q", got.ID)
	}

	_, err = s.GetBookingByClient(ctx, "nobody@example.com")
	if !errors.Is(err, store.ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
}

func TestListBookingsByThreadState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := booking.New("bk-a", "a@example.com")
	b := booking.New("bk-b", "b@example.com")
	b.Thread = booking.ThreadAwaitingClient
	for _, rec := range []*booking.Booking{a, b} {
		if err := s.PutBooking(ctx, rec); err != nil {
			t.Fatalf("PutBooking: %v", err)
		}
	}

	all, err := s.ListBookings(ctx, "")
	if err != nil {
		t.Fatalf("ListBookings: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 bookings, got %d", len(all))
	}

	waiting, err := s.ListBookings(ctx, string(booking.ThreadAwaitingClient))
	if err != nil {
		t.Fatalf("ListBookings filtered: %v", err)
	}
	if len(waiting) != 1 || waiting[0].ID != "bk-b" {
		t.Fatalf("expected only bk-b, got %v", waiting)
	}
}

// --- Audit trail ---

func TestAuditSeqIsMonotonicPerBooking(t *testing.T) {
	s := newTestStore(t)
	ctx := trace.WithTraceID(context.Background(), "t_abc")

	for _, kind := range []string{store.AuditMessageReceived, store.AuditClassified, store.AuditStepAdvanced} {
		if err := s.AppendAudit(ctx, "bk-001", kind, `{}`); err != nil {
			t.Fatalf("AppendAudit(%s): %v", kind, err)
		}
	}
	// interleave a second booking; its sequence starts at 1 independently
	if err := s.AppendAudit(ctx, "bk-002", store.AuditMessageReceived, `{}`); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}

	entries, err := s.AuditByBooking(ctx, "bk-001")
	if err != nil {
		t.Fatalf("AuditByBooking: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d: seq got %d, want %d", i, e.Seq, i+1)
		}
		if e.TraceID != "t_abc" {
			t.Errorf("entry %d: trace got %q, want %q", i, e.TraceID, "t_abc")
		}
	}

	other, err := s.AuditByBooking(ctx, "bk-002")
	if err != nil {
		t.Fatalf("AuditByBooking: %v", err)
	}
	if len(other) != 1 || other[0].Seq != 1 {
		t.Fatalf("expected second booking to start at seq 1, got %v", other)
	}
}

func TestAuditByTrace(t *testing.T) {
	s := newTestStore(t)

	ctx1 := trace.WithTraceID(context.Background(), "t_one")
	ctx2 := trace.WithTraceID(context.Background(), "t_two")

	if err := s.AppendAudit(ctx1, "bk-001", store.AuditMessageReceived, `{}`); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	if err := s.AppendAudit(ctx1, "bk-001", store.AuditReplySent, `{}`); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	if err := s.AppendAudit(ctx2, "bk-001", store.AuditMessageReceived, `{}`); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}

	entries, err := s.AuditByTrace(context.Background(), "t_one")
	if err != nil {
		t.Fatalf("AuditByTrace: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for t_one, got %d", len(entries))
	}
	if entries[0].Kind != store.AuditMessageReceived || entries[1].Kind != store.AuditReplySent {
		t.Errorf("unexpected ordering: %q then %q", entries[0].Kind, entries[1].Kind)
	}
}
