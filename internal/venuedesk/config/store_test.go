package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/venuedesk/venuedesk/internal/venuedesk/config"
	appstore "github.com/venuedesk/venuedesk/internal/venuedesk/store"
)

// newTestStore creates a temporary SQLite database and returns a config.Store
// backed by it.  The database (and its file) are cleaned up when the test ends.
func newTestStore(t *testing.T) config.Store {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "venuedesk-config-test-*.db")
	if err != nil {
		t.Fatalf("create temp db file: %v", err)
	}
	f.Close()

	s, err := appstore.New(f.Name())
	if err != nil {
		t.Fatalf("appstore.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return config.New(s)
}

// TestGetNotFound verifies that Get returns ErrNotFound for an absent key.
func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing.key")
	if !errors.Is(err, config.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

// TestSetAndGet verifies the basic write-then-read round-trip.
func TestSetAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "classify.model", "gpt-4o"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := store.Get(ctx, "classify.model")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "gpt-4o" {
		t.Errorf("got %q, want %q", got, "gpt-4o")
	}
}

// TestSetOverwrite verifies that a second Set replaces the previous value.
func TestSetOverwrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "classify.model", "gpt-4o-mini"); err != nil {
		t.Fatalf("Set(1): %v", err)
	}
	if err := store.Set(ctx, "classify.model", "gpt-4o"); err != nil {
		t.Fatalf("Set(2): %v", err)
	}

	got, err := store.Get(ctx, "classify.model")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "gpt-4o" {
		t.Errorf("got %q, want %q", got, "gpt-4o")
	}
}

// TestDeleteIsIdempotent verifies Delete succeeds for present and absent keys.
func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, config.KeyRateLimit, "30"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Delete(ctx, config.KeyRateLimit); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, config.KeyRateLimit); err != nil {
		t.Fatalf("Delete(2): %v", err)
	}

	_, err := store.Get(ctx, config.KeyRateLimit)
	if !errors.Is(err, config.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got: %v", err)
	}
}

// TestList returns all pairs.
func TestList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pairs := map[string]string{
		config.KeyHighConfidence: "0.85",
		config.KeyMidConfidence:  "0.55",
		config.KeyRateLimit:      "30",
	}
	for k, v := range pairs {
		if err := store.Set(ctx, k, v); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}

	got, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != len(pairs) {
		t.Fatalf("List: got %d entries, want %d", len(got), len(pairs))
	}
	for k, v := range pairs {
		if got[k] != v {
			t.Errorf("List[%s]: got %q, want %q", k, got[k], v)
		}
	}
}

// TestTypedAccessors verifies the parse-or-default helpers.
func TestTypedAccessors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, config.KeyHighConfidence, "0.9"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, config.KeyRateLimit, "30"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, config.KeySessionTTL, "45m"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, "bad.float", "not-a-number"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if got := store.FloatOr(ctx, config.KeyHighConfidence, 0.8); got != 0.9 {
		t.Errorf("FloatOr: got %v, want 0.9", got)
	}
	if got := store.FloatOr(ctx, "bad.float", 0.8); got != 0.8 {
		t.Errorf("FloatOr unparsable: got %v, want default", got)
	}
	if got := store.FloatOr(ctx, "absent", 0.5); got != 0.5 {
		t.Errorf("FloatOr absent: got %v, want default", got)
	}
	if got := store.IntOr(ctx, config.KeyRateLimit, 20); got != 30 {
		t.Errorf("IntOr: got %v, want 30", got)
	}
	if got := store.DurationOr(ctx, config.KeySessionTTL, time.Hour); got != 45*time.Minute {
		t.Errorf("DurationOr: got %v, want 45m", got)
	}
	if got := store.DurationOr(ctx, "absent", time.Hour); got != time.Hour {
		t.Errorf("DurationOr absent: got %v, want default", got)
	}
}
