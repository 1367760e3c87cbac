package environment_test

import (
	"testing"
	"time"

	"github.com/venuedesk/venuedesk/common/environment"
)

func TestStringOr(t *testing.T) {
	t.Setenv("VD_TEST_ADDR", ":9090")
	if got := environment.StringOr("VD_TEST_ADDR", ":8080"); got != ":9090" {
		t.Errorf("expected %q, got %q", ":9090", got)
	}
	if got := environment.StringOr("VD_TEST_ADDR_MISSING", ":8080"); got != ":8080" {
		t.Errorf("expected %q, got %q", ":8080", got)
	}
}

func TestRequiredString(t *testing.T) {
	t.Setenv("VD_TEST_CATALOG", "catalog.yaml")
	v, err := environment.RequiredString("VD_TEST_CATALOG")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "catalog.yaml" {
		t.Errorf("expected %q, got %q", "catalog.yaml", v)
	}

	_, err = environment.RequiredString("VD_TEST_CATALOG_MISSING")
	if err == nil {
		t.Error("expected error for missing variable, got nil")
	}
}

func TestBoolOr(t *testing.T) {
	t.Setenv("VD_TEST_BOOL", "true")
	if !environment.BoolOr("VD_TEST_BOOL", false) {
		t.Error("expected true")
	}
	t.Setenv("VD_TEST_BOOL", "0")
	if environment.BoolOr("VD_TEST_BOOL", true) {
		t.Error("expected false")
	}
	if !environment.BoolOr("VD_TEST_BOOL_MISSING", true) {
		t.Error("expected default true")
	}
}

func TestIntOr(t *testing.T) {
	t.Setenv("VD_TEST_RATE", "30")
	if got := environment.IntOr("VD_TEST_RATE", 0); got != 30 {
		t.Errorf("expected 30, got %d", got)
	}
	if got := environment.IntOr("VD_TEST_RATE_MISSING", 60); got != 60 {
		t.Errorf("expected 60, got %d", got)
	}
	t.Setenv("VD_TEST_RATE_BAD", "plenty")
	if got := environment.IntOr("VD_TEST_RATE_BAD", 7); got != 7 {
		t.Errorf("expected default 7 for bad value, got %d", got)
	}
}

func TestDurationOr(t *testing.T) {
	t.Setenv("VD_TEST_TTL", "30s")
	if got := environment.DurationOr("VD_TEST_TTL", time.Minute); got != 30*time.Second {
		t.Errorf("expected 30s, got %v", got)
	}
	if got := environment.DurationOr("VD_TEST_TTL_MISSING", time.Minute); got != time.Minute {
		t.Errorf("expected 1m, got %v", got)
	}
}

func TestStringSliceOr(t *testing.T) {
	t.Setenv("VD_TEST_LIST", "garden-hall, atelier , loft")
	got := environment.StringSliceOr("VD_TEST_LIST", nil)
	if len(got) != 3 || got[0] != "garden-hall" || got[1] != "atelier" || got[2] != "loft" {
		t.Errorf("unexpected result: %v", got)
	}
	fallback := []string{"garden-hall"}
	if got := environment.StringSliceOr("VD_TEST_LIST_MISSING", fallback); len(got) != 1 || got[0] != "garden-hall" {
		t.Errorf("expected fallback, got %v", got)
	}
}
