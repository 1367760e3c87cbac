package app_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/venuedesk/venuedesk/internal/venuedesk/app"
	"github.com/venuedesk/venuedesk/internal/venuedesk/approvals"
	"github.com/venuedesk/venuedesk/internal/venuedesk/catalog"
	"github.com/venuedesk/venuedesk/internal/venuedesk/classify"
	"github.com/venuedesk/venuedesk/internal/venuedesk/engine"
	"github.com/venuedesk/venuedesk/internal/venuedesk/store"
)

const testCatalogYAML = `
rooms:
  - id: garden-hall
    name: Garden Hall
    capacity: 120
    daily_rate: 1800
products: []
`

func newTestServer(t *testing.T) *app.Server {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "venuedesk-app-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	st, err := store.New(f.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cat, err := catalog.Load([]byte(testCatalogYAML))
	if err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}

	gate := approvals.NewGate(approvals.NewStore(st.DB()), approvals.NopNotifier{}, 0)
	classifier := classify.NewHybrid(nil, classify.NewRules(), classify.Thresholds{}, 0)
	eng := engine.New(st, gate, classifier, classifier, cat, engine.Options{})

	return app.NewServer("127.0.0.1:0", eng, st, gate)
}

func doJSON(t *testing.T, srv *app.Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response for %s %s: %v", method, path, err)
		}
	}
	return w, resp
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)

	w, resp := doJSON(t, srv, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
}

func TestServer_Status(t *testing.T) {
	srv := newTestServer(t)

	w, resp := doJSON(t, srv, http.MethodGet, "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
	if int(resp["open_bookings"].(float64)) != 0 {
		t.Errorf("expected 0 open bookings, got %v", resp["open_bookings"])
	}
}

func TestServer_MessageRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	w, resp := doJSON(t, srv, http.MethodPost, "/messages",
		`{"booking_id":"bk-http","sender":"anna@example.com","message":"Hello, we would like to host a dinner on 2026-03-14 for 40 guests."}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", w.Code, resp)
	}
	draftID, _ := resp["draft_id"].(string)
	if draftID == "" {
		t.Fatalf("expected a draft_id in the response, got %v", resp)
	}

	// The pending draft is visible on the booking.
	w, resp = doJSON(t, srv, http.MethodGet, "/bookings/bk-http/draft", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for pending draft, got %d", w.Code)
	}
	if resp["id"] != draftID {
		t.Errorf("pending draft id: got %v, want %s", resp["id"], draftID)
	}

	// Approving the draft releases the reply text.
	w, resp = doJSON(t, srv, http.MethodPost, "/drafts/"+draftID+"/approve",
		`{"decided_by":"manager@venue.example"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for approval, got %d: %v", w.Code, resp)
	}
	if text, _ := resp["send_text"].(string); text == "" {
		t.Error("expected send_text after approval")
	}

	// A second decision on the same draft conflicts.
	w, _ = doJSON(t, srv, http.MethodPost, "/drafts/"+draftID+"/approve",
		`{"decided_by":"manager@venue.example"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for a double decision, got %d", w.Code)
	}
}

func TestServer_Validation(t *testing.T) {
	srv := newTestServer(t)

	w, _ := doJSON(t, srv, http.MethodPost, "/messages", `{"sender":"a@b.c"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing booking_id: expected 400, got %d", w.Code)
	}

	w, _ = doJSON(t, srv, http.MethodPost, "/messages", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: expected 400, got %d", w.Code)
	}

	w, _ = doJSON(t, srv, http.MethodPost, "/drafts/nope/approve", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing decided_by: expected 400, got %d", w.Code)
	}

	w, _ = doJSON(t, srv, http.MethodPost, "/drafts/nope/approve", `{"decided_by":"m"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown draft: expected 404, got %d", w.Code)
	}

	w, _ = doJSON(t, srv, http.MethodGet, "/bookings/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown booking: expected 404, got %d", w.Code)
	}
}

func TestServer_AuditTrail(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, srv, http.MethodPost, "/messages",
		`{"booking_id":"bk-audit","sender":"anna@example.com","message":"Hello, we need a room on 2026-03-14 for 40 people."}`)

	req := httptest.NewRequest(http.MethodGet, "/bookings/bk-audit/audit", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var entries []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("decode audit entries: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected audit entries")
	}
	if entries[0]["kind"] != "message_received" {
		t.Errorf("first entry kind: got %v, want message_received", entries[0]["kind"])
	}
}
