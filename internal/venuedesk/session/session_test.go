package session_test

import (
	"sync"
	"testing"
	"time"

	"github.com/venuedesk/venuedesk/internal/venuedesk/session"
)

func TestAcquireCreatesAndReuses(t *testing.T) {
	reg := session.NewRegistry(time.Hour)

	rec, release := reg.Acquire("bk-001")
	rec.LastMessage = "hello"
	rec.LastReply = "hi there"
	release()

	again, release := reg.Acquire("bk-001")
	defer release()
	if again.LastMessage != "hello" || again.LastReply != "hi there" {
		t.Errorf("expected the same record back, got %+v", again)
	}
	if reg.Len() != 1 {
		t.Errorf("Len: got %d, want 1", reg.Len())
	}
}

func TestAcquireSerialisesSameBooking(t *testing.T) {
	reg := session.NewRegistry(time.Hour)

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	rec, release := reg.Acquire("bk-001")
	_ = rec

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, rel := reg.Acquire("bk-001")
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		rel()
	}()

	// The goroutine must block until we release.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	release()

	wg.Wait()
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("expected holder to finish first, got %v", order)
	}
}

func TestSweepDropsIdleSessions(t *testing.T) {
	reg := session.NewRegistry(time.Nanosecond)

	_, release := reg.Acquire("bk-old")
	release()

	time.Sleep(5 * time.Millisecond)

	removed := reg.Sweep()
	if removed != 1 {
		t.Errorf("Sweep: got %d removed, want 1", removed)
	}
	if reg.Len() != 0 {
		t.Errorf("Len after sweep: got %d, want 0", reg.Len())
	}
}

func TestSweepSkipsHeldSessions(t *testing.T) {
	reg := session.NewRegistry(time.Nanosecond)

	_, release := reg.Acquire("bk-busy")
	defer release()

	time.Sleep(5 * time.Millisecond)

	if removed := reg.Sweep(); removed != 0 {
		t.Errorf("Sweep removed a held session: %d", removed)
	}
	if reg.Len() != 1 {
		t.Errorf("Len: got %d, want 1", reg.Len())
	}
}
