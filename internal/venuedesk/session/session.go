// Package session tracks per-booking conversation state that does not
// belong in the database: the per-record lock that serialises turns, the
// last processed message and reply for duplicate suppression, and the
// cached classification for the current turn.
//
// Each booking gets its own record with its own mutex, so concurrent
// messages for different bookings proceed in parallel while messages for
// the same booking are strictly ordered.
package session

import (
	"sync"
	"time"
)

// DefaultIdleTTL is how long an untouched session survives before the
// sweeper drops it.  Sessions hold only caches; dropping one loses nothing
// durable.
const DefaultIdleTTL = 1 * time.Hour

// Record is the in-memory session for one booking.  Callers must hold the
// record's lock (via Registry.Acquire) while reading or writing its fields.
type Record struct {
	mu sync.Mutex

	// LastMessage is the whitespace-normalised text of the last message
	// processed for this booking, compared for duplicate suppression.
	LastMessage string

	// LastReply is the reply produced for LastMessage, replayed when the
	// same message arrives again.
	LastReply string

	// LastDraftID is the draft queued for LastMessage, if any.
	LastDraftID string

	touched time.Time
}

// Registry holds the session records, keyed by booking ID.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record
	idleTTL time.Duration
	now     func() time.Time
}

// NewRegistry creates a Registry.  idleTTL controls how long an untouched
// session survives; pass 0 to use DefaultIdleTTL.
func NewRegistry(idleTTL time.Duration) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Registry{
		records: make(map[string]*Record),
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// Acquire returns the session record for the booking with its lock held,
// creating it on first use.  The caller must call release exactly once when
// the turn is finished.
func (r *Registry) Acquire(bookingID string) (rec *Record, release func()) {
	r.mu.Lock()
	rec, ok := r.records[bookingID]
	if !ok {
		rec = &Record{}
		r.records[bookingID] = rec
	}
	rec.touched = r.now()
	r.mu.Unlock()

	rec.mu.Lock()
	return rec, rec.mu.Unlock
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Sweep drops sessions idle for longer than the TTL and returns the number
// removed.  Called periodically from the maintenance scheduler.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, rec := range r.records {
		// Skip records currently mid-turn.
		if !rec.mu.TryLock() {
			continue
		}
		idle := rec.touched.Before(cutoff)
		rec.mu.Unlock()

		if idle {
			delete(r.records, id)
			removed++
		}
	}
	return removed
}
