package approvals

import (
	"context"
	"log/slog"
	"time"
)

// Notifier delivers a queued draft to the venue collaborators so somebody
// knows a decision is waiting.  Delivery failure never blocks the gate; the
// draft is already persisted and remains discoverable.
type Notifier interface {
	DraftQueued(ctx context.Context, d *Draft) error
}

// NopNotifier discards notifications.  Used in tests and when no webhook is
// configured.
type NopNotifier struct{}

func (NopNotifier) DraftQueued(context.Context, *Draft) error { return nil }

// Gate is the single entry point for queueing client-facing replies.  Every
// outbound draft passes through here; nothing is sent until a collaborator
// resolves it.
type Gate struct {
	store    *Store
	notifier Notifier
	ttl      time.Duration
}

// NewGate creates a Gate backed by the given draft Store.
// ttl controls how long a pending draft remains valid; pass 0 to use DefaultTTL.
func NewGate(store *Store, notifier Notifier, ttl time.Duration) *Gate {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Gate{store: store, notifier: notifier, ttl: ttl}
}

// Store returns the underlying draft Store.
func (g *Gate) Store() *Store {
	return g.store
}

// Enqueue holds a drafted reply for approval and notifies collaborators.
// A prior pending draft for the same booking is superseded.
func (g *Gate) Enqueue(ctx context.Context, bookingID string, step int, body string) (*Draft, error) {
	d, err := g.store.Create(ctx, bookingID, step, body, g.ttl)
	if err != nil {
		return nil, err
	}

	if err := g.notifier.DraftQueued(ctx, d); err != nil {
		slog.Warn("draft notification failed",
			"draft_id", d.ID,
			"booking_id", bookingID,
			"error", err,
		)
	}

	return d, nil
}

// CheckExpiry marks stale drafts as expired and returns the count.
// Called periodically from the maintenance scheduler.
func (g *Gate) CheckExpiry(ctx context.Context) (int64, error) {
	return g.store.ExpireStale(ctx)
}
