package classify

import (
	"sync"
	"time"
)

const (
	// DefaultRateLimit is the maximum number of classification calls allowed
	// per sender per minute when no explicit limit is configured.
	DefaultRateLimit = 20

	// defaultRateLimitWindow is the sliding window duration.
	defaultRateLimitWindow = time.Minute
)

// RateLimiter enforces a per-sender sliding-window limit on classification
// calls so a mail loop or a flood from one address cannot exhaust the LLM
// budget.  Stale entries are pruned on every Allow call, keeping memory
// bounded to O(limit) per active sender.
//
// RateLimiter is safe for concurrent use from multiple goroutines.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	counters map[string][]time.Time // sender → call timestamps in window
}

// NewRateLimiter returns a RateLimiter that allows at most limit calls per
// sender within window.  Non-positive arguments take the defaults.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		counters: make(map[string][]time.Time),
	}
}

// Allow reports whether the sender may make another classification call and
// records the current timestamp when it may.
func (r *RateLimiter) Allow(sender string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	recent := r.counters[sender][:0]
	for _, ts := range r.counters[sender] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= r.limit {
		r.counters[sender] = recent
		return false
	}

	r.counters[sender] = append(recent, now)
	return true
}
