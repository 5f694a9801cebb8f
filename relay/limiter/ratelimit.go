// Package limiter provides the per-account sliding-window rate limiter and
// the adaptive cooldown manager used by the routing resolver and the proxy
// failover loop. All state is process-local and resets on restart.
package limiter

import (
	"sync"
	"time"

	"github.com/NodeNestor/CodeGate/common/config"
)

// RateLimiter tracks request timestamps per account over a sliding window.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	window  time.Duration
	now     func() time.Time
}

// NewRateLimiter returns a limiter with the standard 60s window.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: make(map[string][]time.Time),
		window:  config.RateLimitWindow,
		now:     time.Now,
	}
}

// CheckAndRecord atomically prunes expired timestamps, compares the window
// count against limit, and records the request when admitted. Returns true
// when the request is rejected. A non-positive limit disables limiting.
func (r *RateLimiter) CheckAndRecord(accountID string, limit int) (rejected bool) {
	if limit <= 0 {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	kept := r.pruneLocked(accountID, now)
	if len(kept) >= limit {
		return true
	}
	r.windows[accountID] = append(kept, now)
	return false
}

// IsLimited reports whether the account is currently at its limit without
// consuming a slot. Used to pre-filter routing candidates.
func (r *RateLimiter) IsLimited(accountID string, limit int) bool {
	if limit <= 0 {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.pruneLocked(accountID, r.now())
	return len(kept) >= limit
}

// Clear drops the window for an account. Callers invoke this when the account
// is deleted.
func (r *RateLimiter) Clear(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.windows, accountID)
}

func (r *RateLimiter) pruneLocked(accountID string, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	stamps := r.windows[accountID]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 && len(stamps) > 0 {
		delete(r.windows, accountID)
		return nil
	}
	r.windows[accountID] = kept
	return kept
}
