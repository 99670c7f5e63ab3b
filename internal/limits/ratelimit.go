// Package limits provides the process-local admission-control primitives used
// by the debate orchestrator: a per-tenant sliding-window rate limiter, a
// bounded-concurrency request queue, and a per-debate lock manager.
//
// All three are safe for concurrent use and are constructed once at process
// start, then injected into the service layer. None of them owns domain data;
// they hand out admission decisions and mutual-exclusion tickets only.
//
// Notes:
//   - These primitives are process-local. For horizontally scaled
//     deployments, prefer a distributed limiter/lock (e.g. Redis-backed) to
//     enforce global bounds.
package limits

import (
	"sync"
	"time"
)

// tenantWindow holds one tenant's recent request timestamps and the last
// time the tenant was seen, used to evict idle entries.
type tenantWindow struct {
	stamps   []time.Time
	lastSeen time.Time
}

// RateLimiter implements per-tenant sliding-window admission control.
//
// Each tenant keeps a list of accepted-request timestamps. On every Allow
// call, timestamps older than the window are dropped and the request is
// admitted iff fewer than the maximum remain; admission appends the current
// timestamp. Rejection has no side effects, so a rejected caller that
// retries after the window drains is admitted again.
//
// Idle tenants are evicted opportunistically after a threshold of lookups so
// the internal map stays bounded.
type RateLimiter struct {
	maxRequests int
	window      time.Duration

	mu      sync.Mutex
	tenants map[string]*tenantWindow

	idleTTL  time.Duration
	lookups  uint64
	nowFn    func() time.Time // test seam
}

// NewRateLimiter constructs a RateLimiter admitting at most maxRequests per
// tenant within any sliding window of the given length.
//
// maxRequests <= 0 is coerced to 1; window <= 0 is coerced to one minute.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		tenants:     make(map[string]*tenantWindow),
		idleTTL:     10 * time.Minute,
		nowFn:       time.Now,
	}
}

// Allow reports whether a request for tenant is admitted right now.
//
// A timestamp t is still inside the window iff now-t < window, so a request
// made exactly window ago no longer counts against the tenant.
func (rl *RateLimiter) Allow(tenant string) bool {
	now := rl.nowFn()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Opportunistic cleanup of idle tenants after a threshold of lookups.
	// Run it BEFORE touching the requested tenant so a stale entry can be
	// evicted even when it is the one being fetched.
	rl.lookups++
	if rl.lookups >= 5000 {
		for k, tw := range rl.tenants {
			if now.Sub(tw.lastSeen) >= rl.idleTTL {
				delete(rl.tenants, k)
			}
		}
		rl.lookups = 0
	}

	tw, ok := rl.tenants[tenant]
	if !ok {
		tw = &tenantWindow{}
		rl.tenants[tenant] = tw
	}
	tw.lastSeen = now

	// Drop timestamps that have aged out of the window.
	kept := tw.stamps[:0]
	for _, t := range tw.stamps {
		if now.Sub(t) < rl.window {
			kept = append(kept, t)
		}
	}
	tw.stamps = kept

	if len(tw.stamps) >= rl.maxRequests {
		return false
	}
	tw.stamps = append(tw.stamps, now)
	return true
}

// InFlight returns the number of timestamps currently counted against the
// tenant. Exposed for observability and tests; it does not mutate state.
func (rl *RateLimiter) InFlight(tenant string) int {
	now := rl.nowFn()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	tw, ok := rl.tenants[tenant]
	if !ok {
		return 0
	}
	n := 0
	for _, t := range tw.stamps {
		if now.Sub(t) < rl.window {
			n++
		}
	}
	return n
}
