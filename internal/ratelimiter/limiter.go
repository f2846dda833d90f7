package ratelimiter

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiters holds one token bucket limiter per target host so a burst of
// rechecks against the same site is spread out. Limiters are created lazily
// the first time a host is seen.
// Burst is set equal to the rate so no extra burst capacity is allowed
// beyond the configured per-second maximum.
type HostLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// New creates a HostLimiters with ratePerSec tokens per second per host.
func New(ratePerSec int) *HostLimiters {
	if ratePerSec < 1 {
		ratePerSec = 1
	}
	return &HostLimiters{
		limit:    rate.Limit(ratePerSec),
		burst:    ratePerSec,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the limiter for rawURL's host grants a token.
// Called by each worker immediately before fetching.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (hl *HostLimiters) Wait(ctx context.Context, rawURL string) error {
	return hl.limiter(HostOf(rawURL)).Wait(ctx)
}

// Len returns how many hosts have a limiter.
func (hl *HostLimiters) Len() int {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return len(hl.limiters)
}

func (hl *HostLimiters) limiter(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	l, ok := hl.limiters[host]
	if !ok {
		l = rate.NewLimiter(hl.limit, hl.burst)
		hl.limiters[host] = l
	}
	return l
}

// HostOf returns the lower-cased host of rawURL, or rawURL itself when it
// does not parse.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}
