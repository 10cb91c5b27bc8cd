package provider

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Documented per-provider rate limits (requests per second). Providers not
// listed here fall back to the configured default interval.
var providerRateLimits = map[Name]rate.Limit{
	NameMusicBrainz: 1,
	NameDeezer:      5,
	NameFanartTV:    3,
}

// RateLimiterMap holds one rate.Limiter per provider. Limiting is enforced
// per provider, never globally, so a throttled provider does not starve
// the others.
type RateLimiterMap struct {
	mu           sync.RWMutex
	limiters     map[Name]*rate.Limiter
	defaultLimit rate.Limit
}

// NewRateLimiterMap creates per-provider limiters. interCallDelay is the
// default minimum spacing between calls to a single provider; documented
// provider limits take precedence when stricter.
func NewRateLimiterMap(interCallDelay time.Duration) *RateLimiterMap {
	defaultLimit := rate.Inf
	if interCallDelay > 0 {
		defaultLimit = rate.Every(interCallDelay)
	}

	m := &RateLimiterMap{
		limiters:     make(map[Name]*rate.Limiter, len(providerRateLimits)),
		defaultLimit: defaultLimit,
	}
	for name, limit := range providerRateLimits {
		if limit > defaultLimit {
			limit = defaultLimit
		}
		m.limiters[name] = rate.NewLimiter(limit, 1)
	}
	return m
}

// Wait blocks until the rate limiter for the given provider allows a
// request, or the context is canceled. Unknown providers get a limiter at
// the default interval on first use.
func (m *RateLimiterMap) Wait(ctx context.Context, name Name) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		m.mu.Lock()
		limiter, ok = m.limiters[name]
		if !ok {
			limiter = rate.NewLimiter(m.defaultLimit, 1)
			m.limiters[name] = limiter
		}
		m.mu.Unlock()
	}

	return limiter.Wait(ctx)
}
