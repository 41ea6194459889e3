package service

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/yndnr/slotmesh/internal/core/domain"
)

// RateLimiterRegistry keeps one token bucket per slot.
type RateLimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[domain.SlotID]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiterRegistry creates a registry whose buckets refill at limit
// events per second with the given burst.
func NewRateLimiterRegistry(limit rate.Limit, burst int) *RateLimiterRegistry {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiterRegistry{
		limiters: make(map[domain.SlotID]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// GetOrCreate retrieves an existing rate limiter or creates a new one.
func (r *RateLimiterRegistry) GetOrCreate(id domain.SlotID) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[id]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := r.limiters[id]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(r.limit, r.burst)
	r.limiters[id] = limiter
	return limiter
}

// Delete removes the limiter for a slot.
func (r *RateLimiterRegistry) Delete(id domain.SlotID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, id)
}
