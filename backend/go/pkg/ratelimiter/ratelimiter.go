// Package ratelimiter throttles incoming requests per client.
package ratelimiter

import (
	"sync"
	"time"
)

// RateLimiter reports whether a request from the given client key may proceed.
type RateLimiter interface {
	Allow(key string) bool
}

// PerClient keeps one token bucket per client key (usually the remote IP).
// Buckets idle for longer than idleTTL are evicted lazily on access.
type PerClient struct {
	rate     float64
	capacity int
	idleTTL  time.Duration

	mu      sync.Mutex
	buckets map[string]*clientBucket
	sweptAt time.Time
	now     func() time.Time
}

type clientBucket struct {
	bucket   *TokenBucket
	lastSeen time.Time
}

// NewPerClient creates a limiter that allows rate requests per second per client,
// with bursts up to capacity.
func NewPerClient(rate float64, capacity int, idleTTL time.Duration) *PerClient {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &PerClient{
		rate:     rate,
		capacity: capacity,
		idleTTL:  idleTTL,
		buckets:  make(map[string]*clientBucket),
		now:      time.Now,
	}
}

// Allow implements RateLimiter.
func (p *PerClient) Allow(key string) bool {
	p.mu.Lock()
	now := p.now()
	if now.Sub(p.sweptAt) > p.idleTTL {
		for k, b := range p.buckets {
			if now.Sub(b.lastSeen) > p.idleTTL {
				delete(p.buckets, k)
			}
		}
		p.sweptAt = now
	}
	b, ok := p.buckets[key]
	if !ok {
		b = &clientBucket{bucket: NewTokenBucket(p.rate, p.capacity)}
		p.buckets[key] = b
	}
	b.lastSeen = now
	p.mu.Unlock()

	return b.bucket.Take()
}

// Len returns the number of tracked clients.
func (p *PerClient) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets)
}
