package ratelimiter

import (
	"sync"
	"time"
)

// TokenBucket allows bursts of requests up to the bucket's capacity and refills at a fixed rate.
type TokenBucket struct {
	rate          float64   // tokens generated per second
	capacity      float64   // maximum number of tokens
	tokens        float64   // current number of tokens
	lastTokenTime time.Time // last refill time
	now           func() time.Time
	mutex         sync.Mutex
}

// NewTokenBucket creates a full bucket.
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	tb := &TokenBucket{
		rate:     rate,
		capacity: float64(capacity),
		tokens:   float64(capacity),
		now:      time.Now,
	}
	tb.lastTokenTime = tb.now()
	return tb
}

// Take refills the bucket for the elapsed time and consumes one token if available.
func (tb *TokenBucket) Take() bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	now := tb.now()
	if elapsed := now.Sub(tb.lastTokenTime); elapsed > 0 {
		tb.tokens += elapsed.Seconds() * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTokenTime = now
	}

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Allow implements RateLimiter with a single bucket shared by every key.
func (tb *TokenBucket) Allow(string) bool {
	return tb.Take()
}
