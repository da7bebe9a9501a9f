// ratelimit.go implements token-bucket rate limiting for the live REST
// client. Exchange limits are published per window; the buckets refill
// continuously rather than in bursts so sustained trading never brushes
// the hard limit.
//
// Two buckets are maintained:
//   - Order: order placement (weight-heavy, tight limit)
//   - Info:  exchangeInfo and other metadata reads
package exchange

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a token-bucket rate limiter with continuous
// refill. Callers block in Wait() until a token is available or the
// context is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64   // current available tokens (fractional allowed)
	capacity float64   // maximum burst size
	rate     float64   // tokens refilled per second
	lastTime time.Time // last time tokens were calculated
}

// NewTokenBucket creates a rate limiter with the given capacity and refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		// Calculate wait time for next token
		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			// retry
		}
	}
}

// RateLimiter groups token buckets by endpoint category. Each operation
// calls the appropriate bucket's Wait() before making the HTTP request.
type RateLimiter struct {
	Order *TokenBucket // POST /api/v3/order
	Info  *TokenBucket // GET /api/v3/exchangeInfo and other reads
}

// NewRateLimiter creates rate limiters tuned to the venue's published
// per-10s allowances, with capacity set to the burst and rate to 1/10th.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		Order: NewTokenBucket(100, 10),
		Info:  NewTokenBucket(50, 5),
	}
}
