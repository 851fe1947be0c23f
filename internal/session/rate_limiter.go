package session

import (
	"sync"
	"time"
)

// RateLimit bounds how many chat messages a peer may send. A Burst of zero
// disables limiting.
type RateLimit struct {
	Burst          int
	RefillInterval time.Duration
}

// tokenBucket refills Burst tokens per RefillInterval, continuously.
type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	perSec   float64
	last     time.Time
	now      func() time.Time
}

func newTokenBucket(limit RateLimit, now func() time.Time) *tokenBucket {
	if limit.Burst <= 0 {
		return nil
	}
	interval := limit.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}
	if now == nil {
		now = time.Now
	}
	capacity := float64(limit.Burst)
	return &tokenBucket{
		tokens:   capacity,
		capacity: capacity,
		perSec:   capacity / interval.Seconds(),
		last:     now(),
		now:      now,
	}
}

// take consumes one token if available. A nil bucket always allows.
func (b *tokenBucket) take() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.perSec)
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
