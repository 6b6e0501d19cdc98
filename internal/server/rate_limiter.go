package server

import (
	"math"
	"sync"
	"time"
)

// tokenBucket admits a burst of frames at once and then refills at Burst
// tokens per RefillInterval. A nil bucket admits everything.
type tokenBucket struct {
	mu     sync.Mutex
	burst  float64
	perSec float64
	tokens float64
	last   time.Time
	clock  func() time.Time
}

// newTokenBucket returns nil when cfg disables rate limiting.
func newTokenBucket(cfg RateLimitConfig) *tokenBucket {
	if !cfg.Enabled() {
		return nil
	}
	burst := cfg.Burst
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	b := &tokenBucket{
		burst:  float64(burst),
		perSec: float64(burst) / interval.Seconds(),
		tokens: float64(burst),
		clock:  time.Now,
	}
	b.last = b.clock()
	return b
}

// allow spends one token if one is available.
func (b *tokenBucket) allow() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	if now.After(b.last) {
		b.tokens = math.Min(b.burst, b.tokens+now.Sub(b.last).Seconds()*b.perSec)
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
