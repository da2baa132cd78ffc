package oauth

import (
	"math"
	"sync"
	"time"
)

// Backoff computes exponential retry delays for token refresh attempts:
// min * factor^attempt, capped at max.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64

	attempt int
	mu      sync.Mutex
}

// DefaultBackoff returns the refresh retry schedule: 1s base, doubling,
// capped at 10s.
func DefaultBackoff() *Backoff {
	return &Backoff{
		Min:    1 * time.Second,
		Max:    10 * time.Second,
		Factor: 2.0,
	}
}

// Duration returns the next backoff duration and increments the attempt
// counter.
func (b *Backoff) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := float64(b.Min) * math.Pow(b.Factor, float64(b.attempt))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}

	b.attempt++
	return time.Duration(d)
}

// Reset resets the attempt counter to 0.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
}

// Attempt returns the current attempt number.
func (b *Backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
