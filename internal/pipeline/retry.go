package pipeline

import (
	"math/rand/v2"
	"time"
)

// Backoff returns the wait before retry attempt n (0-indexed): exponential
// from one second, capped at 30s, plus up to 50% jitter.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 5 {
		attempt = 5
	}
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

// NoBackoff retries immediately.
func NoBackoff(int) time.Duration { return 0 }
