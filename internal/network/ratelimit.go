package network

import (
	"bytes"
	"io"
	"time"
)

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// rateLimiter throttles a peer's read loop to at most n events per second by
// sleeping out any burst once the current second's budget is spent. Simpler
// than a token bucket; adequate for bounding a single noisy peer.
type rateLimiter struct {
	limit     int
	count     int
	windowEnd time.Time
}

func newRateLimiter(limit int) *rateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	return &rateLimiter{limit: limit, windowEnd: time.Now().Add(time.Second)}
}

func (rl *rateLimiter) wait() {
	now := time.Now()
	if now.After(rl.windowEnd) {
		rl.count = 0
		rl.windowEnd = now.Add(time.Second)
	}
	rl.count++
	if rl.count > rl.limit {
		time.Sleep(rl.windowEnd.Sub(now))
		rl.count = 0
		rl.windowEnd = time.Now().Add(time.Second)
	}
}
