package peer

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
)

// tokenBucket rate-limits inbound gossip messages per peer, per SPEC_FULL
// §C.3: a misbehaving or overly chatty peer can flood us with
// announcements that each cost a signature verification, so the read loop
// soft-drops anything arriving faster than the configured rate instead of
// tearing down the connection. Every inbound message type counts against
// the bucket, and a message dropped for exceeding the rate is never
// processed, even one that ingestion would otherwise have accepted.
type tokenBucket struct {
	mu sync.Mutex

	tokens float64
	max    float64
	rate   float64 // tokens added per second
	lastAt time.Time

	clock clock.Clock
}

func newTokenBucket(c clock.Clock, ratePerSec, burst float64) *tokenBucket {
	return &tokenBucket{
		tokens: burst,
		max:    burst,
		rate:   ratePerSec,
		lastAt: c.Now(),
		clock:  c,
	}
}

// Allow reports whether the caller may process one more message right now,
// consuming a token if so.
func (b *tokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	elapsed := now.Sub(b.lastAt).Seconds()
	b.lastAt = now

	b.tokens += elapsed * b.rate
	if b.tokens > b.max {
		b.tokens = b.max
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
