package shaping

import (
	"math"
	"time"
)

// TokenBucket accumulates byte credits at a configured bit rate up to a fixed
// capacity. Refill is lazy: every observation first credits the tokens earned
// since the last observation, then acts. All arithmetic runs on an unsigned
// 64-bit microsecond timebase so high rates do not overflow.
type TokenBucket struct {
	capacityBytes uint64
	tokensBytes   uint64
	rateBps       uint64
	lastRefill    time.Time

	now func() time.Time // test hook, defaults to time.Now
}

// NewTokenBucket creates a bucket that starts full. A rate of 0 never
// accrues; a capacity of 0 is permanently empty.
func NewTokenBucket(rateBps, capacityBytes uint64) *TokenBucket {
	return &TokenBucket{
		capacityBytes: capacityBytes,
		tokensBytes:   capacityBytes,
		rateBps:       rateBps,
		lastRefill:    time.Now(),
		now:           time.Now,
	}
}

// refill credits tokens for the time elapsed since the last refill and
// advances the refill timestamp.
func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Microseconds()
	if elapsed > 0 && b.rateBps > 0 {
		us := uint64(elapsed)
		// newTokens = us * rate / (8 bits * 1e6 us). Saturate instead of
		// overflowing when the bucket has been idle for a very long time.
		if us > math.MaxUint64/b.rateBps {
			b.tokensBytes = b.capacityBytes
		} else {
			newTokens := us * b.rateBps / 8_000_000
			if newTokens > 0 {
				b.tokensBytes += newTokens
				if b.tokensBytes > b.capacityBytes || b.tokensBytes < newTokens {
					b.tokensBytes = b.capacityBytes
				}
			}
		}
	}
	b.lastRefill = now
}

// Consume admits the request iff, after a refill, at least n tokens are
// available; on admission it debits them. Consuming zero is always admitted.
func (b *TokenBucket) Consume(n uint64) bool {
	b.refill()
	if b.tokensBytes >= n {
		b.tokensBytes -= n
		return true
	}
	return false
}

// Available returns the token count after a refill. It never debits.
func (b *TokenBucket) Available() uint64 {
	b.refill()
	return b.tokensBytes
}

// IsConforming reports whether a packet of the given size would be admitted
// right now, without debiting.
func (b *TokenBucket) IsConforming(n uint64) bool {
	b.refill()
	return b.tokensBytes >= n
}

// SetRate changes the fill rate. Tokens earned under the old rate are
// credited first so the change applies prospectively.
func (b *TokenBucket) SetRate(rateBps uint64) {
	b.refill()
	b.rateBps = rateBps
}

// SetCapacity changes the cap. A decrease clamps the current token count.
func (b *TokenBucket) SetCapacity(capacityBytes uint64) {
	b.refill()
	b.capacityBytes = capacityBytes
	if b.tokensBytes > capacityBytes {
		b.tokensBytes = capacityBytes
	}
}

// Rate returns the configured fill rate in bits per second.
func (b *TokenBucket) Rate() uint64 { return b.rateBps }

// Capacity returns the configured cap in bytes.
func (b *TokenBucket) Capacity() uint64 { return b.capacityBytes }
