// Copyright 2024-2026 Aiku AI

package bridge

import (
	"math/rand/v2"
	"time"
)

// backoff computes jittered exponential reconnect delays. Each failure
// doubles the base delay up to the cap; jitter adds up to 25% so a fleet of
// bridges does not reconnect against the same server in lockstep. The 25%
// bound keeps consecutive delays non-decreasing: the jittered value for
// attempt n never exceeds the unjittered value for attempt n+1.
type backoff struct {
	base    time.Duration
	cap     time.Duration
	attempt int
	jitter  func(d time.Duration) time.Duration
}

func newBackoff(base, cap time.Duration) *backoff {
	return &backoff{
		base: base,
		cap:  cap,
		jitter: func(d time.Duration) time.Duration {
			if d <= 0 {
				return 0
			}
			return rand.N(d)
		},
	}
}

// Next returns the delay before the next reconnect attempt and advances the
// attempt counter.
func (b *backoff) Next() time.Duration {
	d := b.cap
	if shift := uint(b.attempt); shift < 32 && b.base<<shift < b.cap {
		d = b.base << shift
	}
	d += b.jitter(d / 4)
	if d > b.cap {
		d = b.cap
	}
	b.attempt++
	return d
}

// Reset clears the attempt counter after a successful connection.
func (b *backoff) Reset() {
	b.attempt = 0
}

// Attempt reports how many consecutive failures have occurred.
func (b *backoff) Attempt() int {
	return b.attempt
}
