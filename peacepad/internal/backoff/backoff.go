// Package backoff provides the deterministic exponential retry policy used
// by the signaling client.
package backoff

import "time"

// Policy defines the parameters for exponential backoff calculation.
// There is no jitter: the delay sequence is base, 2·base, 4·base, …
// clamped to Max.
type Policy struct {
	// Base is the delay before the first retry.
	Base time.Duration
	// Max caps the computed delay.
	Max time.Duration
}

// Delay calculates the backoff duration for a given attempt number.
// Attempt numbers start at 0 (the first retry).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Default returns the policy used when the caller configures nothing:
// 1 s base doubling up to 30 s.
func Default() Policy {
	return Policy{
		Base: time.Second,
		Max:  30 * time.Second,
	}
}
