// Package backoff provides restart delay strategies for the supervisor.
package backoff

import "time"

// Strategy yields the delay before restart attempt n (1-based). The
// restart state machine is agnostic to the policy, so a stricter
// implementation can swap in exponential backoff without touching it.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Fixed waits the same amount before every attempt. This is the default
// policy: a flat delay keeps crash recovery predictable for a local
// single-user service.
type Fixed struct {
	Interval time.Duration
}

func (f Fixed) Delay(int) time.Duration { return f.Interval }

// Exponential doubles the base delay per attempt, capped at Max.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := e.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if e.Max > 0 && d >= e.Max {
			return e.Max
		}
	}
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}
