package replay

import "time"

// Backoff is the adaptive inter-batch delay controller. Batches that
// contain transient failures scale the delay up multiplicatively (bounded
// by max); batches without relax it back toward base. Terminal failures
// never scale the delay; backing off in front of a permanent error only
// delays operator remediation.
//
// Pure state machine, no clocks or I/O: the worker loop owns the
// sleeping.
type Backoff struct {
	base       time.Duration
	max        time.Duration
	multiplier float64

	current              time.Duration
	consecutiveTransient int
}

func NewBackoff(base, max time.Duration, multiplier float64) *Backoff {
	if multiplier < 1 {
		multiplier = 1
	}
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max, multiplier: multiplier, current: base}
}

// ObserveBatch feeds one batch's outcome counts into the controller.
// Only transient failures influence the delay.
func (b *Backoff) ObserveBatch(transientFailures, terminalFailures, successes int) {
	if transientFailures > 0 {
		b.consecutiveTransient++
		next := time.Duration(float64(b.current) * b.multiplier)
		if b.current == 0 {
			next = b.base
		}
		if next > b.max {
			next = b.max
		}
		b.current = next
		return
	}

	b.consecutiveTransient = 0
	next := time.Duration(float64(b.current) / b.multiplier)
	if next < b.base {
		next = b.base
	}
	b.current = next
}

// Delay returns the delay to apply before the next batch.
func (b *Backoff) Delay() time.Duration {
	return b.current
}

// ConsecutiveTransientBatches reports how many batches in a row have seen
// transient failures.
func (b *Backoff) ConsecutiveTransientBatches() int {
	return b.consecutiveTransient
}
