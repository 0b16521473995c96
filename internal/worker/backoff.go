package worker

import (
	"math/rand"
	"time"
)

// BackoffPolicy computes the retry delay for an attempt number:
// min(initial * 2^(n-1), max), with optional multiplicative jitter.
// Policy is engine configuration, uniform across deliveries.
type BackoffPolicy struct {
	Initial   time.Duration
	Max       time.Duration
	JitterPct float64 // +/- fraction, 0 disables jitter
}

// Delay returns the backoff for the given 1-based attempt number. The
// result never exceeds Max, jitter included.
func (b BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := b.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max || d < 0 { // overflow guard
			d = b.Max
			break
		}
	}
	if d > b.Max {
		d = b.Max
	}

	if b.JitterPct > 0 {
		j := 1 + (rand.Float64()*2-1)*b.JitterPct
		if j < 0.1 {
			j = 0.1
		}
		d = time.Duration(float64(d) * j)
		if d > b.Max {
			d = b.Max
		}
	}
	return d
}
