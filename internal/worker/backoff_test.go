package worker

import (
	"testing"
	"time"
)

func TestBackoffDelayNoJitter(t *testing.T) {
	policy := BackoffPolicy{Initial: 10 * time.Second, Max: 900 * time.Second}

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{name: "attempt 1", attempt: 1, want: 10 * time.Second},
		{name: "attempt 2", attempt: 2, want: 20 * time.Second},
		{name: "attempt 3", attempt: 3, want: 40 * time.Second},
		{name: "attempt 4", attempt: 4, want: 80 * time.Second},
		{name: "attempt 5", attempt: 5, want: 160 * time.Second},
		{name: "attempt 6", attempt: 6, want: 320 * time.Second},
		{name: "attempt 7", attempt: 7, want: 640 * time.Second},
		{name: "attempt 8 hits cap", attempt: 8, want: 900 * time.Second},
		{name: "attempt 20 stays capped", attempt: 20, want: 900 * time.Second},
		{name: "attempt 0 coerced to 1", attempt: 0, want: 10 * time.Second},
		{name: "negative attempt coerced to 1", attempt: -3, want: 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestBackoffDelayMonotoneUntilCap(t *testing.T) {
	policy := BackoffPolicy{Initial: time.Second, Max: 5 * time.Minute}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 30; attempt++ {
		d := policy.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v decreased below Delay(%d) = %v", attempt, d, attempt-1, prev)
		}
		if d > policy.Max {
			t.Fatalf("Delay(%d) = %v exceeds Max %v", attempt, d, policy.Max)
		}
		prev = d
	}
}

func TestBackoffDelayOverflowGuard(t *testing.T) {
	policy := BackoffPolicy{Initial: time.Hour, Max: 24 * time.Hour}

	// Doubling time.Hour enough times would overflow int64 without the
	// guard; the cap must absorb it.
	for _, attempt := range []int{50, 63, 64, 100} {
		if got := policy.Delay(attempt); got != policy.Max {
			t.Errorf("Delay(%d) = %v, want cap %v", attempt, got, policy.Max)
		}
	}
}

func TestBackoffDelayJitterBounds(t *testing.T) {
	policy := BackoffPolicy{Initial: 10 * time.Second, Max: 900 * time.Second, JitterPct: 0.25}

	for attempt := 1; attempt <= 8; attempt++ {
		base := BackoffPolicy{Initial: policy.Initial, Max: policy.Max}.Delay(attempt)
		lo := time.Duration(float64(base) * 0.75)
		for i := 0; i < 200; i++ {
			d := policy.Delay(attempt)
			if d > policy.Max {
				t.Fatalf("Delay(%d) = %v exceeds Max %v with jitter", attempt, d, policy.Max)
			}
			if base < policy.Max && d < lo {
				t.Fatalf("Delay(%d) = %v below jitter floor %v", attempt, d, lo)
			}
		}
	}
}
