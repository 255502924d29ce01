package retry

import (
	"math"
	"time"
)

// Backoff computes exponential backoff durations for a policy
type Backoff struct {
	policy Policy
}

// NewBackoff creates a backoff calculator
func NewBackoff(policy Policy) *Backoff {
	return &Backoff{policy: policy}
}

// Calculate returns the wait before the given attempt (1-based), growing by
// the policy multiplier and capped at MaxBackoff
func (b *Backoff) Calculate(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.policy.InitialBackoff) * math.Pow(b.policy.Multiplier, float64(attempt-1))
	if d > float64(b.policy.MaxBackoff) {
		return b.policy.MaxBackoff
	}
	return time.Duration(d)
}
