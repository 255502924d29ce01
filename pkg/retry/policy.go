package retry

import (
	"errors"
	"time"
)

// ErrMaxRetriesExceeded is returned when an operation keeps failing past the
// policy's retry budget
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy controls retry behavior
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// RetryableFunc overrides the default error classification when set
	RetryableFunc func(error) bool
}

// Validate checks the policy for obvious misconfiguration
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("max retries must be non-negative")
	}
	if p.InitialBackoff <= 0 {
		return errors.New("initial backoff must be positive")
	}
	if p.MaxBackoff < p.InitialBackoff {
		return errors.New("max backoff must be at least initial backoff")
	}
	if p.Multiplier < 1 {
		return errors.New("multiplier must be at least 1")
	}
	return nil
}

// DefaultPolicy returns a conservative policy for network-bound operations
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
	}
}
