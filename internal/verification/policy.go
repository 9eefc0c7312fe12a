package verification

import (
	"fmt"
	"time"
)

// Policy holds the lookup throttling and record validity rules.
type Policy struct {
	HourlyLimit            int
	DailyLimit             int
	MaxConsecutiveFailures int
	LockoutDuration        time.Duration
	Validity               time.Duration
}

// DefaultPolicy returns the standard policy: 10 lookups per hour, 50 per
// day, a one-hour lockout after 5 consecutive misses, 90-day validity.
func DefaultPolicy() Policy {
	return Policy{
		HourlyLimit:            10,
		DailyLimit:             50,
		MaxConsecutiveFailures: 5,
		LockoutDuration:        time.Hour,
		Validity:               90 * 24 * time.Hour,
	}
}

// Validate checks that every limit is positive.
func (p Policy) Validate() error {
	if p.HourlyLimit <= 0 || p.DailyLimit <= 0 {
		return fmt.Errorf("lookup limits must be positive")
	}
	if p.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("max consecutive failures must be positive")
	}
	if p.LockoutDuration <= 0 {
		return fmt.Errorf("lockout duration must be positive")
	}
	if p.Validity <= 0 {
		return fmt.Errorf("validity must be positive")
	}
	return nil
}
