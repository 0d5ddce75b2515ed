package app

import (
	"errors"
	"time"
)

var ErrBadPolicy = errors.New("outbreak policy needs threshold > 0, radius > 0 and window > 0")

// OutbreakPolicy decides when nearby same-label reports become an alert.
type OutbreakPolicy struct {
	Threshold int
	RadiusKm  float64
	Window    time.Duration
}

func (p OutbreakPolicy) Validate() error {
	if p.Threshold <= 0 || p.RadiusKm <= 0 || p.Window <= 0 {
		return ErrBadPolicy
	}
	return nil
}

// Since is the oldest report time that still counts at now.
func (p OutbreakPolicy) Since(now time.Time) time.Time {
	return now.Add(-p.Window)
}

// Exceeded reports whether count reaches the threshold. There is no
// suppression window: every qualifying event alerts again.
func (p OutbreakPolicy) Exceeded(count int) bool {
	return count >= p.Threshold
}
