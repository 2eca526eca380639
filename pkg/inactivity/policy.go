// Package inactivity implements the session-inactivity state machine.
// An Engine tracks user activity against an injected clock, schedules
// adaptive polling toward an inactivity deadline, reconciles elapsed
// time across background suspensions, and emits at most one warning and
// exactly one timeout event per activity window to a single subscriber.
package inactivity

import (
	"fmt"
	"time"
)

// Policy is the inactivity policy an Engine runs under. It is supplied
// at construction and replaceable only through Engine.UpdateConfig.
type Policy struct {
	// Timeout is the span of allowed inactivity before the session
	// times out. Must be positive.
	Timeout time.Duration

	// WarningThreshold is how long before Timeout the one-time warning
	// fires. Zero disables the warning; otherwise it must be shorter
	// than Timeout.
	WarningThreshold time.Duration

	// MinActivitySpacing is the minimum interval hosts should leave
	// between forwarded activity signals. Advisory only: the engine
	// accepts every signal it receives, throttling happens upstream.
	MinActivitySpacing time.Duration
}

// Validate checks the policy invariants. Engines reject invalid
// policies at construction and on update rather than clamping them.
func (p Policy) Validate() error {
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", p.Timeout)
	}
	if p.WarningThreshold < 0 {
		return fmt.Errorf("warning threshold cannot be negative, got %v", p.WarningThreshold)
	}
	if p.WarningThreshold != 0 && p.WarningThreshold >= p.Timeout {
		return fmt.Errorf("warning threshold %v must be shorter than timeout %v", p.WarningThreshold, p.Timeout)
	}
	if p.MinActivitySpacing < 0 {
		return fmt.Errorf("activity spacing cannot be negative, got %v", p.MinActivitySpacing)
	}
	return nil
}

// WarningEnabled reports whether the policy carries a warning threshold.
func (p Policy) WarningEnabled() bool {
	return p.WarningThreshold > 0
}
