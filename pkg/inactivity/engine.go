package inactivity

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Engine owns a session's inactivity record. Every operation serializes
// on one mutex; scheduled checks are delivered through a waiter
// goroutine and validated against a schedule generation, so a check
// superseded by a newer one can never mutate state or double-fire.
//
// Tracking starts enabled. A typical host subscribes, calls StartTimer,
// forwards throttled activity and lifecycle signals, and reacts to the
// warning and timeout events on the subscription.
type Engine struct {
	mu  sync.Mutex
	clk clockwork.Clock

	policy Policy

	phase           Phase
	trackingEnabled bool
	timerActive     bool
	lastActivityAt  time.Time
	backgroundedAt  time.Time
	secondsIdle     int
	warningIssued   bool

	gen       uint64
	cancelArm chan struct{}
	sub       *Subscription
	closed    bool
}

// New creates an engine driven by the real clock.
func New(policy Policy) (*Engine, error) {
	return NewWithClock(policy, clockwork.NewRealClock())
}

// NewWithClock creates an engine against an injected clock. Tests pass
// a clockwork fake to drive the scheduler deterministically.
func NewWithClock(policy Policy, clk clockwork.Clock) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return &Engine{
		clk:             clk,
		policy:          policy,
		phase:           PhaseIdle,
		trackingEnabled: true,
	}, nil
}

// Subscribe attaches the single observer and returns its event stream.
// A second subscriber is rejected until the current stream completes or
// cancels.
func (e *Engine) Subscribe() (*Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	if e.sub != nil {
		return nil, ErrSubscriberActive
	}
	s := &Subscription{engine: e, ch: make(chan Event, eventBuffer)}
	e.sub = s
	return s, nil
}

// State returns a snapshot of the session record.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Policy returns the active policy.
func (e *Engine) Policy() Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy
}

// RecordActivity marks the session active as of now: it stamps the
// activity time, clears any outstanding warning, and starts a timer if
// none is running. Signals are ignored while tracking is disabled. The
// engine performs no throttling of its own; hosts space signals per
// Policy.MinActivitySpacing.
func (e *Engine) RecordActivity() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.trackingEnabled {
		return
	}
	now := e.clk.Now()
	e.lastActivityAt = now
	e.backgroundedAt = time.Time{}
	e.secondsIdle = 0
	e.warningIssued = false
	e.phase = PhaseActive
	if !e.timerActive {
		e.timerActive = true
		e.armLocked(e.policy.Timeout)
	}
	e.emitLocked(Event{Type: EventActivityDetected, At: now})
}

// StartTimer begins a fresh activity window: stamps activity at now,
// clears the warning flag, and schedules the first check. Re-arms if a
// timer is already running. No-op while tracking is disabled.
func (e *Engine) StartTimer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.trackingEnabled {
		return
	}
	e.startTimerLocked()
}

func (e *Engine) startTimerLocked() {
	now := e.clk.Now()
	e.lastActivityAt = now
	e.backgroundedAt = time.Time{}
	e.secondsIdle = 0
	e.warningIssued = false
	e.timerActive = true
	e.phase = PhaseActive
	e.armLocked(e.policy.Timeout)
	e.emitLocked(Event{Type: EventStarted, At: now})
}

// StopTimer cancels any pending check and marks the timer inactive.
// No-op if the timer is already stopped.
func (e *Engine) StopTimer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTimerLocked()
}

func (e *Engine) stopTimerLocked() {
	if !e.timerActive {
		return
	}
	e.cancelArmLocked()
	e.timerActive = false
	e.warningIssued = false
	if e.phase == PhaseActive || e.phase == PhaseWarned {
		e.phase = PhaseIdle
	}
}

// PauseForBackground records a lifecycle suspension: wall-clock time
// keeps elapsing but scheduled checks must not fire. The warning flag
// survives the suspension so a window never warns twice. Idempotent
// while already backgrounded; no-op when tracking is disabled or the
// session already timed out.
func (e *Engine) PauseForBackground() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.trackingEnabled {
		return
	}
	if !e.backgroundedAt.IsZero() || e.phase == PhaseTimedOut {
		return
	}
	e.backgroundedAt = e.clk.Now()
	e.cancelArmLocked()
	e.timerActive = false
}

// Resume reconciles elapsed time after a suspension. The injected clock
// kept advancing while backgrounded, so the whole suspended span counts
// as inactivity and elapsed time is still now minus lastActivityAt. A
// resume past the deadline times out immediately with no intermediate
// ticks; a resume inside the warning band issues the warning before
// scheduling resumes at the adaptive interval for the remaining time.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || !e.trackingEnabled {
		return
	}
	e.backgroundedAt = time.Time{}
	if e.phase == PhaseTimedOut || e.lastActivityAt.IsZero() {
		return
	}
	now := e.clk.Now()
	elapsed := now.Sub(e.lastActivityAt)
	e.secondsIdle = int(elapsed / time.Second)
	e.timerActive = true
	e.evaluateLocked(now, elapsed)
}

// SetTrackingEnabled flips the master switch. Enabling with no timer
// running starts a fresh window; disabling cancels scheduling, returns
// the engine to PhaseIdle, and ignores activity signals until
// re-enabled.
func (e *Engine) SetTrackingEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.trackingEnabled = enabled
	if enabled {
		if !e.timerActive {
			e.startTimerLocked()
		}
		return
	}
	e.stopTimerLocked()
	e.backgroundedAt = time.Time{}
	e.phase = PhaseIdle
}

// UpdateConfig replaces the policy. A changed policy invalidates any
// prior warning decision, so the warning flag clears; timing state is
// otherwise untouched and the new thresholds apply from the next tick
// or activity signal.
func (e *Engine) UpdateConfig(policy Policy) error {
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	e.policy = policy
	e.warningIssued = false
	if e.phase == PhaseWarned {
		e.phase = PhaseActive
	}
	return nil
}

// Close disposes the engine: any outstanding check is cancelled with no
// further effects and the subscription completes. All later operations
// are no-ops.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.cancelArmLocked()
	e.timerActive = false
	e.trackingEnabled = false
	e.warningIssued = false
	e.phase = PhaseIdle
	if e.sub != nil {
		e.sub.complete()
		e.sub = nil
	}
}

// tick is fired only by the scheduler goroutine, never by the host. A
// generation mismatch means a newer check superseded this one and it
// must change nothing.
func (e *Engine) tick(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || gen != e.gen || !e.timerActive || !e.trackingEnabled {
		return
	}
	now := e.clk.Now()
	elapsed := now.Sub(e.lastActivityAt)
	e.secondsIdle = int(elapsed / time.Second)
	e.evaluateLocked(now, elapsed)
}

// evaluateLocked applies the timeout/warning comparison shared by ticks
// and Resume, then reschedules unless the window ended.
func (e *Engine) evaluateLocked(now time.Time, elapsed time.Duration) {
	if elapsed >= e.policy.Timeout {
		e.timeoutLocked(now)
		return
	}
	remaining := e.policy.Timeout - elapsed
	if e.policy.WarningEnabled() && !e.warningIssued && elapsed >= e.policy.Timeout-e.policy.WarningThreshold {
		e.warningIssued = true
		e.phase = PhaseWarned
		e.emitLocked(Event{
			Type:             EventWarning,
			At:               now,
			SecondsRemaining: int(remaining.Round(time.Second) / time.Second),
		})
	}
	e.armLocked(remaining)
}

func (e *Engine) timeoutLocked(now time.Time) {
	e.cancelArmLocked()
	e.timerActive = false
	e.warningIssued = false
	e.phase = PhaseTimedOut
	e.emitLocked(Event{Type: EventTimeout, At: now})
	if e.sub != nil {
		e.sub.complete()
		e.sub = nil
	}
}

// armLocked schedules the next check at the adaptive interval for the
// remaining time, superseding any pending check. The timer is created
// under the lock so the schedule is registered with the clock before
// the arming operation returns.
func (e *Engine) armLocked(remaining time.Duration) {
	e.cancelArmLocked()
	e.gen++
	gen := e.gen
	cancel := make(chan struct{})
	e.cancelArm = cancel
	timer := e.clk.NewTimer(pollInterval(remaining))
	go func() {
		select {
		case <-timer.Chan():
			e.tick(gen)
		case <-cancel:
			timer.Stop()
		}
	}()
}

// cancelArmLocked releases any pending scheduled check. Bumping the
// generation makes an already-fired check stale before its goroutine
// can observe the closed cancel channel.
func (e *Engine) cancelArmLocked() {
	if e.cancelArm == nil {
		return
	}
	close(e.cancelArm)
	e.cancelArm = nil
	e.gen++
}

func (e *Engine) emitLocked(ev Event) {
	if e.sub == nil {
		return
	}
	ev.State = e.stateLocked()
	e.sub.push(ev)
}

func (e *Engine) stateLocked() State {
	return State{
		Phase:                    e.phase,
		TrackingEnabled:          e.trackingEnabled,
		TimerActive:              e.timerActive,
		LastActivityAt:           e.lastActivityAt,
		BackgroundedAt:           e.backgroundedAt,
		SecondsSinceLastActivity: e.secondsIdle,
		WarningIssued:            e.warningIssued,
	}
}

// pollInterval picks the next check delay from the time remaining
// before the deadline. Finer polling near the deadline bounds how late
// the warning and timeout events can fire; coarse polling far out
// keeps wakeups rare.
func pollInterval(remaining time.Duration) time.Duration {
	switch {
	case remaining <= 10*time.Second:
		return time.Second
	case remaining <= time.Minute:
		return 5 * time.Second
	case remaining <= 5*time.Minute:
		return 30 * time.Second
	case remaining <= 10*time.Minute:
		return time.Minute
	default:
		return 5 * time.Minute
	}
}
