package inactivity

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType identifies the kind of event a subscription yields.
type EventType int

const (
	// EventStarted fires when a timer starts through StartTimer or
	// tracking being enabled.
	EventStarted EventType = iota
	// EventActivityDetected fires on every accepted activity signal.
	EventActivityDetected
	// EventWarning fires at most once per activity window, when the
	// remaining time drops inside the warning threshold.
	EventWarning
	// EventTimeout fires when elapsed inactivity reaches the timeout.
	// It completes the subscription.
	EventTimeout
)

var eventTypeNames = map[EventType]string{
	EventStarted:          "started",
	EventActivityDetected: "activity",
	EventWarning:          "warning",
	EventTimeout:          "timeout",
}

// String returns the lowercase name of the event type.
func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// MarshalJSON encodes the event type as its string name.
func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes an event type from its string name.
func (t *EventType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for typ, n := range eventTypeNames {
		if n == name {
			*t = typ
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", name)
}

// Event is one entry in the engine's notification stream. State is the
// snapshot taken at emission so consumers never have to call back into
// the engine. SecondsRemaining is set on warning events only.
type Event struct {
	Type             EventType `json:"type"`
	At               time.Time `json:"at"`
	SecondsRemaining int       `json:"secondsRemaining,omitempty"`
	State            State     `json:"state"`
}

// eventBuffer is the subscription channel capacity.
const eventBuffer = 64

var (
	// ErrSubscriberActive is returned by Subscribe while another
	// subscription is still attached.
	ErrSubscriberActive = errors.New("inactivity: subscription already active")

	// ErrEngineClosed is returned once the engine has been closed.
	ErrEngineClosed = errors.New("inactivity: engine closed")
)

// Subscription is the engine's event stream for its single observer.
// The channel completes (closes) after a timeout event, after Cancel,
// or when the engine closes; a new engine run needs a new Subscribe.
type Subscription struct {
	engine *Engine
	ch     chan Event

	// done and dropped are guarded by engine.mu.
	done    bool
	dropped int
}

// Events returns the stream to range over.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Cancel detaches the subscription, closes the stream, and stops the
// engine's scheduling. Safe to call more than once.
func (s *Subscription) Cancel() {
	e := s.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	close(s.ch)
	if e.sub == s {
		e.sub = nil
		e.stopTimerLocked()
	}
}

// Dropped reports how many events were discarded under backpressure.
func (s *Subscription) Dropped() int {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	return s.dropped
}

// push delivers an event without ever blocking the engine. Activity
// events are droppable when the consumer lags; started, warning, and
// timeout events evict the oldest buffered entry until they fit.
// Callers hold engine.mu.
func (s *Subscription) push(ev Event) {
	if s.done {
		return
	}
	if ev.Type == EventActivityDetected {
		select {
		case s.ch <- ev:
		default:
			s.dropped++
		}
		return
	}
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped++
		default:
		}
	}
}

// complete closes the stream after a terminal event. Callers hold
// engine.mu.
func (s *Subscription) complete() {
	if s.done {
		return
	}
	s.done = true
	close(s.ch)
}
