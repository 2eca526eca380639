package inactivity

import (
	"encoding/json"
	"fmt"
	"time"
)

// Phase identifies where the engine is within an activity window.
type Phase int

const (
	// PhaseIdle means tracking is disabled or no timer is running.
	PhaseIdle Phase = iota
	// PhaseActive means a timer is running and no warning has fired.
	PhaseActive
	// PhaseWarned means the warning fired for the current window.
	PhaseWarned
	// PhaseTimedOut is terminal until a new activity or start event.
	PhaseTimedOut
)

var phaseNames = map[Phase]string{
	PhaseIdle:     "idle",
	PhaseActive:   "active",
	PhaseWarned:   "warned",
	PhaseTimedOut: "timed_out",
}

// String returns the lowercase name of the phase.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalJSON encodes the phase as its string name.
func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a phase from its string name.
func (p *Phase) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for phase, n := range phaseNames {
		if n == name {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", name)
}

// State is a point-in-time snapshot of the engine's session record. A
// zero LastActivityAt means the engine never started; a zero
// BackgroundedAt means the host is foregrounded.
type State struct {
	Phase           Phase     `json:"phase"`
	TrackingEnabled bool      `json:"trackingEnabled"`
	TimerActive     bool      `json:"timerActive"`
	LastActivityAt  time.Time `json:"lastActivityAt"`
	BackgroundedAt  time.Time `json:"backgroundedAt"`

	// SecondsSinceLastActivity is cached for observability and
	// recomputed on every tick; the authoritative value is always
	// now minus LastActivityAt.
	SecondsSinceLastActivity int `json:"secondsSinceLastActivity"`

	WarningIssued bool `json:"warningIssued"`
}
