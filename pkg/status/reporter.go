package status

import "github.com/Veraticus/idlewatch/pkg/inactivity"

// Reporter maps engine events onto the indicator
type Reporter struct {
	indicator *Indicator
}

// NewReporter creates a new status reporter
func NewReporter(indicator *Indicator) *Reporter {
	return &Reporter{
		indicator: indicator,
	}
}

// HandleEvent updates the display from an engine event
func (r *Reporter) HandleEvent(event inactivity.Event) {
	if r.indicator == nil {
		return
	}

	if event.Type == inactivity.EventActivityDetected {
		r.indicator.MarkActivity()
	}
	r.indicator.SetSnapshot(event.State)
}
