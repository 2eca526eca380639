// Package interfaces defines the core interfaces used throughout the application.
package interfaces

// ActivitySink receives throttled user-activity signals.
type ActivitySink interface {
	RecordActivity()
}

// LifecycleSink receives host lifecycle transitions.
type LifecycleSink interface {
	PauseForBackground()
	Resume()
}

// SessionSink is the full engine surface the monitor drives.
type SessionSink interface {
	ActivitySink
	LifecycleSink
}

// DataHandler processes raw data from one direction of the terminal
// session.
type DataHandler interface {
	HandleData(data []byte)
}

// ScreenEventHandler receives terminal events decoded from escape
// sequences.
type ScreenEventHandler interface {
	HandleScreenClear()
	HandleTitleChange(title string)
	HandleFocusIn()
	HandleFocusOut()
}

// ActivityGate limits how often activity signals are forwarded.
type ActivityGate interface {
	Allow() bool
	Reset()
}
