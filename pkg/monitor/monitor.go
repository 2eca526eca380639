// Package monitor derives session activity from the wrapped command's
// terminal streams. Child output is split into lines and filtered
// through ignore patterns; keystrokes count directly; focus reports
// pause and resume the session instead of counting as activity.
package monitor

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
)

// fragmentCap bounds how much of a line the monitor buffers while
// waiting for a terminator. Streams that never emit one are processed
// in fragmentCap slices so they still register activity.
const fragmentCap = 4096

// SessionMonitor feeds a session sink from the two halves of the copy
// loop. HandleData is the child-output side; InputHandler returns the
// stdin side. Each sequence detector is confined to its copy goroutine;
// the mutex covers the state both sides and reloads share.
type SessionMonitor struct {
	session interfaces.SessionSink
	gate    interfaces.ActivityGate

	mu            sync.Mutex
	patterns      *PatternSet
	lineBuffer    bytes.Buffer
	title         string
	focusTracking bool
	delegate      interfaces.ScreenEventHandler

	outputSeqs *SequenceDetector
	inputSeqs  *SequenceDetector
}

// NewSessionMonitor creates a monitor that marks activity on session.
// gate may be nil to mark on every qualifying chunk.
func NewSessionMonitor(session interfaces.SessionSink, gate interfaces.ActivityGate, patterns *PatternSet, focusTracking bool) *SessionMonitor {
	return &SessionMonitor{
		session:       session,
		gate:          gate,
		patterns:      patterns,
		focusTracking: focusTracking,
		outputSeqs:    NewSequenceDetector(),
		inputSeqs:     NewSequenceDetector(),
	}
}

// SetScreenEventHandler sets a handler that receives screen events
// after the monitor has acted on them.
func (m *SessionMonitor) SetScreenEventHandler(handler interfaces.ScreenEventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delegate = handler
}

// SetPatterns swaps the ignore patterns, for configuration reloads.
func (m *SessionMonitor) SetPatterns(patterns *PatternSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = patterns
}

// SetFocusTracking toggles focus handling, for configuration reloads.
func (m *SessionMonitor) SetFocusTracking(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.focusTracking = enabled
}

// Title returns the child's most recent terminal title, if any.
func (m *SessionMonitor) Title() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.title
}

// HandleData processes a chunk of child output. It satisfies
// interfaces.DataHandler for the output side of the copy loop.
func (m *SessionMonitor) HandleData(data []byte) {
	m.outputSeqs.Scan(data, m)

	m.mu.Lock()
	m.lineBuffer.Write(data)
	lines := m.splitCompleteLocked()
	active := false
	for _, line := range lines {
		clean := StripEscapes(line)
		if m.patterns != nil && m.patterns.Ignore(clean) {
			continue
		}
		active = true
		if debugEnabled() {
			fmt.Fprintf(os.Stderr, "idlewatch: output counted as activity: %q\n", clean)
		}
	}
	m.mu.Unlock()

	if active {
		m.markActivity()
	}
}

// splitCompleteLocked drains complete lines from the buffer, treating
// both LF and CR as terminators so single-line spinner redraws are
// still seen as lines. An oversize fragment is cut as if terminated.
func (m *SessionMonitor) splitCompleteLocked() []string {
	buffer := m.lineBuffer.Bytes()
	var lines []string
	start := 0
	for i := 0; i < len(buffer); i++ {
		if buffer[i] == '\n' || buffer[i] == '\r' {
			if i > start {
				lines = append(lines, string(buffer[start:i]))
			}
			start = i + 1
		}
	}
	rest := buffer[start:]
	if len(rest) > fragmentCap {
		lines = append(lines, string(rest))
		rest = nil
	}
	tail := append([]byte(nil), rest...)
	m.lineBuffer.Reset()
	m.lineBuffer.Write(tail)
	return lines
}

// InputHandler returns the DataHandler for the user's stdin stream.
func (m *SessionMonitor) InputHandler() interfaces.DataHandler {
	return inputHandler{m}
}

type inputHandler struct {
	m *SessionMonitor
}

func (h inputHandler) HandleData(data []byte) {
	h.m.handleInput(data)
}

// handleInput processes a chunk of user input. Focus reports pause or
// resume the session; any other byte, escape sequences included, is a
// keystroke and marks activity.
func (m *SessionMonitor) handleInput(data []byte) {
	var plain int
	if m.focusEnabled() {
		plain = m.inputSeqs.Scan(data, m)
	} else {
		plain = len(data)
	}
	if plain > 0 {
		m.markActivity()
	}
}

// Flush processes any buffered partial line.
func (m *SessionMonitor) Flush() {
	m.mu.Lock()
	rest := StripEscapes(m.lineBuffer.String())
	m.lineBuffer.Reset()
	ignore := rest == "" || (m.patterns != nil && m.patterns.Ignore(rest))
	m.mu.Unlock()

	if !ignore {
		m.markActivity()
	}
}

// markActivity records one activity mark, subject to the spacing gate.
func (m *SessionMonitor) markActivity() {
	if m.gate != nil && !m.gate.Allow() {
		return
	}
	m.session.RecordActivity()
}

// HandleScreenClear implements interfaces.ScreenEventHandler.
func (m *SessionMonitor) HandleScreenClear() {
	if d := m.delegateHandler(); d != nil {
		d.HandleScreenClear()
	}
}

// HandleTitleChange records the child's title for notification context.
func (m *SessionMonitor) HandleTitleChange(title string) {
	m.mu.Lock()
	m.title = title
	m.mu.Unlock()

	if debugEnabled() {
		fmt.Fprintf(os.Stderr, "idlewatch: terminal title changed to: %q\n", title)
	}
	if d := m.delegateHandler(); d != nil {
		d.HandleTitleChange(title)
	}
}

// HandleFocusIn resumes the session when focus tracking is on.
func (m *SessionMonitor) HandleFocusIn() {
	if m.focusEnabled() {
		if debugEnabled() {
			fmt.Fprintf(os.Stderr, "idlewatch: terminal gained focus\n")
		}
		m.session.Resume()
	}
	if d := m.delegateHandler(); d != nil {
		d.HandleFocusIn()
	}
}

// HandleFocusOut pauses the session when focus tracking is on.
func (m *SessionMonitor) HandleFocusOut() {
	if m.focusEnabled() {
		if debugEnabled() {
			fmt.Fprintf(os.Stderr, "idlewatch: terminal lost focus\n")
		}
		m.session.PauseForBackground()
	}
	if d := m.delegateHandler(); d != nil {
		d.HandleFocusOut()
	}
}

func (m *SessionMonitor) focusEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.focusTracking
}

func (m *SessionMonitor) delegateHandler() interfaces.ScreenEventHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delegate
}

func debugEnabled() bool {
	return os.Getenv("IDLEWATCH_DEBUG") == "true"
}
