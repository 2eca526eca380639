// Package testutil provides thread-safe mocks shared across package
// tests.
package testutil

import (
	"sync"
	"time"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
	"github.com/Veraticus/idlewatch/pkg/notify"
)

// MockNotifier is a thread-safe mock implementation of notify.Notifier
type MockNotifier struct {
	mu            sync.Mutex
	notifications []notify.Notification
	attempts      []notify.Notification // Track all send attempts
	sendErr       error
	sendDelay     time.Duration
}

// Ensure MockNotifier implements Notifier
var _ notify.Notifier = (*MockNotifier)(nil)

// NewMockNotifier creates a new mock notifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{
		notifications: []notify.Notification{},
		attempts:      []notify.Notification{},
	}
}

// Send implements the Notifier interface
func (m *MockNotifier) Send(n notify.Notification) error {
	if m.sendDelay > 0 {
		time.Sleep(m.sendDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Always track the attempt
	m.attempts = append(m.attempts, n)

	if m.sendErr != nil {
		return m.sendErr
	}

	m.notifications = append(m.notifications, n)
	return nil
}

// GetNotifications returns a copy of successfully sent notifications
func (m *MockNotifier) GetNotifications() []notify.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]notify.Notification, len(m.notifications))
	copy(result, m.notifications)
	return result
}

// GetAttempts returns a copy of all attempted sends (including failures)
func (m *MockNotifier) GetAttempts() []notify.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]notify.Notification, len(m.attempts))
	copy(result, m.attempts)
	return result
}

// SetError sets the error to return on Send calls
func (m *MockNotifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// SetDelay sets a delay before each Send call
func (m *MockNotifier) SetDelay(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendDelay = delay
}

// Clear resets the mock state
func (m *MockNotifier) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = []notify.Notification{}
	m.attempts = []notify.Notification{}
	m.sendErr = nil
	m.sendDelay = 0
}

// MockGate is a mock implementation of interfaces.ActivityGate
type MockGate struct {
	mu          sync.Mutex
	allowResult bool
	allowCount  int
	resetCount  int
}

// Ensure MockGate implements ActivityGate
var _ interfaces.ActivityGate = (*MockGate)(nil)

// NewMockGate creates a new mock gate
func NewMockGate(allowResult bool) *MockGate {
	return &MockGate{
		allowResult: allowResult,
	}
}

// Allow implements the ActivityGate interface
func (m *MockGate) Allow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowCount++
	return m.allowResult
}

// Reset implements the ActivityGate interface
func (m *MockGate) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetCount++
}

// SetAllowResult sets the result that Allow() will return
func (m *MockGate) SetAllowResult(allow bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowResult = allow
}

// GetAllowCount returns how many times Allow was called
func (m *MockGate) GetAllowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowCount
}

// GetResetCount returns how many times Reset was called
func (m *MockGate) GetResetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetCount
}

// MockActivitySink records activity marks
type MockActivitySink struct {
	mu    sync.Mutex
	count int
}

// Ensure MockActivitySink implements ActivitySink
var _ interfaces.ActivitySink = (*MockActivitySink)(nil)

// RecordActivity implements the ActivitySink interface
func (m *MockActivitySink) RecordActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
}

// ActivityCount returns how many activity marks were recorded
func (m *MockActivitySink) ActivityCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// MockLifecycleSink records pause and resume calls
type MockLifecycleSink struct {
	mu      sync.Mutex
	pauses  int
	resumes int
}

// Ensure MockLifecycleSink implements LifecycleSink
var _ interfaces.LifecycleSink = (*MockLifecycleSink)(nil)

// PauseForBackground implements the LifecycleSink interface
func (m *MockLifecycleSink) PauseForBackground() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauses++
}

// Resume implements the LifecycleSink interface
func (m *MockLifecycleSink) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes++
}

// PauseCount returns how many pauses were recorded
func (m *MockLifecycleSink) PauseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauses
}

// ResumeCount returns how many resumes were recorded
func (m *MockLifecycleSink) ResumeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resumes
}

// MockSessionSink combines activity and lifecycle recording
type MockSessionSink struct {
	MockActivitySink
	MockLifecycleSink
}

// Ensure MockSessionSink implements SessionSink
var _ interfaces.SessionSink = (*MockSessionSink)(nil)

// MockScreenEventHandler records screen events
type MockScreenEventHandler struct {
	mu        sync.Mutex
	clears    int
	focusIns  int
	focusOuts int
	titles    []string
}

// Ensure MockScreenEventHandler implements ScreenEventHandler
var _ interfaces.ScreenEventHandler = (*MockScreenEventHandler)(nil)

// HandleScreenClear implements the ScreenEventHandler interface
func (m *MockScreenEventHandler) HandleScreenClear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
}

// HandleTitleChange implements the ScreenEventHandler interface
func (m *MockScreenEventHandler) HandleTitleChange(title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.titles = append(m.titles, title)
}

// HandleFocusIn implements the ScreenEventHandler interface
func (m *MockScreenEventHandler) HandleFocusIn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.focusIns++
}

// HandleFocusOut implements the ScreenEventHandler interface
func (m *MockScreenEventHandler) HandleFocusOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.focusOuts++
}

// ClearCount returns how many screen clears were recorded
func (m *MockScreenEventHandler) ClearCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

// FocusCounts returns how many focus in and out events were recorded
func (m *MockScreenEventHandler) FocusCounts() (in, out int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.focusIns, m.focusOuts
}

// Titles returns a copy of the recorded title changes
func (m *MockScreenEventHandler) Titles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, len(m.titles))
	copy(result, m.titles)
	return result
}
