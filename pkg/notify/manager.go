package notify

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Manager routes notifications to the active notifier. It applies
// quiet mode, supports swapping the notifier on configuration reloads,
// and logs delivery failures to stderr so the session keeps running.
// The last delivered notification is kept for inspection.
type Manager struct {
	mu       sync.Mutex
	notifier Notifier
	quiet    bool
	last     Notification
	sent     bool
}

// NewManager creates a new notification manager.
func NewManager(notifier Notifier, quiet bool) *Manager {
	return &Manager{
		notifier: notifier,
		quiet:    quiet,
	}
}

// Send delivers the notification unless quiet mode suppresses it. A
// zero Time is stamped with the current time.
func (m *Manager) Send(notification Notification) error {
	m.mu.Lock()
	notifier := m.notifier
	quiet := m.quiet
	m.mu.Unlock()

	if quiet || notifier == nil {
		return nil
	}

	if notification.Time.IsZero() {
		notification.Time = time.Now()
	}

	if err := notifier.Send(notification); err != nil {
		fmt.Fprintf(os.Stderr, "idlewatch: notification error: %v\n", err)
		return err
	}

	m.mu.Lock()
	m.last = notification
	m.sent = true
	m.mu.Unlock()
	return nil
}

// Last returns the most recently delivered notification, if any.
// Suppressed and failed sends do not count.
func (m *Manager) Last() (Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.sent
}

// SetNotifier replaces the underlying notifier.
func (m *Manager) SetNotifier(notifier Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = notifier
}

// SetQuiet toggles quiet mode.
func (m *Manager) SetQuiet(quiet bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quiet = quiet
}
