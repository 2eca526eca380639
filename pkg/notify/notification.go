// Package notify delivers session lifecycle notifications.
package notify

import "time"

// Notification represents a notification to be sent.
type Notification struct {
	Title   string
	Message string
	Time    time.Time
	Event   string
}

// Notifier sends notifications.
type Notifier interface {
	Send(notification Notification) error
}
