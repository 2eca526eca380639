package testutil

import (
	"errors"
	"testing"

	"github.com/Veraticus/idlewatch/pkg/notify"
)

func TestMockNotifier(t *testing.T) {
	t.Run("successful send", func(t *testing.T) {
		mock := NewMockNotifier()
		n := notify.Notification{Title: "Test"}

		err := mock.Send(n)
		if err != nil {
			t.Errorf("Send() error = %v, want nil", err)
		}

		notifications := mock.GetNotifications()
		if len(notifications) != 1 {
			t.Errorf("GetNotifications() returned %d, want 1", len(notifications))
		}

		attempts := mock.GetAttempts()
		if len(attempts) != 1 {
			t.Errorf("GetAttempts() returned %d, want 1", len(attempts))
		}
	})

	t.Run("send with error", func(t *testing.T) {
		mock := NewMockNotifier()
		mockErr := errors.New("test error")
		mock.SetError(mockErr)

		n := notify.Notification{Title: "Test"}
		err := mock.Send(n)
		if err != mockErr {
			t.Errorf("Send() error = %v, want %v", err, mockErr)
		}

		// Should have no successful notifications
		notifications := mock.GetNotifications()
		if len(notifications) != 0 {
			t.Errorf("GetNotifications() returned %d, want 0", len(notifications))
		}

		// But should have an attempt
		attempts := mock.GetAttempts()
		if len(attempts) != 1 {
			t.Errorf("GetAttempts() returned %d, want 1", len(attempts))
		}
	})

	t.Run("clear state", func(t *testing.T) {
		mock := NewMockNotifier()
		_ = mock.Send(notify.Notification{Title: "Test"})
		mock.SetError(errors.New("error"))

		mock.Clear()

		if len(mock.GetNotifications()) != 0 {
			t.Error("Clear() did not reset notifications")
		}
		if len(mock.GetAttempts()) != 0 {
			t.Error("Clear() did not reset attempts")
		}

		// Error should be cleared
		err := mock.Send(notify.Notification{Title: "After clear"})
		if err != nil {
			t.Error("Clear() did not reset error")
		}
	})
}

func TestMockGate(t *testing.T) {
	t.Run("allow behavior", func(t *testing.T) {
		mock := NewMockGate(true)

		if !mock.Allow() {
			t.Error("Allow() = false, want true")
		}

		mock.SetAllowResult(false)
		if mock.Allow() {
			t.Error("Allow() = true, want false")
		}
	})

	t.Run("call counting", func(t *testing.T) {
		mock := NewMockGate(true)

		mock.Allow()
		mock.Allow()
		mock.Reset()
		mock.Allow()

		if mock.GetAllowCount() != 3 {
			t.Errorf("GetAllowCount() = %d, want 3", mock.GetAllowCount())
		}
		if mock.GetResetCount() != 1 {
			t.Errorf("GetResetCount() = %d, want 1", mock.GetResetCount())
		}
	})
}

func TestMockSessionSink(t *testing.T) {
	mock := &MockSessionSink{}

	mock.RecordActivity()
	mock.RecordActivity()
	mock.PauseForBackground()
	mock.Resume()

	if mock.ActivityCount() != 2 {
		t.Errorf("ActivityCount() = %d, want 2", mock.ActivityCount())
	}
	if mock.PauseCount() != 1 {
		t.Errorf("PauseCount() = %d, want 1", mock.PauseCount())
	}
	if mock.ResumeCount() != 1 {
		t.Errorf("ResumeCount() = %d, want 1", mock.ResumeCount())
	}
}

func TestMockScreenEventHandler(t *testing.T) {
	mock := &MockScreenEventHandler{}

	mock.HandleScreenClear()
	mock.HandleTitleChange("first")
	mock.HandleTitleChange("second")
	mock.HandleFocusIn()
	mock.HandleFocusOut()
	mock.HandleFocusOut()

	if mock.ClearCount() != 1 {
		t.Errorf("ClearCount() = %d, want 1", mock.ClearCount())
	}

	in, out := mock.FocusCounts()
	if in != 1 || out != 2 {
		t.Errorf("FocusCounts() = (%d, %d), want (1, 2)", in, out)
	}

	titles := mock.Titles()
	if len(titles) != 2 || titles[0] != "first" || titles[1] != "second" {
		t.Errorf("Titles() = %v, want [first second]", titles)
	}
}
