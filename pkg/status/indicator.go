package status

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Veraticus/idlewatch/pkg/inactivity"
	"github.com/Veraticus/idlewatch/pkg/interfaces"
)

// Indicator manages the session status display in the terminal
type Indicator struct {
	mu      sync.Mutex
	state   inactivity.State
	timeout time.Duration
	enabled bool
	writer  io.Writer
	clk     clockwork.Clock

	// Focus state tracking
	isFocused        bool
	focusReportingOn bool

	// Activity tracking for dynamic refresh
	lastActivity time.Time
	refreshChan  chan struct{}
}

// NewIndicator creates a new status indicator
func NewIndicator(writer io.Writer, enabled bool) *Indicator {
	return &Indicator{
		writer:      writer,
		enabled:     enabled,
		clk:         clockwork.NewRealClock(),
		isFocused:   true, // Assume focused by default
		refreshChan: make(chan struct{}, 1),
	}
}

// SetSnapshot updates the displayed session state
func (i *Indicator) SetSnapshot(state inactivity.State) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.state = state

	// Best effort - don't fail if we can't update the display
	_ = i.draw()
}

// SetTimeout sets the timeout used for the warning countdown
func (i *Indicator) SetTimeout(timeout time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.timeout = timeout
}

// draw renders the status line. Callers hold i.mu.
func (i *Indicator) draw() error {
	if !i.enabled || i.writer == nil {
		return nil
	}

	statusText := i.getStatusText()
	if statusText == "" {
		// If there's no status to show, don't do anything
		return nil
	}

	// Use DEC save/restore cursor (\0337/\0338) instead of standard
	// (\033[s/\033[u) because it's more widely supported across
	// terminals.
	//
	// The sequence breaks down as:
	// \0337 - DECSC: Save cursor position and attributes
	// \033[r - Reset scroll region to full screen
	// \033[999;1H - Move to line 999 (clamped to the actual last line)
	// \033[2K - Clear entire line
	// %s - Our status text
	// \0338 - DECRC: Restore cursor position and attributes
	sequence := fmt.Sprintf("\0337\033[r\033[999;1H\033[2K%s\0338", statusText)

	if _, err := fmt.Fprint(i.writer, sequence); err != nil {
		return err
	}

	return nil
}

// getStatusText returns the status text with color. Callers hold i.mu.
func (i *Indicator) getStatusText() string {
	var parts []string

	// Focus state indicator
	if i.focusReportingOn {
		if i.isFocused {
			parts = append(parts, "\033[36m◉\033[0m") // Cyan filled circle for focused
		} else {
			parts = append(parts, "\033[90m○\033[0m") // Gray empty circle for unfocused
		}
	}

	switch i.state.Phase {
	case inactivity.PhaseActive:
		part := "\033[32m▶\033[0m" // Green play for active
		if !i.state.LastActivityAt.IsZero() {
			part += fmt.Sprintf(" \033[90m%s\033[0m", formatClock(i.clk.Since(i.state.LastActivityAt)))
		}
		parts = append(parts, part)
	case inactivity.PhaseWarned:
		remaining := time.Duration(0)
		if i.timeout > 0 && !i.state.LastActivityAt.IsZero() {
			remaining = i.timeout - i.clk.Since(i.state.LastActivityAt)
		}
		parts = append(parts, fmt.Sprintf("\033[33m⚠ %s\033[0m", formatClock(remaining))) // Yellow countdown
	case inactivity.PhaseTimedOut:
		parts = append(parts, "\033[31m✖ timed out\033[0m") // Red X
	case inactivity.PhaseIdle:
		// Nothing to show for an idle session
	}

	if len(parts) == 0 {
		return ""
	}

	return strings.Join(parts, " ")
}

// formatClock formats a duration as M:SS for display.
func formatClock(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}

	totalSecs := int(d.Seconds())
	mins := totalSecs / 60
	secs := totalSecs % 60

	return fmt.Sprintf("%d:%02d", mins, secs)
}

// Clear removes the status line
func (i *Indicator) Clear() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.enabled || i.writer == nil {
		return nil
	}

	// Clear the status line using DEC save/restore
	sequence := "\0337\033[999;1H\033[2K\0338"
	if _, err := fmt.Fprint(i.writer, sequence); err != nil {
		return err
	}

	return nil
}

// StartAutoRefresh starts a goroutine that refreshes the display
// periodically so idle clocks and countdowns keep moving
func (i *Indicator) StartAutoRefresh(stopChan <-chan struct{}) {
	go func() {
		// Use dynamic refresh intervals
		normalInterval := 2 * time.Second
		activeInterval := 100 * time.Millisecond

		ticker := time.NewTicker(normalInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				i.mu.Lock()
				// Check if we've had recent activity
				isActive := i.clk.Since(i.lastActivity) < 500*time.Millisecond
				_ = i.draw() // Best effort
				i.mu.Unlock()

				// Adjust ticker interval based on activity
				if isActive {
					ticker.Reset(activeInterval)
				} else {
					ticker.Reset(normalInterval)
				}
			case <-i.refreshChan:
				// Immediate refresh requested
				i.mu.Lock()
				_ = i.draw()
				i.mu.Unlock()
			case <-stopChan:
				_ = i.Clear() // Best effort
				return
			}
		}
	}()
}

// HandleScreenClear implements interfaces.ScreenEventHandler. The
// status row just got wiped, so request an immediate redraw.
func (i *Indicator) HandleScreenClear() {
	i.mu.Lock()
	i.lastActivity = i.clk.Now()
	i.mu.Unlock()

	if i.enabled {
		// Trigger immediate refresh
		select {
		case i.refreshChan <- struct{}{}:
		default:
			// Channel is full, refresh already pending
		}
	}
}

// HandleTitleChange implements interfaces.ScreenEventHandler
func (i *Indicator) HandleTitleChange(title string) {
	// No-op for the status line
}

// HandleFocusIn implements interfaces.ScreenEventHandler
func (i *Indicator) HandleFocusIn() {
	i.mu.Lock()
	i.isFocused = true
	_ = i.draw()
	i.mu.Unlock()
}

// HandleFocusOut implements interfaces.ScreenEventHandler
func (i *Indicator) HandleFocusOut() {
	i.mu.Lock()
	i.isFocused = false
	_ = i.draw()
	i.mu.Unlock()
}

// SetFocusReportingEnabled updates whether the focus marker is shown
func (i *Indicator) SetFocusReportingEnabled(enabled bool) {
	i.mu.Lock()
	i.focusReportingOn = enabled
	_ = i.draw()
	i.mu.Unlock()
}

// MarkActivity marks that there has been recent activity
func (i *Indicator) MarkActivity() {
	i.mu.Lock()
	i.lastActivity = i.clk.Now()
	i.mu.Unlock()
}

// Ensure Indicator implements ScreenEventHandler
var _ interfaces.ScreenEventHandler = (*Indicator)(nil)
