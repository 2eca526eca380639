package notify

import (
	"os"
	"path/filepath"
	"strings"
)

// ContextNotifier wraps another notifier and suffixes titles with
// where the session runs: working directory, terminal title, host.
type ContextNotifier struct {
	underlying   Notifier
	cwdBasename  string
	hostname     string
	terminalInfo func() string
}

// NewContextNotifier creates a context notifier. terminalInfo may be
// nil or return "" when the child has not set a title.
func NewContextNotifier(underlying Notifier, terminalInfo func() string) *ContextNotifier {
	cwdBasename := ""
	if cwd, err := os.Getwd(); err == nil {
		cwdBasename = filepath.Base(cwd)
	}
	hostname, _ := os.Hostname()

	return &ContextNotifier{
		underlying:   underlying,
		cwdBasename:  cwdBasename,
		hostname:     hostname,
		terminalInfo: terminalInfo,
	}
}

// Send implements the Notifier interface
func (cn *ContextNotifier) Send(notification Notification) error {
	parts := make([]string, 0, 3)
	if cn.cwdBasename != "" {
		parts = append(parts, cn.cwdBasename)
	}
	if cn.terminalInfo != nil {
		if title := strings.TrimSpace(cn.terminalInfo()); title != "" {
			parts = append(parts, title)
		}
	}
	if cn.hostname != "" {
		parts = append(parts, "on "+cn.hostname)
	}

	if len(parts) > 0 {
		notification.Title = notification.Title + " (" + strings.Join(parts, ", ") + ")"
	}

	return cn.underlying.Send(notification)
}
