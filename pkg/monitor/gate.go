package monitor

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// SpacingGate enforces a minimum interval between activity marks so a
// burst of terminal output collapses into one. A zero interval lets
// every mark through.
type SpacingGate struct {
	mu       sync.Mutex
	clk      clockwork.Clock
	interval time.Duration
	last     time.Time
}

// NewSpacingGate creates a gate with the given minimum interval.
func NewSpacingGate(interval time.Duration, clk clockwork.Clock) *SpacingGate {
	return &SpacingGate{clk: clk, interval: interval}
}

// Allow reports whether a mark may pass, consuming the interval slot
// when it does.
func (g *SpacingGate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.interval <= 0 {
		return true
	}
	now := g.clk.Now()
	if !g.last.IsZero() && now.Sub(g.last) < g.interval {
		return false
	}
	g.last = now
	return true
}

// Reset clears the gate so the next mark passes immediately.
func (g *SpacingGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = time.Time{}
}

// SetInterval replaces the minimum interval, for configuration reloads.
func (g *SpacingGate) SetInterval(interval time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.interval = interval
}
