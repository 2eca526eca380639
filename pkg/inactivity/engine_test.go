package inactivity

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeAdvancer is the slice of clockwork's fake clock the tests drive.
type fakeAdvancer interface {
	Advance(d time.Duration)
	BlockUntil(n int)
}

// advanceSeconds steps the fake clock one second at a time, waiting for
// the engine's next check to be armed before each step so ticks land
// exactly on whole-second boundaries.
func advanceSeconds(fc fakeAdvancer, n int) {
	for i := 0; i < n; i++ {
		fc.BlockUntil(1)
		fc.Advance(time.Second)
	}
}

// waitEvent receives the next event with a real-time guard so a broken
// scheduler fails the test instead of hanging it.
func waitEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("event stream completed while waiting for an event")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
	}
	return Event{}
}

func waitClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Fatalf("expected stream to complete, got %v event", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream to complete")
	}
}

func expectNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("stream completed unexpectedly")
		}
		t.Fatalf("expected no event, got %v", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within 2s: %s", msg)
}

func TestNewRejectsInvalidPolicy(t *testing.T) {
	if _, err := New(Policy{}); err == nil {
		t.Error("expected construction to fail with zero timeout")
	}
	fc := clockwork.NewFakeClockAt(testBase)
	if _, err := NewWithClock(Policy{Timeout: time.Second, WarningThreshold: time.Second}, fc); err == nil {
		t.Error("expected construction to fail with warning threshold >= timeout")
	}
}

func TestRecordActivityResetsWindow(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testBase)
	eng, err := NewWithClock(Policy{Timeout: 10 * time.Second, WarningThreshold: 5 * time.Second}, fc)
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	defer eng.Close()

	eng.StartTimer()
	advanceSeconds(fc, 3)
	eventually(t, func() bool { return eng.State().SecondsSinceLastActivity == 3 }, "tick observes 3s idle")

	eng.RecordActivity()

	st := eng.State()
	if st.SecondsSinceLastActivity != 0 {
		t.Errorf("expected 0 seconds since activity, got %d", st.SecondsSinceLastActivity)
	}
	if st.WarningIssued {
		t.Error("expected warning flag clear after activity")
	}
	if st.Phase != PhaseActive {
		t.Errorf("expected phase active, got %v", st.Phase)
	}
	if !st.LastActivityAt.Equal(testBase.Add(3 * time.Second)) {
		t.Errorf("expected last activity at +3s, got %v", st.LastActivityAt)
	}
}

func TestTimeoutFiresExactlyOnceThenStops(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testBase)
	eng, err := NewWithClock(Policy{Timeout: 10 * time.Second}, fc)
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	defer eng.Close()
	sub, err := eng.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	eng.StartTimer()
	if ev := waitEvent(t, sub); ev.Type != EventStarted {
		t.Fatalf("expected started, got %v", ev.Type)
	}

	advanceSeconds(fc, 10)

	ev := waitEvent(t, sub)
	if ev.Type != EventTimeout {
		t.Fatalf("expected timeout, got %v", ev.Type)
	}
	if !ev.At.Equal(testBase.Add(10 * time.Second)) {
		t.Errorf("expected timeout at +10s, got %v", ev.At)
	}
	if ev.State.Phase != PhaseTimedOut || ev.State.TimerActive {
		t.Errorf("expected timed_out snapshot with inactive timer, got %+v", ev.State)
	}
	waitClosed(t, sub)

	st := eng.State()
	if st.Phase != PhaseTimedOut || st.TimerActive {
		t.Errorf("expected terminal timed_out state, got %+v", st)
	}

	// Nothing is scheduled after the timeout until a new start/activity.
	fc.Advance(30 * time.Second)
	if got := eng.State(); got != st {
		t.Errorf("state changed after timeout with no operations: %+v vs %+v", got, st)
	}
}

func TestWarningThenTimeoutSequence(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testBase)
	eng, err := NewWithClock(Policy{Timeout: 10 * time.Second, WarningThreshold: 5 * time.Second}, fc)
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	defer eng.Close()
	sub, err := eng.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	eng.StartTimer()
	if ev := waitEvent(t, sub); ev.Type != EventStarted {
		t.Fatalf("expected started, got %v", ev.Type)
	}

	advanceSeconds(fc, 5)
	warn := waitEvent(t, sub)
	if warn.Type != EventWarning {
		t.Fatalf("expected warning, got %v", warn.Type)
	}
	if warn.SecondsRemaining != 5 {
		t.Errorf("expected 5 seconds remaining, got %d", warn.SecondsRemaining)
	}
	if !warn.At.Equal(testBase.Add(5 * time.Second)) {
		t.Errorf("expected warning at +5s, got %v", warn.At)
	}
	if warn.State.Phase != PhaseWarned || !warn.State.WarningIssued || !warn.State.TimerActive {
		t.Errorf("expected warned snapshot with live timer, got %+v", warn.State)
	}

	advanceSeconds(fc, 5)
	out := waitEvent(t, sub)
	if out.Type != EventTimeout {
		t.Fatalf("expected the event after warning to be timeout, got %v", out.Type)
	}
	if !out.At.Equal(testBase.Add(10 * time.Second)) {
		t.Errorf("expected timeout at +10s, got %v", out.At)
	}
	waitClosed(t, sub)
}

func TestWarningFiresAgainAfterActivity(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testBase)
	eng, err := NewWithClock(Policy{Timeout: 10 * time.Second, WarningThreshold: 5 * time.Second}, fc)
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	defer eng.Close()
	sub, err := eng.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	eng.StartTimer()
	if ev := waitEvent(t, sub); ev.Type != EventStarted {
		t.Fatalf("expected started, got %v", ev.Type)
	}
	advanceSeconds(fc, 5)
	if ev := waitEvent(t, sub); ev.Type != EventWarning {
		t.Fatalf("expected warning, got %v", ev.Type)
	}

	// Activity at +5s opens a new window and clears the warned phase.
	eng.RecordActivity()
	if ev := waitEvent(t, sub); ev.Type != EventActivityDetected {
		t.Fatalf("expected activity, got %v", ev.Type)
	}
	st := eng.State()
	if st.Phase != PhaseActive || st.WarningIssued {
		t.Errorf("expected active phase with clear warning flag, got %+v", st)
	}

	// The new window warns on its own schedule, 5 idle seconds later.
	advanceSeconds(fc, 5)
	warn := waitEvent(t, sub)
	if warn.Type != EventWarning {
		t.Fatalf("expected second-window warning, got %v", warn.Type)
	}
	if !warn.At.Equal(testBase.Add(10 * time.Second)) {
		t.Errorf("expected second warning at +10s, got %v", warn.At)
	}
}

func TestStopTimerIdempotent(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testBase)
	eng, err := NewWithClock(Policy{Timeout: 10 * time.Second}, fc)
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	defer eng.Close()

	eng.StartTimer()
	eng.StopTimer()
	first := eng.State()
	if first.TimerActive {
		t.Fatal("expected timer inactive after StopTimer")
	}
	if first.Phase != PhaseIdle {
		t.Fatalf("expected idle phase after StopTimer, got %v", first.Phase)
	}

	eng.StopTimer()
	if second := eng.State(); second != first {
		t.Errorf("second StopTimer changed state: %+v vs %+v", second, first)
	}
}

func TestPauseIdempotent(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testBase)
	eng, err := NewWithClock(Policy{Timeout: 10 * time.Second}, fc)
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	defer eng.Close()

	eng.StartTimer()
	eng.PauseForBackground()
	first := eng.State()
	if first.TimerActive {
		t.Fatal("expected pause to stop the timer")
	}
	if !first.BackgroundedAt.Equal(testBase) {
		t.Fatalf("expected backgroundedAt stamped, got %v", first.BackgroundedAt)
	}

	eng.PauseForBackground()
	if second := eng.State(); second != first {
		t.Errorf("second pause changed state: %+v vs %+v", second, first)
	}
}

func TestBackgroundTimeoutOnResume(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testBase)
	eng, err := NewWithClock(Policy{Timeout: 10 * time.Second}, fc)
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	defer eng.Close()
	sub, err := eng.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	eng.StartTimer()
	if ev := waitEvent(t, sub); ev.Type != EventStarted {
		t.Fatalf("expected started, got %v", ev.Type)
	}
	advanceSeconds(fc, 3)
	eng.PauseForBackground()

	// 9 backgrounded seconds pass; no checks may fire in between.
	fc.Advance(9 * time.Second)
	expectNoEvent(t, sub)

	eng.Resume()
	ev := waitEvent(t, sub)
	if ev.Type != EventTimeout {
		t.Fatalf("expected immediate timeout on resume, got %v", ev.Type)
	}
	if !ev.At.Equal(testBase.Add(12 * time.Second)) {
		t.Errorf("expected timeout at +12s, got %v", ev.At)
	}
	waitClosed(t, sub)
}

func TestBackgroundWarningAfterResume(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testBase)
	eng, err := NewWithClock(Policy{Timeout: 10 * time.Second, WarningThreshold: 5 * time.Second}, fc)
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	defer eng.Close()
	sub, err := eng.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	eng.StartTimer()
	if ev := waitEvent(t, sub); ev.Type != EventStarted {
		t.Fatalf("expected started, got %v", ev.Type)
	}

	// Backgrounded for 4s right after the window opened: the whole span
	// counts as inactivity, but it is not yet inside the warning band.
	eng.PauseForBackground()
	fc.Advance(4 * time.Second)
	eng.Resume()
	expectNoEvent(t, sub)

	advanceSeconds(fc, 1)
	warn := waitEvent(t, sub)
	if warn.Type != EventWarning {
		t.Fatalf("expected warning one second after resume, got %v", warn.Type)
	}
	if !warn.At.Equal(testBase.Add(5 * time.Second)) {
		t.Errorf("expected warning at +5s, got %v", warn.At)
	}
	if warn.SecondsRemaining != 5 {
		t.Errorf("expected 5 seconds remaining, got %d", warn.SecondsRemaining)
	}

	advanceSeconds(fc, 5)
	out := waitEvent(t, sub)
	if out.Type != EventTimeout {
		t.Fatalf("expected timeout, got %v", out.Type)
	}
	if !out.At.Equal(testBase.Add(10 * time.Second)) {
		t.Errorf("expected timeout at +10s, got %v", out.At)
	}
	waitClosed(t, sub)
}

func TestResumeIssuesWarningImmediately(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testBase)
	eng, err := NewWithClock(Policy{Timeout: 10 * time.Second, WarningThreshold: 5 * time.Second}, fc)
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	defer eng.Close()
	sub, err := eng.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	eng.StartTimer()
	if ev := waitEvent(t, sub); ev.Type != EventStarted {
		t.Fatalf("expected started, got %v", ev.Type)
	}
	eng.PauseForBackground()
	fc.Advance(9 * time.Second)

	eng.Resume()
	warn := waitEvent(t, sub)
	if warn.Type != EventWarning {
		t.Fatalf("expected warning on resume inside the band, got %v", warn.Type)
	}
	if warn.SecondsRemaining != 1 {
		t.Errorf("expected 1 second remaining, got %d", warn.SecondsRemaining)
	}

	advanceSeconds(fc, 1)
	if ev := waitEvent(t, sub); ev.Type != EventTimeout {
		t.Fatalf("expected timeout, got %v", ev.Type)
	}
	waitClosed(t, sub)
}

func TestResumePastDeadlineSkipsWarning(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testBase)
	eng, err := NewWithClock(Policy{Timeout: 10 * time.Second, WarningThreshold: 5 * time.Second}, fc)
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	defer eng.Close()
	sub, err := eng.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	eng.StartTimer()
	if ev := waitEvent(t, sub); ev.Type != EventStarted {
		t.Fatalf("expected started, got %v", ev.Type)
	}
	eng.PauseForBackground()
	fc.Advance(12 * time.Second)

	eng.Resume()
	ev := waitEvent(t, sub)
	if ev.Type != EventTimeout {
		t.Fatalf("expected timeout only, got %v", ev.Type)
	}
	waitClosed(t, sub)
}

func TestDisableTrackingCancelsAndIgnoresActivity(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testBase)
	eng, err := NewWithClock(Policy{Timeout: 10 * time.Second}, fc)
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	defer eng.Close()
	sub, err := eng.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	eng.StartTimer()
	if ev := waitEvent(t, sub); ev.Type != EventStarted {
		t.Fatalf("expected started, got %v", ev.Type)
	}

	eng.SetTrackingEnabled(false)
	st := eng.State()
	if st.TrackingEnabled || st.TimerActive || st.Phase != PhaseIdle {
		t.Fatalf("expected idle untracked state, got %+v", st)
	}

	fc.Advance(20 * time.Second)
	expectNoEvent(t, sub)

	eng.RecordActivity()
	if got := eng.State(); got != st {
		t.Errorf("activity while disabled mutated state: %+v vs %+v", got, st)
	}
	expectNoEvent(t, sub)

	eng.SetTrackingEnabled(true)
	ev := waitEvent(t, sub)
	if ev.Type != EventStarted {
		t.Fatalf("expected started on re-enable, got %v", ev.Type)
	}
	st = eng.State()
	if !st.TimerActive || st.Phase != PhaseActive {
		t.Errorf("expected fresh active window, got %+v", st)
	}
	if !st.LastActivityAt.Equal(testBase.Add(20 * time.Second)) {
		t.Errorf("expected window stamped at re-enable time, got %v", st.LastActivityAt)
	}
}

func TestUpdateConfigClearsWarningIssued(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testBase)
	eng, err := NewWithClock(Policy{Timeout: 10 * time.Second, WarningThreshold: 5 * time.Second}, fc)
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	defer eng.Close()
	sub, err := eng.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	eng.StartTimer()
	if ev := waitEvent(t, sub); ev.Type != EventStarted {
		t.Fatalf("expected started, got %v", ev.Type)
	}
	advanceSeconds(fc, 5)
	if ev := waitEvent(t, sub); ev.Type != EventWarning {
		t.Fatalf("expected warning, got %v", ev.Type)
	}
	before := eng.State()
	if !before.WarningIssued {
		t.Fatal("expected warning flag set before config update")
	}

	if err := eng.UpdateConfig(Policy{Timeout: 10 * time.Second, WarningThreshold: 2 * time.Second}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	st := eng.State()
	if st.WarningIssued {
		t.Error("expected config update to clear the warning flag")
	}
	if !st.LastActivityAt.Equal(before.LastActivityAt) {
		t.Errorf("config update must not touch the activity timestamp: %v vs %v", st.LastActivityAt, before.LastActivityAt)
	}
	if st.Phase != PhaseActive {
		t.Errorf("expected phase back to active, got %v", st.Phase)
	}

	// The warning is re-decided under the new threshold at +8s.
	advanceSeconds(fc, 3)
	warn := waitEvent(t, sub)
	if warn.Type != EventWarning {
		t.Fatalf("expected re-issued warning, got %v", warn.Type)
	}
	if warn.SecondsRemaining != 2 {
		t.Errorf("expected 2 seconds remaining, got %d", warn.SecondsRemaining)
	}

	advanceSeconds(fc, 2)
	if ev := waitEvent(t, sub); ev.Type != EventTimeout {
		t.Fatalf("expected timeout, got %v", ev.Type)
	}
	waitClosed(t, sub)
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testBase)
	eng, err := NewWithClock(Policy{Timeout: 10 * time.Second}, fc)
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	defer eng.Close()

	if err := eng.UpdateConfig(Policy{Timeout: -time.Second}); err == nil {
		t.Fatal("expected invalid policy to be rejected")
	}
	if got := eng.Policy().Timeout; got != 10*time.Second {
		t.Errorf("expected policy unchanged after rejected update, got timeout %v", got)
	}
}

func TestStartTimerReArms(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testBase)
	eng, err := NewWithClock(Policy{Timeout: 10 * time.Second}, fc)
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	defer eng.Close()
	sub, err := eng.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	eng.StartTimer()
	if ev := waitEvent(t, sub); ev.Type != EventStarted {
		t.Fatalf("expected started, got %v", ev.Type)
	}
	advanceSeconds(fc, 3)

	// Re-arm at +3s restarts the window from there.
	eng.StartTimer()
	if ev := waitEvent(t, sub); ev.Type != EventStarted {
		t.Fatalf("expected started on re-arm, got %v", ev.Type)
	}

	advanceSeconds(fc, 10)
	ev := waitEvent(t, sub)
	if ev.Type != EventTimeout {
		t.Fatalf("expected timeout, got %v", ev.Type)
	}
	if !ev.At.Equal(testBase.Add(13 * time.Second)) {
		t.Errorf("expected timeout at +13s after re-arm, got %v", ev.At)
	}
	waitClosed(t, sub)
}

func TestStaleTickDiscarded(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testBase)
	eng, err := NewWithClock(Policy{Timeout: 10 * time.Second}, fc)
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	defer eng.Close()

	eng.StartTimer()
	before := eng.State()

	eng.mu.Lock()
	current := eng.gen
	eng.mu.Unlock()

	eng.tick(current - 1)
	if got := eng.State(); got != before {
		t.Errorf("superseded tick mutated state: %+v vs %+v", got, before)
	}
	eng.tick(current + 5)
	if got := eng.State(); got != before {
		t.Errorf("unknown-generation tick mutated state: %+v vs %+v", got, before)
	}
}

func TestCloseCancelsOutstanding(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testBase)
	eng, err := NewWithClock(Policy{Timeout: 10 * time.Second}, fc)
	if err != nil {
		t.Fatalf("NewWithClock: %v", err)
	}
	sub, err := eng.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	eng.StartTimer()
	if ev := waitEvent(t, sub); ev.Type != EventStarted {
		t.Fatalf("expected started, got %v", ev.Type)
	}

	eng.Close()
	waitClosed(t, sub)

	st := eng.State()
	if st.TimerActive || st.TrackingEnabled || st.Phase != PhaseIdle {
		t.Errorf("expected closed engine to be idle, got %+v", st)
	}

	// No effects after disposal.
	fc.Advance(time.Minute)
	eng.RecordActivity()
	eng.StartTimer()
	if got := eng.State(); got != st {
		t.Errorf("operations after Close mutated state: %+v vs %+v", got, st)
	}
	if _, err := eng.Subscribe(); err != ErrEngineClosed {
		t.Errorf("expected ErrEngineClosed, got %v", err)
	}
}

func TestPollInterval(t *testing.T) {
	tests := []struct {
		name      string
		remaining time.Duration
		want      time.Duration
	}{
		{"at deadline", 0, time.Second},
		{"under ten seconds", 7 * time.Second, time.Second},
		{"ten seconds", 10 * time.Second, time.Second},
		{"under a minute", 45 * time.Second, 5 * time.Second},
		{"one minute", time.Minute, 5 * time.Second},
		{"under five minutes", 4 * time.Minute, 30 * time.Second},
		{"under ten minutes", 9 * time.Minute, time.Minute},
		{"far from deadline", time.Hour, 5 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pollInterval(tt.remaining); got != tt.want {
				t.Errorf("pollInterval(%v) = %v, want %v", tt.remaining, got, tt.want)
			}
		})
	}
}
