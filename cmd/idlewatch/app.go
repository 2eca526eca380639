package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mattn/go-isatty"

	"github.com/Veraticus/idlewatch/pkg/bridge"
	"github.com/Veraticus/idlewatch/pkg/config"
	"github.com/Veraticus/idlewatch/pkg/inactivity"
	"github.com/Veraticus/idlewatch/pkg/monitor"
	"github.com/Veraticus/idlewatch/pkg/notify"
	"github.com/Veraticus/idlewatch/pkg/process"
	"github.com/Veraticus/idlewatch/pkg/status"
)

// terminateGrace is how long a timed-out child gets to exit after
// SIGTERM before it is killed.
const terminateGrace = 5 * time.Second

// processRunner is the slice of the process manager the application
// drives.
type processRunner interface {
	Start(command string, args []string) error
	Wait() error
	Stop() error
	Terminate(grace time.Duration) error
	ExitCode() int
}

// Dependencies holds all the dependencies for the application
type Dependencies struct {
	Config              *config.Config
	Clock               clockwork.Clock
	Engine              *inactivity.Engine
	Gate                *monitor.SpacingGate
	Monitor             *monitor.SessionMonitor
	Notifier            notify.Notifier
	NotificationManager *notify.Manager
	ProcessManager      processRunner
	StatusIndicator     *status.Indicator
	StatusReporter      *status.Reporter
	Watcher             *config.Watcher
	Broadcaster         *bridge.Broadcaster
	BridgeServer        *bridge.Server

	mu       sync.Mutex
	stopChan chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewDependencies creates all dependencies with the given configuration
func NewDependencies(cfg *config.Config) (*Dependencies, error) {
	ctx, cancel := context.WithCancel(context.Background())
	deps := &Dependencies{
		Config:   cfg,
		Clock:    clockwork.NewRealClock(),
		stopChan: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	engine, err := inactivity.NewWithClock(cfg.Policy(), deps.Clock)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create inactivity engine: %w", err)
	}
	deps.Engine = engine

	// Status line on stderr, only when stderr is a terminal
	statusEnabled := isatty.IsTerminal(os.Stderr.Fd()) && !cfg.Quiet
	deps.StatusIndicator = status.NewIndicator(os.Stderr, statusEnabled)
	deps.StatusIndicator.SetTimeout(cfg.Timeout)
	deps.StatusIndicator.SetFocusReportingEnabled(cfg.FocusTracking)
	deps.StatusReporter = status.NewReporter(deps.StatusIndicator)

	// Keep the indicator visible despite the child's screen clears
	deps.StatusIndicator.StartAutoRefresh(deps.stopChan)

	// Notification chain
	deps.Notifier = buildNotifier(cfg, deps.monitorTitle)
	deps.NotificationManager = notify.NewManager(deps.Notifier, cfg.Quiet)

	// Activity monitoring
	deps.Gate = monitor.NewSpacingGate(cfg.MinActivitySpacing, deps.Clock)
	deps.Monitor = monitor.NewSessionMonitor(engine, deps.Gate, monitor.NewPatternSet(cfg.IgnorePatterns), cfg.FocusTracking)
	if statusEnabled {
		deps.Monitor.SetScreenEventHandler(deps.StatusIndicator)
	}

	deps.ProcessManager = process.NewManager(cfg, deps.Monitor, deps.Monitor.InputHandler())

	return deps, nil
}

// buildNotifier assembles the notifier chain for a configuration: ntfy
// when a topic is set, plain stdout otherwise, both wrapped with
// session context.
func buildNotifier(cfg *config.Config, title func() string) notify.Notifier {
	var base notify.Notifier
	if cfg.NtfyTopic != "" {
		base = notify.NewNtfyClient(cfg.NtfyServer, cfg.NtfyTopic)
	} else {
		base = notify.NewStdoutNotifier()
	}
	return notify.NewContextNotifier(base, title)
}

// monitorTitle reads the child's terminal title lazily so the notifier
// chain can be built before the monitor exists.
func (d *Dependencies) monitorTitle() string {
	if d.Monitor == nil {
		return ""
	}
	return d.Monitor.Title()
}

// currentConfig returns the live configuration, which reloads swap out.
func (d *Dependencies) currentConfig() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Config
}

// ApplyConfig pushes a reloaded configuration into the running
// components. The caller has already applied command-line overrides.
// A policy the engine rejects drops the whole reload so the parts
// never disagree with each other.
func (d *Dependencies) ApplyConfig(cfg *config.Config) {
	if err := d.Engine.UpdateConfig(cfg.Policy()); err != nil {
		fmt.Fprintf(os.Stderr, "idlewatch: config reload rejected: %v\n", err)
		return
	}

	d.Gate.SetInterval(cfg.MinActivitySpacing)
	d.Monitor.SetPatterns(monitor.NewPatternSet(cfg.IgnorePatterns))
	d.Monitor.SetFocusTracking(cfg.FocusTracking)
	d.NotificationManager.SetQuiet(cfg.Quiet)
	d.NotificationManager.SetNotifier(buildNotifier(cfg, d.monitorTitle))
	d.StatusIndicator.SetTimeout(cfg.Timeout)
	d.StatusIndicator.SetFocusReportingEnabled(cfg.FocusTracking)

	d.mu.Lock()
	d.Config = cfg
	d.mu.Unlock()

	if debugEnabled() {
		fmt.Fprintf(os.Stderr, "idlewatch: config reloaded: timeout=%s warning=%s\n",
			cfg.Timeout, cfg.WarningThreshold)
	}
}

// Close cleans up all dependencies
func (d *Dependencies) Close() {
	// Stop the config watcher
	if d.cancel != nil {
		d.cancel()
	}

	// Stop status indicator refresh
	if d.stopChan != nil {
		select {
		case <-d.stopChan:
			// Already closed
		default:
			close(d.stopChan)
		}
		d.stopChan = nil
	}

	if d.BridgeServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = d.BridgeServer.Shutdown(ctx)
		cancel()
	}

	if d.StatusIndicator != nil {
		_ = d.StatusIndicator.Clear() // Best effort
	}

	if d.Engine != nil {
		d.Engine.Close()
	}
}

// Application represents the main application
type Application struct {
	deps *Dependencies

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// NewApplication creates a new application with the given dependencies
func NewApplication(deps *Dependencies) *Application {
	return &Application{
		deps: deps,
	}
}

// Run starts the wrapped command and blocks until it exits. Engine
// events are pumped into notifications, the status line, and the
// bridge for as long as the child runs.
func (a *Application) Run(command string, args []string) error {
	deps := a.deps
	cfg := deps.currentConfig()

	sub, err := deps.Engine.Subscribe()
	if err != nil {
		return err
	}

	if cfg.ListenAddr != "" {
		hello := bridge.NewHello(commandLine(command, args), time.Now(), deps.Engine.Policy())
		deps.Broadcaster = bridge.NewBroadcaster(hello, deps.Engine.State)
		deps.BridgeServer = bridge.NewServer(cfg.ListenAddr, deps.Broadcaster)
		if err := deps.BridgeServer.Start(); err != nil {
			sub.Cancel()
			return err
		}
	}

	if deps.Watcher != nil {
		go func() {
			if err := deps.Watcher.Run(deps.ctx); err != nil {
				fmt.Fprintf(os.Stderr, "idlewatch: config watcher stopped: %v\n", err)
			}
		}()
	}

	a.wg.Add(1)
	go a.pumpEvents(sub)

	a.notifyStartup(command)

	deps.Engine.StartTimer()

	if err := deps.ProcessManager.Start(command, args); err != nil {
		deps.Engine.Close()
		a.wg.Wait()
		return err
	}

	err = deps.ProcessManager.Wait()

	if deps.Monitor != nil {
		deps.Monitor.Flush()
	}
	deps.Engine.Close()
	a.wg.Wait()
	return err
}

// pumpEvents drains the engine's event stream until it completes.
func (a *Application) pumpEvents(sub *inactivity.Subscription) {
	defer a.wg.Done()
	for event := range sub.Events() {
		a.handleEvent(event)
	}
}

// handleEvent fans one engine event out to the status line, the
// bridge, and notifications. A timeout can also end the session when
// the configuration asks for that.
func (a *Application) handleEvent(event inactivity.Event) {
	deps := a.deps

	if deps.StatusReporter != nil {
		deps.StatusReporter.HandleEvent(event)
	}
	if deps.Broadcaster != nil {
		deps.Broadcaster.BroadcastEvent(event)
	}

	switch event.Type {
	case inactivity.EventWarning:
		if deps.NotificationManager != nil {
			_ = deps.NotificationManager.Send(notify.Notification{
				Title: "Session going idle",
				Message: fmt.Sprintf("No activity for %ds, timing out in %ds",
					event.State.SecondsSinceLastActivity, event.SecondsRemaining),
				Time:  event.At,
				Event: "warning",
			})
		}
	case inactivity.EventTimeout:
		if deps.NotificationManager != nil {
			_ = deps.NotificationManager.Send(notify.Notification{
				Title:   "Session timed out",
				Message: fmt.Sprintf("No activity for %ds", event.State.SecondsSinceLastActivity),
				Time:    event.At,
				Event:   "timeout",
			})
		}
		if deps.currentConfig().TerminateOnTimeout {
			if err := deps.ProcessManager.Terminate(terminateGrace); err != nil {
				fmt.Fprintf(os.Stderr, "idlewatch: failed to end session after timeout: %v\n", err)
			}
		}
	}
}

// notifyStartup announces the session start when configured. Quiet
// mode is the manager's call.
func (a *Application) notifyStartup(command string) {
	if !a.deps.currentConfig().StartupNotify || a.deps.NotificationManager == nil {
		return
	}
	_ = a.deps.NotificationManager.Send(notify.Notification{
		Title:   "Session started",
		Message: fmt.Sprintf("Watching %s", command),
		Time:    time.Now(),
		Event:   "startup",
	})
}

// Stop gracefully stops the wrapped process. Safe to call more than
// once; later calls return the first result.
func (a *Application) Stop() error {
	a.stopOnce.Do(func() {
		a.stopErr = a.deps.ProcessManager.Stop()
	})
	return a.stopErr
}

// ExitCode returns the exit code of the wrapped process
func (a *Application) ExitCode() int {
	return a.deps.ProcessManager.ExitCode()
}

// commandLine joins a command and its arguments for display.
func commandLine(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	return command + " " + strings.Join(args, " ")
}

func debugEnabled() bool {
	return os.Getenv("IDLEWATCH_DEBUG") == "true"
}
