package process

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Veraticus/idlewatch/pkg/config"
	"github.com/Veraticus/idlewatch/pkg/interfaces"
)

// wrappedEnv marks a process tree that is already running under
// idlewatch so nested invocations refuse to wrap again.
const wrappedEnv = "IDLEWATCH_WRAPPED"

// Manager manages the wrapped process
type Manager struct {
	config   *config.Config
	pty      PTY
	output   interfaces.DataHandler
	input    interfaces.DataHandler
	exitCode int
	mu       sync.Mutex
	sigChan  chan os.Signal
	done     chan struct{}
}

// NewManager creates a new process manager
func NewManager(cfg *config.Config, output, input interfaces.DataHandler) *Manager {
	return &Manager{
		config: cfg,
		pty:    NewPTYManager(),
		output: output,
		input:  input,
		done:   make(chan struct{}),
	}
}

// Start starts the wrapped process
func (m *Manager) Start(command string, args []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check for self-wrap
	if os.Getenv(wrappedEnv) == "1" {
		return fmt.Errorf("already wrapped by idlewatch")
	}

	env := append(os.Environ(), wrappedEnv+"=1")

	// Start the process with PTY
	if err := m.pty.Start(command, args, env); err != nil {
		return fmt.Errorf("failed to start process: %w", err)
	}

	// Start I/O copying with output and input handling
	go func() {
		err := m.pty.CopyIO(os.Stdin, os.Stdout, m.output, m.input, m.config.FocusTracking)
		if err != nil {
			fmt.Fprintf(os.Stderr, "idlewatch: I/O error: %v\n", err)
		}
	}()

	// Setup signal forwarding
	m.setupSignalForwarding()

	return nil
}

// Wait waits for the process to exit
func (m *Manager) Wait() error {
	if m.pty == nil {
		return fmt.Errorf("process not started")
	}

	err := m.pty.Wait()

	m.mu.Lock()
	if state := m.pty.ProcessState(); state != nil {
		m.exitCode = state.ExitCode()
	}
	m.mu.Unlock()

	// Ensure terminal is restored
	_ = m.pty.Stop()

	// Signal that we're done
	close(m.done)

	// Cleanup signal handling
	m.cleanupSignals()

	return err
}

// ExitCode returns the exit code of the process
func (m *Manager) ExitCode() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exitCode
}

// setupSignalForwarding sets up signal forwarding to the child process
func (m *Manager) setupSignalForwarding() {
	m.sigChan = make(chan os.Signal, 1)
	signal.Notify(m.sigChan,
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGHUP,
		syscall.SIGQUIT,
		syscall.SIGUSR1,
		syscall.SIGUSR2,
	)

	go m.forwardSignals()
}

// forwardSignals forwards signals to the child process. Window size
// changes are not forwarded here; the PTY manager propagates size and
// the kernel delivers SIGWINCH to the child on resize.
func (m *Manager) forwardSignals() {
	for {
		select {
		case sig, ok := <-m.sigChan:
			if !ok {
				return
			}
			if process := m.pty.Process(); process != nil {
				if err := process.Signal(sig); err != nil && err != os.ErrProcessDone {
					fmt.Fprintf(os.Stderr, "idlewatch: signal forward error: %v\n", err)
				}
			}
		case <-m.done:
			return
		}
	}
}

// cleanupSignals stops signal forwarding
func (m *Manager) cleanupSignals() {
	if m.sigChan != nil {
		signal.Stop(m.sigChan)
		close(m.sigChan)
	}
}

// Stop gracefully stops the manager and cleans up resources
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pty != nil {
		// Ensure terminal is restored
		_ = m.pty.Stop()

		if process := m.pty.Process(); process != nil {
			// Send SIGTERM first for graceful shutdown
			if err := process.Signal(syscall.SIGTERM); err != nil {
				if err != os.ErrProcessDone {
					return process.Kill()
				}
			}
		}
	}

	return nil
}

// Terminate asks the wrapped process to exit with SIGTERM and
// escalates to SIGKILL if it is still running after the grace period.
func (m *Manager) Terminate(grace time.Duration) error {
	process := m.pty.Process()
	if process == nil {
		return fmt.Errorf("process not started")
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		if err == os.ErrProcessDone {
			return nil
		}
		return fmt.Errorf("failed to terminate process: %w", err)
	}

	go func() {
		select {
		case <-m.done:
		case <-time.After(grace):
			if p := m.pty.Process(); p != nil {
				_ = p.Kill()
			}
		}
	}()

	return nil
}
