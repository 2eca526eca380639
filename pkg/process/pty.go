package process

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
)

var (
	focusEnable  = []byte("\033[?1004h")
	focusDisable = []byte("\033[?1004l")
)

// PTYManager handles PTY-based process execution
type PTYManager struct {
	cmd      *exec.Cmd
	pty      *os.File
	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
	rawFd    int
	rawState *term.State
	focusOut io.Writer
}

// Ensure PTYManager implements PTY
var _ PTY = (*PTYManager)(nil)

// NewPTYManager creates a new PTY manager
func NewPTYManager() *PTYManager {
	return &PTYManager{
		stopChan: make(chan struct{}),
	}
}

// Start starts a process with PTY
func (p *PTYManager) Start(command string, args []string, env []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return fmt.Errorf("process already started")
	}

	cmd := exec.Command(command, args...)
	cmd.Env = env

	ptyFile, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("failed to start PTY: %w", err)
	}
	p.cmd = cmd
	p.pty = ptyFile

	// Copy terminal size
	if err := p.copyTerminalSize(); err != nil {
		// Log but don't fail - some environments don't have a terminal
		fmt.Fprintf(os.Stderr, "idlewatch: failed to copy terminal size: %v\n", err)
	}

	// Start monitoring for terminal size changes
	p.wg.Add(1)
	go p.monitorTerminalSize()

	return nil
}

// GetPTY returns the PTY file descriptor
func (p *PTYManager) GetPTY() *os.File {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pty
}

// Wait waits for the process to complete
func (p *PTYManager) Wait() error {
	if p.cmd == nil {
		return fmt.Errorf("process not started")
	}

	err := p.cmd.Wait()

	// Signal stop to goroutines
	close(p.stopChan)

	// Wait for goroutines
	p.wg.Wait()

	// Close PTY
	p.mu.Lock()
	if p.pty != nil {
		_ = p.pty.Close()
	}
	p.mu.Unlock()

	return err
}

// ProcessState returns the process state
func (p *PTYManager) ProcessState() *os.ProcessState {
	if p.cmd == nil {
		return nil
	}
	return p.cmd.ProcessState
}

// Process returns the underlying process
func (p *PTYManager) Process() *os.Process {
	if p.cmd == nil {
		return nil
	}
	return p.cmd.Process
}

// Stop restores the caller's terminal. Focus reporting is turned off
// first so the terminal interprets the sequence before cooked mode
// returns.
func (p *PTYManager) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.focusOut != nil {
		_, _ = p.focusOut.Write(focusDisable)
		p.focusOut = nil
	}
	if p.rawState != nil {
		_ = term.Restore(p.rawFd, p.rawState)
		p.rawState = nil
	}

	return nil
}

// copyTerminalSize copies the terminal size from stdin to the PTY
func (p *PTYManager) copyTerminalSize() error {
	size, err := pty.GetsizeFull(os.Stdin)
	if err != nil {
		return err
	}

	return pty.Setsize(p.pty, size)
}

// monitorTerminalSize monitors for terminal size changes
func (p *PTYManager) monitorTerminalSize() {
	defer p.wg.Done()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGWINCH)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			p.mu.Lock()
			if p.pty != nil {
				if err := p.copyTerminalSize(); err != nil {
					fmt.Fprintf(os.Stderr, "idlewatch: failed to resize PTY: %v\n", err)
				}
			}
			p.mu.Unlock()
		case <-p.stopChan:
			return
		}
	}
}

// CopyIO wires the caller's terminal to the child PTY. Input flows to
// the child through the input handler; child output flows to stdout
// through the output handler, with the child's focus-mode toggles
// stripped so it cannot turn off the wrapper's focus reporting.
func (p *PTYManager) CopyIO(stdin io.Reader, stdout io.Writer, output, input interfaces.DataHandler, enableFocus bool) error {
	p.mu.Lock()
	if p.pty == nil {
		p.mu.Unlock()
		return fmt.Errorf("PTY not initialized")
	}
	ptyFile := p.pty
	p.mu.Unlock()

	rawModeSet := false
	if file, ok := stdin.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		if state, err := term.MakeRaw(int(file.Fd())); err == nil {
			rawModeSet = true
			p.mu.Lock()
			p.rawFd = int(file.Fd())
			p.rawState = state
			p.mu.Unlock()
			defer func() { _ = p.Stop() }()
		}
	}

	// Focus reporting is requested from the outer terminal, which then
	// delivers CSI I and CSI O on stdin when focus changes.
	if rawModeSet && enableFocus {
		if _, err := stdout.Write(focusEnable); err == nil {
			p.mu.Lock()
			p.focusOut = stdout
			p.mu.Unlock()
			if os.Getenv("IDLEWATCH_DEBUG") == "true" {
				fmt.Fprintf(os.Stderr, "idlewatch: enabled focus reporting\n")
			}
		}
	}

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	// Copy from stdin to PTY
	wg.Add(1)
	go func() {
		defer wg.Done()
		src := stdin
		if input != nil {
			src = &inputReader{reader: stdin, handler: input}
		}
		if _, err := io.Copy(ptyFile, src); err != nil {
			errChan <- fmt.Errorf("stdin copy error: %w", err)
		}
	}()

	// Copy from PTY to stdout. Reading the master after the child
	// exits fails with EIO on Linux, which is a normal shutdown.
	wg.Add(1)
	go func() {
		defer wg.Done()
		reader := &outputReader{reader: ptyFile, handler: output}
		if _, err := io.Copy(stdout, reader); err != nil && !errors.Is(err, syscall.EIO) {
			errChan <- fmt.Errorf("stdout copy error: %w", err)
		}
	}()

	wg.Wait()

	select {
	case err := <-errChan:
		return err
	default:
		return nil
	}
}

// inputReader tees stdin chunks to a handler on their way to the PTY.
type inputReader struct {
	reader  io.Reader
	handler interfaces.DataHandler
}

func (r *inputReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 && r.handler != nil {
		r.handler.HandleData(p[:n])
	}
	return n, err
}

// outputReader passes child output through to the terminal, feeding
// each raw chunk to the handler and removing focus-mode toggles. A
// trailing partial toggle is held back until the next chunk decides
// it.
type outputReader struct {
	reader  io.Reader
	handler interfaces.DataHandler
	readBuf []byte
	pending []byte
	carry   []byte
	err     error
}

func (r *outputReader) Read(p []byte) (int, error) {
	if r.readBuf == nil {
		r.readBuf = make([]byte, 32*1024)
	}

	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		n, err := r.reader.Read(r.readBuf)
		if n > 0 {
			if r.handler != nil {
				r.handler.HandleData(r.readBuf[:n])
			}
			chunk := append(r.carry, r.readBuf[:n]...)
			r.pending, r.carry = stripFocusToggles(chunk)
		}
		if err != nil {
			r.err = err
			r.pending = append(r.pending, r.carry...)
			r.carry = nil
		}
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// stripFocusToggles removes complete focus-mode toggles from data and
// holds back a trailing prefix of one for the next chunk.
func stripFocusToggles(data []byte) (filtered, carry []byte) {
	data = bytes.ReplaceAll(data, focusEnable, nil)
	data = bytes.ReplaceAll(data, focusDisable, nil)

	start := len(data) - len(focusEnable) + 1
	if start < 0 {
		start = 0
	}
	for i := start; i < len(data); i++ {
		rest := data[i:]
		if bytes.HasPrefix(focusEnable, rest) || bytes.HasPrefix(focusDisable, rest) {
			return data[:i], append([]byte(nil), rest...)
		}
	}
	return data, nil
}
