package process

import (
	"io"
	"os"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
)

// PTY defines the interface for PTY operations
type PTY interface {
	Start(command string, args []string, env []string) error
	Wait() error
	ProcessState() *os.ProcessState
	Process() *os.Process
	GetPTY() *os.File
	CopyIO(stdin io.Reader, stdout io.Writer, output, input interfaces.DataHandler, enableFocus bool) error
	Stop() error
}
