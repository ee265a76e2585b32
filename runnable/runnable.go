package runnable

import (
	"errors"
	"os"
	"os/exec"
)

// ErrNotStarted is returned when a Runnable is used before Start.
var ErrNotStarted = errors.New("process not started")

// Runnable is something that can run on the machine like a command.
type Runnable interface {
	// Start starts running the executable but doesn't wait for it.
	Start() error
	// Wait blocks till the executable is done.
	Wait() error
	// Kill terminates the executable and everything it spawned, without grace period.
	Kill() error
	// Pid is the process id, 0 before Start.
	Pid() int
}

// Creator is a function that returns a Runnable.
type Creator func(command []string) Runnable

type osCmd struct {
	cmd *exec.Cmd
}

// NewCmd returns a Runnable sharing the stdio of the current process.
// The process is only ever stopped through Kill.
func NewCmd(command []string) Runnable {
	c := osCmd{cmd: newCmd(command)}
	return &c
}

func (o *osCmd) Start() error {
	return o.cmd.Start()
}

func (o *osCmd) Wait() error {
	return o.cmd.Wait()
}

func (o *osCmd) Kill() error {
	if o.cmd.Process == nil {
		return ErrNotStarted
	}
	return killGroup(o.cmd.Process)
}

func (o *osCmd) Pid() int {
	if o.cmd.Process == nil {
		return 0
	}
	return o.cmd.Process.Pid
}

func newCmd(parts []string) *exec.Cmd {
	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Stderr = os.Stderr
	cmd.Stdout = os.Stdout
	cmd.SysProcAttr = sysProcAttr()
	cmd.Env = os.Environ()
	return cmd
}
