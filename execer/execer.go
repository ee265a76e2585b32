package execer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/magdyamr542/livereload/runnable"
)

// Execer starts a program. The context only guards the start: a running
// child is stopped with Execution.Kill.
type Execer interface {
	Exec(ctx context.Context) (*Execution, error)
}

// State is the lifecycle state of an Execution.
type State int32

const (
	Starting State = iota
	Running
	ExitedOnItsOwn
	Killed
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case ExitedOnItsOwn:
		return "exited"
	case Killed:
		return "killed"
	default:
		return "unknown"
	}
}

// Option configures an execer.
type Option func(*execer)

// WithCreator replaces how processes are created.
func WithCreator(creator runnable.Creator) Option {
	return func(e *execer) {
		e.creator = creator
	}
}

type execer struct {
	command []string
	creator runnable.Creator
	logger  hclog.Logger
}

// New returns an Execer running command. command[0] is the executable.
func New(command []string, logger hclog.Logger, opts ...Option) Execer {
	e := execer{command: command, creator: runnable.NewCmd, logger: logger}
	for _, opt := range opts {
		opt(&e)
	}
	return &e
}

func (r *execer) Exec(ctx context.Context) (*Execution, error) {
	if len(r.command) == 0 {
		return nil, fmt.Errorf("command is empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmdline := strings.Join(r.command, " ")
	execution := &Execution{
		ID:      uuid.NewString(),
		Command: r.command,
		run:     r.creator(r.command),
		done:    make(chan struct{}),
		logger:  r.logger,
	}

	r.logger.Debug("Running command", "command", cmdline, "execution", execution.ID)
	if err := execution.run.Start(); err != nil {
		return nil, fmt.Errorf("can't start command %q: %w", cmdline, err)
	}
	execution.alive.Store(true)
	execution.state.Store(int32(Running))
	r.logger.Debug("Command started", "pid", execution.run.Pid(), "execution", execution.ID)

	// The waiter is the only one calling Wait. It publishes the exit by closing done.
	go func() {
		err := execution.run.Wait()
		execution.exitErr = err
		execution.state.CompareAndSwap(int32(Running), int32(ExitedOnItsOwn))
		execution.alive.Store(false)
		close(execution.done)
	}()

	return execution, nil
}

// Execution is one running child process.
type Execution struct {
	// ID identifies the execution in the logs.
	ID string
	// Command is the command line of the child.
	Command []string

	run     runnable.Runnable
	state   atomic.Int32
	alive   atomic.Bool
	done    chan struct{}
	exitErr error
	killMu  sync.Mutex
	logger  hclog.Logger
}

// Pid is the process id of the child.
func (e *Execution) Pid() int {
	return e.run.Pid()
}

// Alive reports whether the child hasn't terminated yet. It never blocks.
func (e *Execution) Alive() bool {
	return e.alive.Load()
}

// Done is closed once the child terminated and was reaped.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// State returns the current lifecycle state.
func (e *Execution) State() State {
	return State(e.state.Load())
}

// ExitErr is the error returned by waiting on the child. Only valid after Done.
func (e *Execution) ExitErr() error {
	select {
	case <-e.done:
		return e.exitErr
	default:
		return nil
	}
}

// Kill terminates the child immediately and waits until it is reaped.
// Killing a child that already terminated is a no-op.
func (e *Execution) Kill() error {
	e.killMu.Lock()
	defer e.killMu.Unlock()

	select {
	case <-e.done:
		return nil
	default:
	}

	if !e.state.CompareAndSwap(int32(Running), int32(Killed)) {
		// The waiter saw the exit first.
		<-e.done
		return nil
	}

	e.logger.Debug("Killing child", "pid", e.run.Pid(), "execution", e.ID)
	if err := e.run.Kill(); err != nil {
		e.state.CompareAndSwap(int32(Killed), int32(Running))
		return fmt.Errorf("kill pid %d: %w", e.run.Pid(), err)
	}
	<-e.done
	return nil
}
