//go:build !windows

package runnable

import (
	"errors"
	"os"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// killGroup sends SIGKILL to the process group led by p so that children
// started by an interpreter die with it.
func killGroup(p *os.Process) error {
	err := syscall.Kill(-p.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	if errors.Is(err, syscall.EPERM) {
		// The group may be gone while the leader is a zombie.
		err = p.Kill()
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
	}
	return err
}
