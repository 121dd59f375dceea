//go:build unix && !linux

package executor

import (
	"os/exec"
	"syscall"
)

// configureProcess puts the child in its own session so the whole tree can be
// killed. There is no parent-death signal outside Linux.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func killProcessTree(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}
