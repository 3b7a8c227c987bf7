//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr places the child in its own process group so signals can
// be delivered to the whole tree without hitting the supervisor.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// Terminate requests a graceful stop (SIGTERM to the process group).
func (p *Process) Terminate() error {
	return syscall.Kill(-p.cmd.Process.Pid, syscall.SIGTERM)
}

// Kill force-stops the process group (SIGKILL).
func (p *Process) Kill() error {
	return syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
}
