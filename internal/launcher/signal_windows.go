//go:build windows

package launcher

import "os/exec"

func setSysProcAttr(_ *exec.Cmd) {}

// Terminate requests a stop. Windows has no SIGTERM semantics for arbitrary
// console processes, so the best available graceful mechanism is Kill; the
// grace-period escalation in the shutdown path then becomes a no-op.
func (p *Process) Terminate() error {
	return p.cmd.Process.Kill()
}

// Kill force-stops the process.
func (p *Process) Kill() error {
	return p.cmd.Process.Kill()
}
