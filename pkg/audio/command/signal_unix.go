//go:build unix

package command

import (
	"os/exec"
	"syscall"
)

// setProcessGroup runs cmd in its own process group so that signals reach
// any children it spawns.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	return syscall.Kill(-cmd.Process.Pid, sig)
}

func interruptGroup(cmd *exec.Cmd) error { return signalGroup(cmd, syscall.SIGINT) }
func killGroup(cmd *exec.Cmd) error      { return signalGroup(cmd, syscall.SIGKILL) }
func suspendGroup(cmd *exec.Cmd) error   { return signalGroup(cmd, syscall.SIGSTOP) }
func resumeGroup(cmd *exec.Cmd) error    { return signalGroup(cmd, syscall.SIGCONT) }
