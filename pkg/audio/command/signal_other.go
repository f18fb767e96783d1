//go:build !unix

package command

import (
	"errors"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

func interruptGroup(cmd *exec.Cmd) error { return cmd.Process.Kill() }
func killGroup(cmd *exec.Cmd) error      { return cmd.Process.Kill() }
func suspendGroup(*exec.Cmd) error       { return errors.ErrUnsupported }
func resumeGroup(*exec.Cmd) error        { return errors.ErrUnsupported }
