//go:build windows

package invoke

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// setProcGroup starts the child in a new process group.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
}

// killProcessTree terminates the child process. Child processes of the
// host are expected to exit with it; Windows offers no group kill by
// negative pid.
func killProcessTree(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
