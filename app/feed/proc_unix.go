//go:build unix

package feed

import (
	"os/exec"
	"syscall"
)

// isolateProcess starts the command in its own process group and kills the whole group on
// cancellation, taking down anything the script spawned.
func isolateProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
