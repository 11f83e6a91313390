//go:build windows

package procexec

import "os/exec"

// setProcessGroup is a no-op on Windows; pg_ctl manages its own child
// lifetime there and job objects are out of scope for this module.
func setProcessGroup(cmd *exec.Cmd) {}

// KillGroup terminates cmd's process directly; Windows has no POSIX
// process-group signal semantics to fan out to children.
func KillGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
