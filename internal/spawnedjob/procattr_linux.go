//go:build linux

package spawnedjob

import "syscall"

// procAttr puts the helper in its own process group and has the kernel
// deliver SIGKILL if the daemon dies before teardown can.
func procAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}
