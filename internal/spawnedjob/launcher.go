package spawnedjob

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/kballard/go-shellquote"
	"golang.org/x/sys/unix"

	"github.com/sebastianm/diskmand/internal/errdomain"
)

// launch tokenizes the command line and spawns the helper with redirected,
// non-blocking pipes. Any error returned here is a launch error: nothing was
// spawned (or the spawn failed) and no pipes or watches are left registered.
func (j *Job) launch() error {
	argv, err := shellquote.Split(j.commandLine)
	if err != nil {
		return errdomain.New(errdomain.Failed, "Error parsing command-line `%s': %v", j.commandLine, err)
	}
	if len(argv) == 0 {
		return errdomain.New(errdomain.Failed, "Error parsing command-line `%s': empty command line", j.commandLine)
	}

	path, err := exec.LookPath(argv[0])
	if err != nil {
		return errdomain.New(errdomain.Failed, "Error spawning command-line `%s': %v", j.commandLine, err)
	}

	stdoutR, stdoutW, err := newPipe()
	if err != nil {
		return errdomain.New(errdomain.Failed, "Error spawning command-line `%s': %v", j.commandLine, err)
	}
	stderrR, stderrW, err := newPipe()
	if err != nil {
		unix.Close(stdoutR)
		unix.Close(stdoutW)
		return errdomain.New(errdomain.Failed, "Error spawning command-line `%s': %v", j.commandLine, err)
	}
	stdinR, stdinW := -1, -1
	if j.input != nil {
		stdinR, stdinW, err = newPipe()
		if err != nil {
			unix.Close(stdoutR)
			unix.Close(stdoutW)
			unix.Close(stderrR)
			unix.Close(stderrW)
			return errdomain.New(errdomain.Failed, "Error spawning command-line `%s': %v", j.commandLine, err)
		}
	}

	cmd := exec.Command(path, argv[1:]...)
	cmd.SysProcAttr = procAttr()
	cmd.Stdout = os.NewFile(uintptr(stdoutW), "|stdout")
	cmd.Stderr = os.NewFile(uintptr(stderrW), "|stderr")
	if stdinR != -1 {
		// nil Stdin leaves the helper reading from /dev/null, which is the
		// "not connected" behaviour for jobs without an input payload.
		cmd.Stdin = os.NewFile(uintptr(stdinR), "|stdin")
	}

	if err := cmd.Start(); err != nil {
		closeChildEnds(cmd)
		unix.Close(stdoutR)
		unix.Close(stderrR)
		if stdinW != -1 {
			unix.Close(stdinW)
		}
		return errdomain.New(errdomain.Failed, "Error spawning command-line `%s': %v", j.commandLine, err)
	}

	// The child holds its own copies now; ours must go so EOF can arrive.
	closeChildEnds(cmd)

	for _, fd := range []int{stdoutR, stderrR, stdinW} {
		if fd != -1 {
			if err := unix.SetNonblock(fd, true); err != nil {
				j.log.Warn("setting pipe non-blocking failed", "error", err)
			}
		}
	}

	j.log.Debug("helper spawned", "pid", cmd.Process.Pid)

	// Publish the spawn results on the loop so every mutation of the job's
	// fields happens on the loop goroutine. If a cancellation won in the
	// meantime the job is already torn down and must stay terminal: nothing
	// is installed, the child is asked to terminate and our pipe ends are
	// released here, since teardown never saw them.
	j.loop.Post(func() {
		if j.delivered {
			if err := cmd.Process.Signal(unix.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
				j.log.Warn("terminating helper failed", "pid", cmd.Process.Pid, "error", err)
			}
			unix.Close(stdoutR)
			unix.Close(stderrR)
			if stdinW != -1 {
				unix.Close(stdinW)
			}
			return
		}
		j.proc = cmd.Process
		j.stdoutFd = stdoutR
		j.stderrFd = stderrR
		j.stdinFd = stdinW
		j.state = StateRunning
		if j.stdinFd != -1 {
			j.stdinWatch = j.loop.AddFD(j.stdinFd, unix.POLLOUT, j.onStdinReady)
		}
		j.stdoutWatch = j.loop.AddFD(j.stdoutFd, unix.POLLIN, j.onStdoutReady)
		j.stderrWatch = j.loop.AddFD(j.stderrFd, unix.POLLIN, j.onStderrReady)
	})

	j.watchExit(cmd)
	return nil
}

// watchExit registers the exit watch: a goroutine consumes the helper's wait
// status — so the loop never issues a blocking wait and the child cannot
// linger as a zombie — and posts the raw status back onto the loop.
func (j *Job) watchExit(cmd *exec.Cmd) {
	go func() {
		werr := cmd.Wait()
		var status unix.WaitStatus
		if cmd.ProcessState != nil {
			if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok {
				status = unix.WaitStatus(ws)
			}
		} else if werr != nil {
			j.log.Warn("waiting for helper failed", "error", werr)
		}
		j.loop.Post(func() {
			j.onChildExit(status)
		})
	}()
}

func newPipe() (r, w int, err error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return p[0], p[1], nil
}

// closeChildEnds closes our wrappers around the helper-side pipe ends.
func closeChildEnds(cmd *exec.Cmd) {
	for _, f := range []any{cmd.Stdin, cmd.Stdout, cmd.Stderr} {
		if file, ok := f.(*os.File); ok && file != nil {
			file.Close()
		}
	}
}
