package spawnedjob

import (
	"bytes"

	"golang.org/x/sys/unix"

	"github.com/sebastianm/diskmand/internal/eventloop"
)

// readChunk is how much a single readiness callback will pull off a pipe.
const readChunk = 1024

func (j *Job) onStdoutReady(revents int16) {
	j.readReady(&j.stdout, j.stdoutFd, &j.stdoutWatch, "stdout")
}

func (j *Job) onStderrReady(revents int16) {
	j.readReady(&j.stderr, j.stderrFd, &j.stderrWatch, "stderr")
}

// readReady appends whatever the pipe has, up to readChunk bytes, without
// blocking. On end-of-file the watch is withdrawn — the descriptor itself
// stays open until teardown so it is closed exactly once.
func (j *Job) readReady(buf *bytes.Buffer, fd int, watch **eventloop.Watch, stream string) {
	var chunk [readChunk]byte
	n, err := unix.Read(fd, chunk[:])
	switch {
	case err == unix.EAGAIN:
		// spurious wakeup, stay registered
	case err != nil:
		j.log.Warn("reading helper output failed", "stream", stream, "error", err)
		(*watch).Remove()
		*watch = nil
	case n == 0:
		// helper closed its end
		(*watch).Remove()
		*watch = nil
	default:
		buf.Write(chunk[:n])
	}
}

// onStdinReady feeds the input payload to the helper. Once the cursor has
// consumed the payload the pipe is closed so the helper sees end-of-file,
// the standard "no more input" signal.
func (j *Job) onStdinReady(revents int16) {
	if j.cursor >= len(j.input) {
		j.stdinWatch.Remove()
		j.stdinWatch = nil
		j.closeFd(&j.stdinFd, "stdin")
		return
	}

	n, err := unix.Write(j.stdinFd, j.input[j.cursor:])
	switch {
	case err == unix.EAGAIN:
		// pipe full, write the rest on the next readiness signal
	case err != nil:
		// EPIPE when the helper stopped reading; give up on the payload
		j.log.Warn("writing helper input failed", "error", err)
		j.stdinWatch.Remove()
		j.stdinWatch = nil
		j.closeFd(&j.stdinFd, "stdin")
	default:
		j.cursor += n
	}
}

// drainToEnd empties what is still buffered in the output pipes after the
// helper exited. The descriptors are non-blocking, so this never stalls the
// loop: it stops at end-of-file or the first read that would block.
func (j *Job) drainToEnd() {
	j.drainFd(&j.stdout, j.stdoutFd, "stdout")
	j.drainFd(&j.stderr, j.stderrFd, "stderr")
}

func (j *Job) drainFd(buf *bytes.Buffer, fd int, stream string) {
	if fd == -1 {
		return
	}
	var chunk [readChunk]byte
	for {
		n, err := unix.Read(fd, chunk[:])
		if n > 0 {
			buf.Write(chunk[:n])
			continue
		}
		if err == unix.EINTR {
			continue
		}
		if err != nil && err != unix.EAGAIN {
			j.log.Warn("draining helper output failed", "stream", stream, "error", err)
		}
		return
	}
}
