// Package spawnedjob implements jobs that run an external helper command.
//
// A Job spawns a command line, feeds it an optional stdin payload, captures
// its stdout and stderr through non-blocking pipes serviced by the owning
// event loop, and delivers exactly one completion — a launch or cancellation
// error, or the raw exit status plus both captured streams — no matter which
// of the exit paths (normal exit, launch failure, cancellation, destruction)
// fires first.
package spawnedjob

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/sebastianm/diskmand/internal/errdomain"
	"github.com/sebastianm/diskmand/internal/eventloop"
)

// State is the lifecycle state of a Job.
type State int

const (
	// StateCreated means the job exists but the helper has not been spawned.
	StateCreated State = iota
	// StateRunning means the helper process is alive.
	StateRunning
	// StateCompleted means the completion was delivered (exit status, launch
	// failure, or cancellation observed before spawning).
	StateCompleted
	// StateCancelled means the job was cancelled while running.
	StateCancelled
)

// CompletedFunc handles the raw completion of a job. Returning true marks the
// completion as handled and suppresses the default evaluation.
type CompletedFunc func(j *Job, res Result) bool

// NotifyFunc receives the outcome produced by the default evaluation policy.
type NotifyFunc func(j *Job, oc Outcome)

// Options configures a Job at creation.
type Options struct {
	// Input is the payload written to the helper's stdin. When nil the
	// helper's stdin is not connected and reads end-of-file immediately.
	Input []byte

	// Cancel is the externally owned cancellation signal. nil means the job
	// cannot be cancelled.
	Cancel context.Context

	// Completed, when set, preempts the default completion policy.
	Completed CompletedFunc

	// Notify receives the evaluated outcome when Completed is unset or
	// declined to handle the completion.
	Notify NotifyFunc
}

// Job is one managed invocation of an external command. All of a Job's
// callbacks run serialized on the loop it was created with; its fields are
// only touched from that goroutine after New returns.
type Job struct {
	id          uuid.UUID
	log         *slog.Logger
	loop        *eventloop.Loop
	commandLine string

	input  []byte
	cursor int

	cancel context.Context
	unsub  chan struct{}

	proc   *os.Process
	reaped bool

	stdinFd  int
	stdoutFd int
	stderrFd int

	stdinWatch  *eventloop.Watch
	stdoutWatch *eventloop.Watch
	stderrWatch *eventloop.Watch

	stdout bytes.Buffer
	stderr bytes.Buffer

	state     State
	delivered bool

	completed CompletedFunc
	notify    NotifyFunc
}

// New creates a job and immediately starts it on the given loop. The
// completion always arrives later, on the loop goroutine, even when spawning
// fails or the cancellation signal already fired before the call.
func New(loop *eventloop.Loop, log *slog.Logger, commandLine string, opts Options) *Job {
	j := &Job{
		id:          uuid.New(),
		loop:        loop,
		commandLine: commandLine,
		input:       opts.Input,
		cancel:      opts.Cancel,
		stdinFd:     -1,
		stdoutFd:    -1,
		stderrFd:    -1,
		completed:   opts.Completed,
		notify:      opts.Notify,
	}
	if j.cancel == nil {
		j.cancel = context.Background()
	}
	j.log = log.With("job", j.id.String(), "command_line", commandLine)

	// could already be cancelled
	if j.cancel.Err() != nil {
		j.completeLater(errdomain.New(errdomain.AlreadyCancelled, "Operation was cancelled"))
		return j
	}

	j.unsub = make(chan struct{})
	go j.watchCancel(j.unsub)

	if err := j.launch(); err != nil {
		j.completeLater(err)
	}
	return j
}

// ID returns the job's opaque handle.
func (j *Job) ID() uuid.UUID { return j.id }

// CommandLine returns the command line the job was created with.
func (j *Job) CommandLine() string { return j.commandLine }

// State returns the job's lifecycle state. Only meaningful on the loop
// goroutine or after the completion has been observed.
func (j *Job) State() State { return j.state }

// Close defensively tears the job down: any live helper is signalled and
// reaped, descriptors are closed, and a completion that has not yet been
// delivered never will be. Owners call this after the completion arrived, or
// to abandon a job outright. The loop must still be running.
func (j *Job) Close() {
	j.loop.Post(func() {
		if !j.delivered {
			j.delivered = true
			if j.state == StateRunning {
				j.state = StateCancelled
			} else {
				j.state = StateCompleted
			}
		}
		j.teardown()
	})
}

// completeLater delivers an error completion on the next loop iteration,
// preserving the "completion always arrives later" contract.
func (j *Job) completeLater(err error) {
	j.loop.Post(func() {
		j.deliverCompletion(Result{Err: err})
	})
}

// watchCancel is the cancellation bridge: it forwards the external signal
// onto the loop, where the single-delivery gate decides whether it still
// matters. The channel is passed in by value because teardown, on the loop
// goroutine, closes and clears the job's field; the bridge must never read
// the field itself. Closing the captured channel is what ends the select.
func (j *Job) watchCancel(unsub <-chan struct{}) {
	select {
	case <-j.cancel.Done():
		j.loop.Post(func() {
			j.deliverCompletion(Result{Err: errdomain.New(errdomain.Cancelled, "Operation was cancelled")})
		})
	case <-unsub:
	}
}

// onChildExit runs on the loop when the exit watch observes the helper's
// termination. If the job already reached a terminal state (cancellation won
// the race) the process has still been reaped, but no second completion is
// delivered.
func (j *Job) onChildExit(status unix.WaitStatus) {
	j.reaped = true
	j.proc = nil
	if j.delivered {
		j.log.Debug("helper exited after completion was already delivered", "status", int(status))
		return
	}
	j.drainToEnd()
	j.deliverCompletion(Result{
		Status: status,
		Stdout: bytes.Clone(j.stdout.Bytes()),
		Stderr: bytes.Clone(j.stderr.Bytes()),
	})
}

// deliverCompletion is the single gate every exit path funnels through: the
// first caller wins, later calls are no-ops.
func (j *Job) deliverCompletion(res Result) {
	if j.delivered {
		return
	}
	j.delivered = true
	if kind, ok := errdomain.KindOf(res.Err); ok && kind == errdomain.Cancelled {
		j.state = StateCancelled
	} else {
		j.state = StateCompleted
	}

	handled := false
	if j.completed != nil {
		handled = j.completed(j, res)
	}
	if !handled {
		oc := Evaluate(j.commandLine, res)
		if oc.Success {
			j.log.Info("job completed", "success", true)
		} else {
			j.log.Info("job completed", "success", false, "message", oc.Message)
		}
		if j.notify != nil {
			j.notify(j, oc)
		}
	}

	j.teardown()
}

// teardown releases everything the job holds. It is idempotent and callable
// from any exit path: watches are deregistered before their descriptors are
// closed, each descriptor is closed exactly once, a live helper is asked to
// terminate and reaped asynchronously by the exit watch, and the cancellation
// subscription is withdrawn. Failures here are logged, never propagated.
func (j *Job) teardown() {
	if j.proc != nil && !j.reaped {
		// Ask the helper to terminate. The exit watch goroutine consumes the
		// wait status, so the loop never blocks on the reap and no zombie is
		// left behind even when the helper takes its time shutting down.
		if err := j.proc.Signal(unix.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			j.log.Warn("terminating helper failed", "pid", j.proc.Pid, "error", err)
		}
		j.proc = nil
	}

	if j.stdinWatch != nil {
		j.stdinWatch.Remove()
		j.stdinWatch = nil
	}
	if j.stdoutWatch != nil {
		j.stdoutWatch.Remove()
		j.stdoutWatch = nil
	}
	if j.stderrWatch != nil {
		j.stderrWatch.Remove()
		j.stderrWatch = nil
	}

	j.closeFd(&j.stdinFd, "stdin")
	j.closeFd(&j.stdoutFd, "stdout")
	j.closeFd(&j.stderrFd, "stderr")

	j.stdout.Reset()
	j.stderr.Reset()

	if j.unsub != nil {
		close(j.unsub)
		j.unsub = nil
	}
}

func (j *Job) closeFd(fd *int, stream string) {
	if *fd == -1 {
		return
	}
	if err := unix.Close(*fd); err != nil {
		j.log.Warn("closing pipe failed", "stream", stream, "error", err)
	}
	*fd = -1
}
