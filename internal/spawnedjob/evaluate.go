package spawnedjob

import (
	"fmt"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/sebastianm/diskmand/internal/errdomain"
)

// Result is the raw completion of a job. Err is set for launch failures and
// cancellations; otherwise Status carries the raw wait status and Stdout and
// Stderr hold the captured streams. Never both.
type Result struct {
	Err    error
	Status unix.WaitStatus
	Stdout []byte
	Stderr []byte
}

// Outcome is the operator-facing interpretation of a Result under the
// default policy. Message is meant to be shown verbatim.
type Outcome struct {
	Success bool
	Message string
}

// Evaluate applies the default completion policy:
//
//   - an error (launch failure or cancellation) fails the job, with the
//     command line, the diagnostic text and the error domain/code,
//   - exit status 0 succeeds with an empty message,
//   - a non-zero exit or a terminating signal fails with a message naming
//     the command line, the exit code or the signal, and both streams.
func Evaluate(commandLine string, res Result) Outcome {
	if res.Err != nil {
		if kind, ok := errdomain.KindOf(res.Err); ok {
			return Outcome{Message: fmt.Sprintf("Failed to execute command-line `%s': %s (%s, %d)",
				commandLine, res.Err, errdomain.DomainName, int(kind))}
		}
		return Outcome{Message: fmt.Sprintf("Failed to execute command-line `%s': %s", commandLine, res.Err)}
	}

	if res.Status.Exited() && res.Status.ExitStatus() == 0 {
		return Outcome{Success: true}
	}

	var b strings.Builder
	switch {
	case res.Status.Exited():
		fmt.Fprintf(&b, "Command-line `%s' exited with non-zero exit status %d.\n",
			commandLine, res.Status.ExitStatus())
	case res.Status.Signaled():
		sig := res.Status.Signal()
		fmt.Fprintf(&b, "Command-line `%s' was signaled with signal %s (%d).\n",
			commandLine, signalName(sig), int(sig))
	}
	fmt.Fprintf(&b, "stdout: `%s'\nstderr: `%s'", res.Stdout, res.Stderr)
	return Outcome{Message: b.String()}
}

// signalName resolves a termination signal to its symbolic POSIX name,
// falling back to a fixed label for numbers outside the known table.
func signalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return "UNKNOWN_SIGNAL"
}
