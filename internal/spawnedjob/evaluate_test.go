package spawnedjob

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/sebastianm/diskmand/internal/errdomain"
)

func TestEvaluate_ErrorWithKind(t *testing.T) {
	err := errdomain.New(errdomain.Failed, "Error parsing command-line `%s': %v", "bad 'cmd", "unterminated quote")
	oc := Evaluate("bad 'cmd", Result{Err: err})

	assert.False(t, oc.Success)
	assert.Equal(t, fmt.Sprintf("Failed to execute command-line `bad 'cmd': %s (%s, %d)",
		err.Error(), errdomain.DomainName, int(errdomain.Failed)), oc.Message)
}

func TestEvaluate_ErrorWithoutKind(t *testing.T) {
	oc := Evaluate("helper", Result{Err: errors.New("boom")})

	assert.False(t, oc.Success)
	assert.Equal(t, "Failed to execute command-line `helper': boom", oc.Message)
}

func TestEvaluate_CleanExit(t *testing.T) {
	oc := Evaluate("helper", Result{Status: exitStatus(0)})
	assert.True(t, oc.Success)
	assert.Empty(t, oc.Message)
}

func TestEvaluate_NonZeroExit(t *testing.T) {
	oc := Evaluate("helper --fix", Result{
		Status: exitStatus(42),
		Stdout: []byte("progress\n"),
		Stderr: []byte("device busy\n"),
	})

	assert.False(t, oc.Success)
	assert.Equal(t, "Command-line `helper --fix' exited with non-zero exit status 42.\n"+
		"stdout: `progress\n'\nstderr: `device busy\n'", oc.Message)
}

func TestEvaluate_Signalled(t *testing.T) {
	oc := Evaluate("helper", Result{Status: unix.WaitStatus(int(unix.SIGKILL))})

	assert.False(t, oc.Success)
	assert.Equal(t, "Command-line `helper' was signaled with signal SIGKILL (9).\n"+
		"stdout: `'\nstderr: `'", oc.Message)
}

func TestSignalName_Unknown(t *testing.T) {
	assert.Equal(t, "SIGTERM", signalName(syscall.SIGTERM))
	assert.Equal(t, "UNKNOWN_SIGNAL", signalName(syscall.Signal(99)))
}

// exitStatus builds a wait status for a normally exited process.
func exitStatus(code int) unix.WaitStatus {
	return unix.WaitStatus(code << 8)
}
