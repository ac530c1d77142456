package spawnedjob

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sebastianm/diskmand/internal/eventloop"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startLoop runs an event loop on a background goroutine and stops it when
// the test finishes.
func startLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	loop, err := eventloop.New(testLogger())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(context.Background())
	}()
	t.Cleanup(func() {
		loop.Stop()
		<-done
		require.NoError(t, loop.Close())
	})
	return loop
}

// runJob starts a job and blocks until both the raw result and the default
// outcome have been delivered.
func runJob(t *testing.T, loop *eventloop.Loop, commandLine string, opts Options) (Result, Outcome) {
	t.Helper()

	results := make(chan Result, 1)
	outcomes := make(chan Outcome, 1)
	opts.Completed = func(_ *Job, res Result) bool {
		results <- res
		return false
	}
	opts.Notify = func(_ *Job, oc Outcome) {
		outcomes <- oc
	}

	New(loop, testLogger(), commandLine, opts)

	var res Result
	select {
	case res = <-results:
	case <-time.After(10 * time.Second):
		t.Fatalf("job %q did not deliver a result", commandLine)
	}
	select {
	case oc := <-outcomes:
		return res, oc
	case <-time.After(5 * time.Second):
		t.Fatalf("job %q did not deliver an outcome", commandLine)
		return res, Outcome{}
	}
}
