package eventloop

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startLoop(t *testing.T) *Loop {
	t.Helper()
	loop, err := New(testLogger())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- loop.Run(context.Background())
	}()
	t.Cleanup(func() {
		loop.Stop()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("loop did not stop")
		}
		require.NoError(t, loop.Close())
	})
	return loop
}

func TestLoop_PostRunsInOrder(t *testing.T) {
	loop := startLoop(t)

	var got []int
	finished := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		loop.Post(func() {
			got = append(got, i)
			if i == 99 {
				close(finished)
			}
		})
	}

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("posted functions never ran")
	}
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoop_AddFDDispatchesReadiness(t *testing.T) {
	loop := startLoop(t)

	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK))
	defer unix.Close(p[0])
	defer unix.Close(p[1])

	payload := make(chan []byte, 1)
	w := loop.AddFD(p[0], unix.POLLIN, func(revents int16) {
		buf := make([]byte, 16)
		n, err := unix.Read(p[0], buf)
		require.NoError(t, err)
		payload <- buf[:n]
	})

	_, err := unix.Write(p[1], []byte("ping"))
	require.NoError(t, err)

	select {
	case b := <-payload:
		assert.Equal(t, "ping", string(b))
	case <-time.After(5 * time.Second):
		t.Fatal("readiness callback never fired")
	}
	w.Remove()
}

func TestLoop_RemoveStopsDispatch(t *testing.T) {
	loop := startLoop(t)

	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK))
	defer unix.Close(p[0])
	defer unix.Close(p[1])

	var fired atomic.Int32
	w := loop.AddFD(p[0], unix.POLLIN, func(int16) {
		fired.Add(1)
		var buf [16]byte
		unix.Read(p[0], buf[:])
	})

	w.Remove()
	w.Remove() // idempotent

	_, err := unix.Write(p[1], []byte("x"))
	require.NoError(t, err)

	// a round trip through the loop guarantees any pending dispatch ran
	roundTrip := make(chan struct{})
	loop.Post(func() { close(roundTrip) })
	<-roundTrip

	assert.Equal(t, int32(0), fired.Load())
}

func TestLoop_RemoveDuringDispatchRound(t *testing.T) {
	loop := startLoop(t)

	var a, b [2]int
	require.NoError(t, unix.Pipe2(a[:], unix.O_CLOEXEC|unix.O_NONBLOCK))
	require.NoError(t, unix.Pipe2(b[:], unix.O_CLOEXEC|unix.O_NONBLOCK))
	defer func() {
		for _, fd := range []int{a[0], a[1], b[0], b[1]} {
			unix.Close(fd)
		}
	}()

	// both descriptors become ready in the same poll round; whichever watch
	// dispatches first removes the other
	var fired atomic.Int32
	var wa, wb *Watch
	drain := func(fd int, other **Watch) func(int16) {
		return func(int16) {
			fired.Add(1)
			var buf [16]byte
			unix.Read(fd, buf[:])
			(*other).Remove()
		}
	}
	wa = loop.AddFD(a[0], unix.POLLIN, drain(a[0], &wb))
	wb = loop.AddFD(b[0], unix.POLLIN, drain(b[0], &wa))

	loop.Post(func() {
		unix.Write(a[1], []byte("x"))
		unix.Write(b[1], []byte("x"))
	})

	assert.Eventually(t, func() bool {
		return fired.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	roundTrip := make(chan struct{})
	loop.Post(func() { close(roundTrip) })
	<-roundTrip
	assert.Equal(t, int32(1), fired.Load())
	wa.Remove()
	wb.Remove()
}

func TestLoop_StopEndsRun(t *testing.T) {
	loop, err := New(testLogger())
	require.NoError(t, err)
	defer loop.Close()

	done := make(chan error, 1)
	go func() {
		done <- loop.Run(context.Background())
	}()

	loop.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestLoop_ContextCancellationEndsRun(t *testing.T) {
	loop, err := New(testLogger())
	require.NoError(t, err)
	defer loop.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
