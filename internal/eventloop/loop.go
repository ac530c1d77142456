// Package eventloop implements a single-threaded poll(2) reactor.
//
// All callbacks registered with a Loop — descriptor readiness watches and
// posted functions — run on the goroutine that called Run, one at a time.
// Components that own many descriptors (such as spawned jobs) can therefore
// share a Loop without any locking of their own state.
package eventloop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"
)

// Watch is a readiness registration for a single file descriptor.
type Watch struct {
	loop   *Loop
	fd     int
	events int16
	fn     func(revents int16)
}

// Remove withdraws the watch. It is idempotent and safe to call from any
// goroutine. When called on the loop goroutine the callback will not be
// invoked again after Remove returns; a Remove from elsewhere can still lose
// the race against a dispatch that is already in flight.
func (w *Watch) Remove() {
	w.loop.mu.Lock()
	if w.loop.watches[w.fd] == w {
		delete(w.loop.watches, w.fd)
	}
	w.loop.mu.Unlock()
}

// Loop dispatches descriptor readiness and posted callbacks on a single
// goroutine.
type Loop struct {
	log *slog.Logger

	// wake pipe, written to by Post/AddFD/Stop to interrupt a sleeping poll
	wakeR int
	wakeW int

	mu       sync.Mutex
	watches  map[int]*Watch
	posted   []func()
	stopping bool
	closed   bool
}

// New creates a loop and its wake pipe. The caller must Close the loop after
// Run has returned.
func New(log *slog.Logger) (*Loop, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, fmt.Errorf("creating wake pipe: %w", err)
	}
	return &Loop{
		log:     log,
		wakeR:   p[0],
		wakeW:   p[1],
		watches: make(map[int]*Watch),
	}, nil
}

// AddFD registers fn to be invoked on the loop goroutine whenever fd reports
// one of the given poll events (plus the implicit POLLHUP/POLLERR). At most
// one watch may exist per descriptor.
func (l *Loop) AddFD(fd int, events int16, fn func(revents int16)) *Watch {
	w := &Watch{loop: l, fd: fd, events: events, fn: fn}
	l.mu.Lock()
	l.watches[fd] = w
	l.mu.Unlock()
	l.wake()
	return w
}

// Post queues fn to run on the loop goroutine. Posted functions run in FIFO
// order. Safe to call from any goroutine; functions posted after Stop may
// never run.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()
	l.wake()
}

// Stop makes Run return after the current dispatch round.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopping = true
	l.mu.Unlock()
	l.wake()
}

// Run dispatches until Stop is called or ctx is cancelled. Readiness and
// posted callbacks execute on the calling goroutine for the loop's entire
// lifetime. Returns ctx.Err() when stopped by the context, nil otherwise.
func (l *Loop) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.Stop()
		case <-done:
		}
	}()

	for {
		l.mu.Lock()
		if l.stopping {
			l.stopping = false
			l.mu.Unlock()
			return ctx.Err()
		}
		pollfds := make([]unix.PollFd, 1, len(l.watches)+1)
		pollfds[0] = unix.PollFd{Fd: int32(l.wakeR), Events: unix.POLLIN}
		dispatch := make([]*Watch, 0, len(l.watches))
		for _, w := range l.watches {
			pollfds = append(pollfds, unix.PollFd{Fd: int32(w.fd), Events: w.events})
			dispatch = append(dispatch, w)
		}
		l.mu.Unlock()

		if _, err := unix.Poll(pollfds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}

		if pollfds[0].Revents != 0 {
			l.drainWake()
			l.runPosted()
		}
		for i, w := range dispatch {
			revents := pollfds[i+1].Revents
			if revents == 0 {
				continue
			}
			// a callback earlier in this round may have removed the watch
			if !l.registered(w) {
				continue
			}
			w.fn(revents)
		}
	}
}

// Close releases the wake pipe. Only call after Run has returned. Posting to
// a closed loop is a no-op, so stragglers such as late exit watches are safe.
func (l *Loop) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	if err := unix.Close(l.wakeR); err != nil {
		return err
	}
	return unix.Close(l.wakeW)
}

func (l *Loop) registered(w *Watch) bool {
	l.mu.Lock()
	ok := l.watches[w.fd] == w
	l.mu.Unlock()
	return ok
}

func (l *Loop) wake() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	_, err := unix.Write(l.wakeW, []byte{0})
	if err != nil && err != unix.EAGAIN {
		l.log.Warn("waking event loop failed", "error", err)
	}
}

func (l *Loop) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(l.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (l *Loop) runPosted() {
	for {
		l.mu.Lock()
		if len(l.posted) == 0 {
			l.mu.Unlock()
			return
		}
		fns := l.posted
		l.posted = nil
		l.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	}
}
