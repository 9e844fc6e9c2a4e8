// Package mainloop is a single threaded poll loop. Everything that
// touches the compositor runs on the goroutine calling Run; other
// goroutines hand work over with Invoke.
package mainloop

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mstarongithub/wayembed/util/multiplexer"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

var ErrClosed = errors.New("main loop closed")

// Source is a file descriptor backed event source. Each iteration calls
// Prepare before sleeping, then Check with the poll result and Dispatch
// if Check returned true. Prepare returning true keeps the loop from
// sleeping. Fd may return -1 to skip polling.
type Source interface {
	Fd() int
	Prepare() bool
	Check(readable bool) bool
	Dispatch() error
}

type Loop struct {
	wakeFd  int
	sources []Source
	idle    []func()
	tickers []*Ticker
	calls   *multiplexer.ManyToOne[func()]
	quit    atomic.Bool
	closed  bool
}

func New() (*Loop, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	return &Loop{
		wakeFd: fd,
		calls:  multiplexer.NewManyToOne[func()](256),
	}, nil
}

// AddSource starts polling src.
func (l *Loop) AddSource(src Source) {
	l.sources = append(l.sources, src)
}

func (l *Loop) RemoveSource(src Source) {
	for i, s := range l.sources {
		if s == src {
			l.sources = append(l.sources[:i], l.sources[i+1:]...)
			return
		}
	}
}

// Idle queues fn to run at the start of the next iteration. Loop
// goroutine only.
func (l *Loop) Idle(fn func()) {
	l.idle = append(l.idle, fn)
}

// Invoke runs fn on the loop goroutine. It is safe to call from any
// goroutine but blocks while the queue is full, so code already on the
// loop goroutine should use Idle.
func (l *Loop) Invoke(fn func()) error {
	if err := l.calls.Send(fn); err != nil {
		return ErrClosed
	}
	l.wake()
	return nil
}

// Quit makes Run return after the current iteration. Any goroutine.
func (l *Loop) Quit() {
	l.quit.Store(true)
	l.wake()
}

func (l *Loop) wake() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(l.wakeFd, buf[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		logrus.WithError(err).Debugln("mainloop: wake failed")
	}
}

func (l *Loop) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(l.wakeFd, buf[:])
}

// Run iterates until Quit is called or ctx is done. It returns ctx.Err()
// in the latter case and the first dispatch error otherwise.
func (l *Loop) Run(ctx context.Context) error {
	if l.closed {
		return ErrClosed
	}
	stop := context.AfterFunc(ctx, l.wake)
	defer stop()
	l.quit.Store(false)
	for !l.quit.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.Iterate(true); err != nil {
			return err
		}
	}
	return nil
}

// Iterate runs one loop iteration. With block set it sleeps until a
// source is readable, a ticker is due or Invoke wakes it.
func (l *Loop) Iterate(block bool) error {
	if l.closed {
		return ErrClosed
	}
	l.runIdle()

	ready := false
	for _, src := range l.sources {
		if src.Prepare() {
			ready = true
		}
	}

	fds := make([]unix.PollFd, 0, len(l.sources)+1)
	fds = append(fds, unix.PollFd{Fd: int32(l.wakeFd), Events: unix.POLLIN})
	index := make([]int, len(l.sources))
	for i, src := range l.sources {
		index[i] = -1
		if fd := src.Fd(); fd >= 0 {
			index[i] = len(fds)
			fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
		}
	}

	timeout := 0
	if block && !ready && len(l.idle) == 0 && len(l.calls.Receiver()) == 0 {
		timeout = l.pollTimeout(time.Now())
	}
	if _, err := unix.Poll(fds, timeout); err != nil && !errors.Is(err, unix.EINTR) {
		return fmt.Errorf("poll: %w", err)
	}
	if fds[0].Revents&unix.POLLIN != 0 {
		l.drainWake()
	}
	l.runCalls()

	// Sources may be added or removed while dispatching.
	sources := append([]Source(nil), l.sources...)
	for i, src := range sources {
		readable := false
		if index[i] >= 0 {
			readable = fds[index[i]].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
		}
		if !src.Check(readable) {
			continue
		}
		if err := src.Dispatch(); err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
	}

	l.runTickers(time.Now())
	return nil
}

func (l *Loop) runIdle() {
	batch := l.idle
	l.idle = nil
	for _, fn := range batch {
		fn()
	}
}

func (l *Loop) runCalls() {
	for {
		select {
		case fn, ok := <-l.calls.Receiver():
			if !ok {
				return
			}
			fn()
		default:
			return
		}
	}
}

// Close stops accepting Invoke calls, runs the ones already queued and
// releases the wake fd. The sources are not closed.
func (l *Loop) Close() error {
	if l.closed {
		return nil
	}
	l.calls.Close()
	for fn := range l.calls.Receiver() {
		fn()
	}
	l.closed = true
	l.sources = nil
	l.tickers = nil
	return unix.Close(l.wakeFd)
}
