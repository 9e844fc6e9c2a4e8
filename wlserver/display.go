// Package wlserver is a small Wayland compositor-side protocol server. It
// accepts clients on a unix socket, keeps their object tables and speaks
// the core, shm, seat, output, xdg-shell and xdg-activation protocols.
//
// The server never blocks and never owns a thread: the embedding program
// polls Fd and drives it through Prepare, Check and Dispatch.
package wlserver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

type listener struct {
	fd       int
	path     string
	lockPath string
	lockFd   int
}

// Global is an object advertised through wl_registry.
type Global struct {
	name      uint32
	Interface string
	Version   uint32
	bind      func(c *Client, id, version uint32) error
	removed   bool
}

// Name returns the numeric registry name.
func (g *Global) Name() uint32 {
	return g.name
}

// Display owns the listening sockets, the epoll set and every connected
// client.
type Display struct {
	epfd       int
	listeners  []*listener
	clients    map[int]*Client
	globals    []*Global
	nextGlobal uint32
	idle       []func()
	serial     uint32
	destroyed  bool
	outputs    []*Output

	clientCreated   []func(*Client)
	clientDestroyed []func(*Client)
}

// NewDisplay creates an empty display with its epoll set.
func NewDisplay() (*Display, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("creating epoll: %w", err)
	}
	return &Display{
		epfd:       epfd,
		clients:    make(map[int]*Client),
		nextGlobal: 1,
	}, nil
}

// Fd is readable whenever Dispatch has work to do.
func (d *Display) Fd() int {
	return d.epfd
}

// NextSerial returns a fresh event serial.
func (d *Display) NextSerial() uint32 {
	d.serial++
	return d.serial
}

// OnClientCreated registers fn for every accepted client.
func (d *Display) OnClientCreated(fn func(*Client)) {
	d.clientCreated = append(d.clientCreated, fn)
}

// OnClientDestroyed registers fn for every disconnected client.
func (d *Display) OnClientDestroyed(fn func(*Client)) {
	d.clientDestroyed = append(d.clientDestroyed, fn)
}

// AddSocket listens on path. A sibling ".lock" file guards against two
// servers claiming the same name; a stale socket left behind by a dead
// server is removed.
func (d *Display) AddSocket(path string) error {
	if d.destroyed {
		return ErrDestroyed
	}
	if len(path) >= len(unix.RawSockaddrUnix{}.Path) {
		return fmt.Errorf("socket path %q too long", path)
	}
	l := &listener{path: path, lockPath: path + ".lock", lockFd: -1, fd: -1}
	lockFd, err := unix.Open(l.lockPath, unix.O_CREAT|unix.O_CLOEXEC|unix.O_RDWR, 0o660)
	if err != nil {
		return fmt.Errorf("opening lock file %s: %w", l.lockPath, err)
	}
	if err := unix.Flock(lockFd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(lockFd)
		return fmt.Errorf("socket %s is in use by another server: %w", path, err)
	}
	l.lockFd = lockFd
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.close()
		return fmt.Errorf("removing stale socket: %w", err)
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		l.close()
		return fmt.Errorf("creating socket: %w", err)
	}
	l.fd = fd
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		l.close()
		return fmt.Errorf("binding %s: %w", path, err)
	}
	if err := unix.Listen(fd, 128); err != nil {
		l.close()
		return fmt.Errorf("listening on %s: %w", path, err)
	}
	if err := d.watch(fd); err != nil {
		l.close()
		return err
	}
	d.listeners = append(d.listeners, l)
	logf(LogImportanceInfo, "listening on %s", path)
	return nil
}

func (l *listener) close() {
	if l.fd >= 0 {
		unix.Close(l.fd)
		os.Remove(l.path)
	}
	if l.lockFd >= 0 {
		os.Remove(l.lockPath)
		unix.Close(l.lockFd)
	}
	l.fd, l.lockFd = -1, -1
}

// SocketDir returns the directory of the first listening socket.
func (d *Display) SocketDir() string {
	if len(d.listeners) == 0 {
		return ""
	}
	return filepath.Dir(d.listeners[0].path)
}

func (d *Display) watch(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("adding fd %d to epoll: %w", fd, err)
	}
	return nil
}

// AddGlobal advertises a new global to every current and future client.
func (d *Display) AddGlobal(iface string, version uint32, bind func(c *Client, id, version uint32) error) *Global {
	g := &Global{name: d.nextGlobal, Interface: iface, Version: version, bind: bind}
	d.nextGlobal++
	d.globals = append(d.globals, g)
	for _, c := range d.clients {
		for _, reg := range c.registries {
			sendGlobal(reg, g)
		}
	}
	return g
}

// RemoveGlobal withdraws g. Already bound objects stay alive.
func (d *Display) RemoveGlobal(g *Global) {
	if g.removed {
		return
	}
	g.removed = true
	for _, c := range d.clients {
		for _, reg := range c.registries {
			reg.Post(reg.NewEvent(registryEventGlobalRemove).PutUint32(g.name))
		}
	}
	for i, other := range d.globals {
		if other == g {
			d.globals = append(d.globals[:i], d.globals[i+1:]...)
			break
		}
	}
}

// Idle queues fn to run during the next Check.
func (d *Display) Idle(fn func()) {
	d.idle = append(d.idle, fn)
}

// DispatchIdle runs queued idle callbacks, including ones queued while
// running.
func (d *Display) DispatchIdle() {
	for len(d.idle) > 0 {
		batch := d.idle
		d.idle = nil
		for _, fn := range batch {
			fn()
		}
	}
}

// FlushClients writes pending events to every client.
func (d *Display) FlushClients() {
	for _, c := range d.clients {
		if err := c.flush(); err != nil {
			logf(LogImportanceDebug, "client %d: flush failed: %v", c.fd(), err)
			c.Destroy()
		}
	}
}

// Prepare is called before the embedding loop sleeps. It reports whether
// idle work is pending, in which case the loop must not block.
func (d *Display) Prepare() bool {
	d.FlushClients()
	return len(d.idle) > 0
}

// Check runs deferred work that cannot wake the loop through Fd. It
// reports whether Dispatch should be called.
func (d *Display) Check(readable bool) bool {
	d.DispatchIdle()
	return readable
}

// Dispatch processes one batch of epoll events, waiting at most
// timeoutMs milliseconds.
func (d *Display) Dispatch(timeoutMs int) error {
	if d.destroyed {
		return ErrDestroyed
	}
	events := make([]unix.EpollEvent, 32)
	n, err := unix.EpollWait(d.epfd, events, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("epoll wait: %w", err)
	}
	for _, ev := range events[:n] {
		fd := int(ev.Fd)
		if l := d.listenerFor(fd); l != nil {
			d.accept(l)
			continue
		}
		c, ok := d.clients[fd]
		if !ok {
			continue
		}
		c.dispatch(ev.Events)
	}
	d.DispatchIdle()
	return nil
}

func (d *Display) listenerFor(fd int) *listener {
	for _, l := range d.listeners {
		if l.fd == fd {
			return l
		}
	}
	return nil
}

func (d *Display) accept(l *listener) {
	for {
		fd, _, err := unix.Accept4(l.fd, unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
		if err != nil {
			if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EINTR) {
				logf(LogImportanceError, "accepting client on %s: %v", l.path, err)
			}
			return
		}
		if _, err := d.CreateClient(fd); err != nil {
			logf(LogImportanceError, "creating client: %v", err)
			unix.Close(fd)
		}
	}
}

// CreateClient adopts an already connected socket as a client.
func (d *Display) CreateClient(fd int) (*Client, error) {
	if d.destroyed {
		return nil, ErrDestroyed
	}
	c, err := newClient(d, fd)
	if err != nil {
		return nil, err
	}
	if err := d.watch(fd); err != nil {
		c.conn.Close()
		return nil, err
	}
	d.clients[fd] = c
	logf(LogImportanceDebug, "client %d connected (pid %d)", fd, c.pid)
	for _, fn := range d.clientCreated {
		fn(c)
	}
	return c, nil
}

func (d *Display) removeClient(c *Client) {
	fd := c.fd()
	unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	delete(d.clients, fd)
	for _, fn := range d.clientDestroyed {
		fn(c)
	}
}

// Clients returns the connected clients in no particular order.
func (d *Display) Clients() []*Client {
	out := make([]*Client, 0, len(d.clients))
	for _, c := range d.clients {
		out = append(out, c)
	}
	return out
}

// DestroyClients disconnects every client.
func (d *Display) DestroyClients() {
	for _, c := range d.Clients() {
		c.Destroy()
	}
}

// Destroy disconnects all clients, closes and unlinks the sockets and
// releases the epoll set. Calling it twice is harmless.
func (d *Display) Destroy() {
	if d.destroyed {
		return
	}
	d.DestroyClients()
	d.idle = nil
	for _, l := range d.listeners {
		l.close()
	}
	d.listeners = nil
	unix.Close(d.epfd)
	d.destroyed = true
}
