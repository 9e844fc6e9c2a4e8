package compositor

import (
	"os"
	"path/filepath"

	"github.com/mstarongithub/wayembed/wlserver"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	socketDirPattern = "wayembed-*"
	socketName       = "wayland.sock"
	xdgShellVersion  = 3
)

// backend is the protocol server with every global the virtual screen
// advertises.
type backend struct {
	display    *wlserver.Display
	compositor *wlserver.Compositor
	shm        *wlserver.Shm
	xdgShell   *wlserver.XdgShell
	seat       *wlserver.Seat
	output     *wlserver.Output
	activation *wlserver.Activation

	socketDir  string
	socketPath string
}

func newBackend(opts Options) (*backend, error) {
	display, err := wlserver.NewDisplay()
	if err != nil {
		return nil, err
	}
	be := &backend{display: display}
	be.compositor = wlserver.NewCompositor(display)
	wlserver.NewSubcompositor(display)
	be.shm = wlserver.NewShm(display)
	be.output = wlserver.NewOutput(display, opts.Name, "wayembed virtual screen")
	be.xdgShell = wlserver.NewXdgShell(display, xdgShellVersion)
	be.seat = wlserver.NewSeat(display, "seat0")
	if err := be.seat.SetKeymap(opts.KeyboardLayout); err != nil {
		logrus.WithError(err).WithField("layout", opts.KeyboardLayout).Warnln("Failed to set keymap")
	}
	wlserver.NewDataDeviceManager(display, be.seat)
	be.activation = wlserver.NewActivation(display)

	be.bindSocket(opts.SocketDir)
	return be, nil
}

func (be *backend) bindSocket(parent string) {
	dir, err := os.MkdirTemp(parent, socketDirPattern)
	if err != nil {
		logrus.WithError(err).Warnln("Failed to create socket directory, clients cannot connect")
		return
	}
	path := filepath.Join(dir, socketName)
	if err := be.display.AddSocket(path); err != nil {
		logrus.WithError(err).WithField("path", path).Warnln("Failed to bind socket, clients cannot connect")
		os.RemoveAll(dir)
		return
	}
	be.socketDir, be.socketPath = dir, path
	logrus.WithField("path", path).Infoln("Listening")
}

func (be *backend) socketName() string {
	if be.socketPath == "" {
		return ""
	}
	return socketName
}

// connect routes protocol events into the compositor.
func (be *backend) connect(comp *Compositor) {
	be.compositor.OnNewSurface(func(s *wlserver.Surface) {
		logrus.WithField("surface", s.ID()).Debugln("newSurface")
		s.OnCommit(comp.surfaceCommitted)
	})
	be.xdgShell.OnNewToplevel(func(t *wlserver.XdgToplevel) {
		comp.newToplevel(wlToplevel{t})
	})
	be.xdgShell.OnNewPopup(func(p *wlserver.XdgPopup) {
		comp.newPopup(wlPopup{p})
	})
	be.seat.OnSetCursor(func(ev wlserver.SetCursorEvent) {
		comp.requestCursor(clientOf(ev.Client), surfaceOf(ev.Surface), int(ev.HotspotX), int(ev.HotspotY))
	})
	be.seat.OnSetSelection(func(ds *wlserver.DataSource) {
		if ds == nil {
			logrus.Debugln("Selection cleared")
			return
		}
		logrus.WithField("mime_types", ds.MimeTypes()).Debugln("Selection set")
	})
	be.activation.OnActivate(func(ev wlserver.ActivateEvent) {
		logrus.WithFields(logrus.Fields{
			"token":  ev.Token,
			"known":  ev.Known,
			"app_id": ev.AppID,
		}).Debugln("requestActivate")
		comp.requestActivate(surfaceOf(ev.Surface))
	})
	be.display.OnClientCreated(func(c *wlserver.Client) {
		logrus.WithField("pid", c.PID()).Infoln("Client connected")
	})
	be.display.OnClientDestroyed(func(c *wlserver.Client) {
		logrus.WithField("pid", c.PID()).Infoln("Client disconnected")
	})
}

// destroy disconnects every client, then removes the socket and its
// directory.
func (be *backend) destroy() error {
	be.display.DestroyClients()
	be.seat.Destroy()
	be.output.Destroy()
	be.display.Destroy()
	if be.socketDir != "" {
		return os.RemoveAll(be.socketDir)
	}
	return nil
}

// Source drives the protocol server from a poll loop: poll Fd for
// reading, call Prepare before sleeping, then Check and, when it returns
// true, Dispatch.
type Source struct {
	comp *Compositor
}

func (src *Source) Fd() int {
	if src.comp.closed || src.comp.be == nil {
		return -1
	}
	return src.comp.be.display.Fd()
}

// Prepare flushes queued events to clients. It returns true while
// deferred work is waiting for Check.
func (src *Source) Prepare() bool {
	if src.comp.closed || src.comp.be == nil {
		return false
	}
	return src.comp.be.display.Prepare()
}

// Check runs deferred protocol work that does not show on Fd.
func (src *Source) Check(readable bool) bool {
	if src.comp.closed || src.comp.be == nil {
		return false
	}
	return src.comp.be.display.Check(readable)
}

// Dispatch handles one batch of client messages without blocking.
func (src *Source) Dispatch() error {
	if src.comp.closed || src.comp.be == nil {
		return ErrClosed
	}
	return src.comp.be.display.Dispatch(0)
}

func monotonicMs() uint32 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint32(ts.Sec*1000 + ts.Nsec/1_000_000)
}
