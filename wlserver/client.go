package wlserver

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/mstarongithub/wayembed/wire"
	"golang.org/x/sys/unix"
)

// Server-allocated object ids start here.
const serverIDStart = 0xff000000

// Handler processes requests addressed to one object.
type Handler interface {
	HandleRequest(r *Resource, opcode uint16, d *wire.Decoder) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(r *Resource, opcode uint16, d *wire.Decoder) error

func (f HandlerFunc) HandleRequest(r *Resource, opcode uint16, d *wire.Decoder) error {
	return f(r, opcode, d)
}

// Resource is one protocol object owned by a client.
type Resource struct {
	client    *Client
	id        uint32
	iface     string
	version   uint32
	handler   Handler
	destroyed bool
	onDestroy []func()
}

func (r *Resource) ID() uint32        { return r.id }
func (r *Resource) Interface() string { return r.iface }
func (r *Resource) Version() uint32   { return r.version }
func (r *Resource) Client() *Client   { return r.client }
func (r *Resource) Destroyed() bool   { return r.destroyed }

// NewEvent starts an event message from this object.
func (r *Resource) NewEvent(opcode uint16) *wire.Message {
	return wire.NewMessage(r.id, opcode)
}

// Post queues an event for delivery. Events to destroyed objects are
// dropped.
func (r *Resource) Post(m *wire.Message) {
	if r.destroyed || r.client.destroyed {
		for _, fd := range m.Fds() {
			unix.Close(fd)
		}
		return
	}
	r.client.queue(m)
}

// OnDestroy registers fn to run when the object goes away, either through
// a destructor request or client disconnect.
func (r *Resource) OnDestroy(fn func()) {
	r.onDestroy = append(r.onDestroy, fn)
}

// Destroy removes the object from its client and runs destroy hooks in
// reverse registration order.
func (r *Resource) Destroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true
	for i := len(r.onDestroy) - 1; i >= 0; i-- {
		r.onDestroy[i]()
	}
	r.onDestroy = nil
	c := r.client
	if c.objects[r.id] == r {
		delete(c.objects, r.id)
	}
	if r.id < serverIDStart && !c.destroyed {
		c.display1.Post(c.display1.NewEvent(displayEventDeleteID).PutUint32(r.id))
	}
}

// PostError sends wl_display.error for this object and disconnects the
// client once the error is flushed.
func (r *Resource) PostError(code uint32, format string, args ...any) {
	r.client.postError(&ProtocolError{ObjectID: r.id, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Client is one connected Wayland client.
type Client struct {
	display    *Display
	conn       *wire.Conn
	objects    map[uint32]*Resource
	registries []*Resource
	display1   *Resource
	pid        int32
	uid, gid   uint32
	destroyed  bool
	closing    bool
	onDestroy  []func()
}

func newClient(d *Display, fd int) (*Client, error) {
	conn, err := wire.NewConn(fd)
	if err != nil {
		return nil, err
	}
	c := &Client{
		display: d,
		conn:    conn,
		objects: make(map[uint32]*Resource),
		pid:     -1,
	}
	if cred, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED); err == nil {
		c.pid, c.uid, c.gid = cred.Pid, cred.Uid, cred.Gid
	}
	c.display1 = &Resource{client: c, id: 1, iface: "wl_display", version: 1, handler: HandlerFunc(c.handleDisplay)}
	c.objects[1] = c.display1
	return c, nil
}

// PID returns the peer's process id, or -1 when unknown.
func (c *Client) PID() int32 {
	return c.pid
}

func (c *Client) Display() *Display {
	return c.display
}

func (c *Client) fd() int {
	return c.conn.Fd()
}

// Object looks up a live object by id.
func (c *Client) Object(id uint32) *Resource {
	return c.objects[id]
}

// OnDestroy registers fn to run when the client disconnects.
func (c *Client) OnDestroy(fn func()) {
	c.onDestroy = append(c.onDestroy, fn)
}

// NewResource registers a client-created object.
func (c *Client) NewResource(id uint32, iface string, version uint32, h Handler) (*Resource, error) {
	if id == 0 || id >= serverIDStart {
		return nil, &ProtocolError{ObjectID: 1, Code: displayErrorInvalidObject, Message: fmt.Sprintf("invalid new id %d", id)}
	}
	if _, taken := c.objects[id]; taken {
		return nil, &ProtocolError{ObjectID: 1, Code: displayErrorInvalidObject, Message: fmt.Sprintf("id %d already in use", id)}
	}
	r := &Resource{client: c, id: id, iface: iface, version: version, handler: h}
	c.objects[id] = r
	return r, nil
}

func (c *Client) queue(m *wire.Message) {
	if err := c.conn.Queue(m); err != nil {
		logf(LogImportanceError, "client %d: queueing event: %v", c.fd(), err)
	}
}

func (c *Client) flush() error {
	if c.destroyed {
		return nil
	}
	if err := c.conn.Flush(); err != nil {
		return err
	}
	if c.closing && !c.conn.Pending() {
		c.Destroy()
	}
	return nil
}

func (c *Client) postError(e *ProtocolError) {
	if c.closing || c.destroyed {
		return
	}
	logf(LogImportanceError, "client %d (pid %d): %v", c.fd(), c.pid, e)
	c.display1.Post(c.display1.NewEvent(displayEventError).
		PutObject(e.ObjectID).
		PutUint32(e.Code).
		PutString(e.Message))
	c.closing = true
}

func (c *Client) dispatch(events uint32) {
	if c.destroyed {
		return
	}
	if events&unix.EPOLLIN != 0 {
		_, err := c.conn.ReadAvailable()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logf(LogImportanceDebug, "client %d: read failed: %v", c.fd(), err)
			}
			c.processMessages()
			c.Destroy()
			return
		}
		c.processMessages()
	}
	if events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 && !c.destroyed {
		c.Destroy()
	}
}

func (c *Client) processMessages() {
	for !c.destroyed && !c.closing {
		d, err := c.conn.Next()
		if err != nil {
			c.postError(&ProtocolError{ObjectID: 1, Code: displayErrorInvalidMethod, Message: err.Error()})
			return
		}
		if d == nil {
			return
		}
		r, ok := c.objects[d.ObjectID]
		if !ok {
			c.postError(&ProtocolError{ObjectID: 1, Code: displayErrorInvalidObject, Message: fmt.Sprintf("invalid object %d", d.ObjectID)})
			return
		}
		err = r.handler.HandleRequest(r, d.Opcode, d)
		if derr := d.Err(); derr != nil {
			c.postError(&ProtocolError{ObjectID: r.id, Code: displayErrorInvalidMethod, Message: fmt.Sprintf("%s@%d.%d: %v", r.iface, r.id, d.Opcode, derr)})
			return
		}
		if err != nil {
			var pe *ProtocolError
			if errors.As(err, &pe) {
				c.postError(pe)
			} else {
				c.postError(&ProtocolError{ObjectID: r.id, Code: displayErrorImplementation, Message: err.Error()})
			}
			return
		}
	}
}

// Destroy disconnects the client and destroys every object it owns.
func (c *Client) Destroy() {
	if c.destroyed {
		return
	}
	c.conn.Flush()
	c.destroyed = true
	// children before parents: higher ids were created later
	ids := make([]uint32, 0, len(c.objects))
	for id := range c.objects {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	slices.Reverse(ids)
	for _, id := range ids {
		if r, ok := c.objects[id]; ok {
			r.Destroy()
		}
	}
	for i := len(c.onDestroy) - 1; i >= 0; i-- {
		c.onDestroy[i]()
	}
	c.display.removeClient(c)
	c.conn.Close()
	logf(LogImportanceDebug, "client (pid %d) disconnected", c.pid)
}
