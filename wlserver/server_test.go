package wlserver

import (
	"encoding/binary"
	"image"
	"testing"

	"github.com/mstarongithub/wayembed/pixel"
	"github.com/mstarongithub/wayembed/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type testServer struct {
	display *Display
	comp    *Compositor
	xdg     *XdgShell
	seat    *Seat
	act     *Activation
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	d, err := NewDisplay()
	require.NoError(t, err)
	t.Cleanup(d.Destroy)
	s := &testServer{display: d}
	s.comp = NewCompositor(d)
	NewSubcompositor(d)
	NewShm(d)
	s.xdg = NewXdgShell(d, 3)
	s.seat = NewSeat(d, "seat0")
	s.act = NewActivation(d)
	return s
}

type testClient struct {
	t       *testing.T
	srv     *testServer
	conn    *wire.Conn
	nextID  uint32
	events  []*wire.Decoder
	globals map[string]uint32
}

func (s *testServer) connect(t *testing.T) *testClient {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	_, err = s.display.CreateClient(fds[0])
	require.NoError(t, err)
	conn, err := wire.NewConn(fds[1])
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	c := &testClient{t: t, srv: s, conn: conn, nextID: 2, globals: make(map[string]uint32)}

	reg := c.newID()
	c.send(wire.NewMessage(1, displayRequestGetRegistry).PutObject(reg))
	c.roundtrip()
	for _, ev := range c.take(reg, registryEventGlobal) {
		name := ev.Uint32()
		c.globals[ev.String()] = name
	}
	c.globals["wl_registry"] = reg
	return c
}

func (c *testClient) newID() uint32 {
	id := c.nextID
	c.nextID++
	return id
}

func (c *testClient) send(m *wire.Message) {
	require.NoError(c.t, c.conn.Queue(m))
	require.NoError(c.t, c.conn.Flush())
}

// roundtrip lets the server process everything sent so far and collects
// the events it produced.
func (c *testClient) roundtrip() {
	d := c.srv.display
	require.NoError(c.t, d.Dispatch(0))
	d.Check(false)
	d.Prepare()
	_, err := c.conn.ReadAvailable()
	require.NoError(c.t, err)
	for {
		ev, err := c.conn.Next()
		require.NoError(c.t, err)
		if ev == nil {
			return
		}
		c.events = append(c.events, ev)
	}
}

// take removes and returns the collected events for one object and opcode.
func (c *testClient) take(id uint32, opcode uint16) []*wire.Decoder {
	var out, rest []*wire.Decoder
	for _, ev := range c.events {
		if ev.ObjectID == id && ev.Opcode == opcode {
			out = append(out, ev)
		} else {
			rest = append(rest, ev)
		}
	}
	c.events = rest
	return out
}

func (c *testClient) bind(iface string, version uint32) uint32 {
	name, ok := c.globals[iface]
	require.True(c.t, ok, "global %s not advertised", iface)
	id := c.newID()
	c.send(wire.NewMessage(c.globals["wl_registry"], registryRequestBind).
		PutUint32(name).PutString(iface).PutUint32(version).PutObject(id))
	return id
}

// protocolError returns the code of a wl_display.error, or -1.
func (c *testClient) protocolError() (object uint32, code int) {
	evs := c.take(1, displayEventError)
	if len(evs) == 0 {
		return 0, -1
	}
	return evs[0].Object(), int(evs[0].Uint32())
}

// buffer creates a width x height ARGB buffer filled with color.
func (c *testClient) buffer(shm uint32, width, height int, color uint32) uint32 {
	size := width * height * 4
	fd, err := unix.MemfdCreate("test-buffer", unix.MFD_CLOEXEC)
	require.NoError(c.t, err)
	defer unix.Close(fd)
	data := make([]byte, size)
	for i := 0; i < size; i += 4 {
		binary.LittleEndian.PutUint32(data[i:], color)
	}
	_, err = unix.Write(fd, data)
	require.NoError(c.t, err)
	dup, err := unix.Dup(fd)
	require.NoError(c.t, err)

	pool := c.newID()
	c.send(wire.NewMessage(shm, shmRequestCreatePool).PutObject(pool).PutFd(dup).PutInt32(int32(size)))
	buf := c.newID()
	c.send(wire.NewMessage(pool, poolRequestCreateBuffer).
		PutObject(buf).PutInt32(0).
		PutInt32(int32(width)).PutInt32(int32(height)).
		PutInt32(int32(width*4)).PutUint32(pixel.ShmARGB8888))
	c.send(wire.NewMessage(pool, poolRequestDestroy))
	return buf
}

type recordingToplevel struct {
	events []string
	appID  string
}

func (r *recordingToplevel) Map()                      { r.events = append(r.events, "map") }
func (r *recordingToplevel) Unmap()                    { r.events = append(r.events, "unmap") }
func (r *recordingToplevel) Destroy()                  { r.events = append(r.events, "destroy") }
func (r *recordingToplevel) RequestMove(uint32)        { r.events = append(r.events, "move") }
func (r *recordingToplevel) RequestResize(_, _ uint32) { r.events = append(r.events, "resize") }
func (r *recordingToplevel) RequestMaximize()          { r.events = append(r.events, "maximize") }
func (r *recordingToplevel) RequestFullscreen()        { r.events = append(r.events, "fullscreen") }
func (r *recordingToplevel) SetAppID(id string)        { r.appID = id }
func (r *recordingToplevel) Commit(initial bool) {
	if initial {
		r.events = append(r.events, "initial-commit")
	} else {
		r.events = append(r.events, "commit")
	}
}

type toplevelFixture struct {
	client   *testClient
	wm       uint32
	surface  uint32
	xdgSurf  uint32
	toplevel uint32
	shm      uint32
	server   *XdgToplevel
	listener *recordingToplevel
}

func newToplevel(t *testing.T, s *testServer) *toplevelFixture {
	t.Helper()
	c := s.connect(t)
	f := &toplevelFixture{client: c, listener: &recordingToplevel{}}
	s.xdg.OnNewToplevel(func(tl *XdgToplevel) {
		f.server = tl
		tl.SetListener(f.listener)
	})
	comp := c.bind("wl_compositor", 5)
	f.wm = c.bind("xdg_wm_base", 3)
	f.shm = c.bind("wl_shm", 1)
	f.surface = c.newID()
	c.send(wire.NewMessage(comp, compositorRequestCreateSurface).PutObject(f.surface))
	f.xdgSurf = c.newID()
	c.send(wire.NewMessage(f.wm, wmBaseRequestGetXdgSurface).PutObject(f.xdgSurf).PutObject(f.surface))
	f.toplevel = c.newID()
	c.send(wire.NewMessage(f.xdgSurf, xdgSurfaceRequestGetToplevel).PutObject(f.toplevel))
	c.roundtrip()
	require.NotNil(t, f.server)
	return f
}

func (f *toplevelFixture) commit() {
	f.client.send(wire.NewMessage(f.surface, surfaceRequestCommit))
	f.client.roundtrip()
}

// configure returns the serial of the latest xdg_surface.configure.
func (f *toplevelFixture) configure() uint32 {
	evs := f.client.take(f.xdgSurf, xdgSurfaceEventConfigure)
	require.NotEmpty(f.client.t, evs)
	return evs[len(evs)-1].Uint32()
}

func (f *toplevelFixture) ack(serial uint32) {
	f.client.send(wire.NewMessage(f.xdgSurf, xdgSurfaceRequestAckConfigure).PutUint32(serial))
}

func (f *toplevelFixture) attach(buf uint32) {
	f.client.send(wire.NewMessage(f.surface, surfaceRequestAttach).PutObject(buf).PutInt32(0).PutInt32(0))
}

func TestRegistryAdvertisesGlobals(t *testing.T) {
	s := newTestServer(t)
	c := s.connect(t)
	for _, iface := range []string{"wl_compositor", "wl_subcompositor", "wl_shm", "xdg_wm_base", "wl_seat", "xdg_activation_v1"} {
		assert.Contains(t, c.globals, iface)
	}
}

func TestBindInvalidGlobal(t *testing.T) {
	s := newTestServer(t)
	c := s.connect(t)
	c.send(wire.NewMessage(c.globals["wl_registry"], registryRequestBind).
		PutUint32(999).PutString("wl_nothing").PutUint32(1).PutObject(c.newID()))
	c.roundtrip()
	obj, code := c.protocolError()
	assert.Equal(t, c.globals["wl_registry"], obj)
	assert.Equal(t, displayErrorInvalidObject, code)
}

func TestSyncCallback(t *testing.T) {
	s := newTestServer(t)
	c := s.connect(t)
	cb := c.newID()
	c.send(wire.NewMessage(1, displayRequestSync).PutObject(cb))
	c.roundtrip()
	assert.Len(t, c.take(cb, callbackEventDone), 1)
	deleted := c.take(1, displayEventDeleteID)
	require.Len(t, deleted, 1)
	assert.Equal(t, cb, deleted[0].Uint32())
}

func TestToplevelConfigureAndMap(t *testing.T) {
	s := newTestServer(t)
	f := newToplevel(t, s)
	c := f.client

	f.commit()
	assert.Equal(t, []string{"initial-commit"}, f.listener.events)
	assert.True(t, f.server.Base().Initialized())

	configures := c.take(f.toplevel, toplevelEventConfigure)
	require.Len(t, configures, 1)
	assert.Equal(t, int32(0), configures[0].Int32())
	assert.Equal(t, int32(0), configures[0].Int32())
	serial := f.configure()

	f.ack(serial)
	f.attach(c.buffer(f.shm, 4, 3, 0xff00ff00))
	f.commit()
	_, code := c.protocolError()
	require.Equal(t, -1, code)

	assert.Equal(t, []string{"initial-commit", "commit", "map"}, f.listener.events)
	assert.True(t, f.server.Base().Mapped())
	img := f.server.Surface().Image()
	require.NotNil(t, img)
	assert.Equal(t, 4, img.Width)
	assert.Equal(t, 3, img.Height)
	assert.Equal(t, image.Rect(0, 0, 4, 3), f.server.Geometry())

	// a null buffer unmaps and starts over
	f.attach(0)
	f.commit()
	assert.Equal(t, "unmap", f.listener.events[len(f.listener.events)-1])
	assert.False(t, f.server.Base().Initialized())
}

func TestToplevelScheduledState(t *testing.T) {
	s := newTestServer(t)
	f := newToplevel(t, s)
	c := f.client
	f.commit()
	f.ack(f.configure())
	c.take(f.toplevel, toplevelEventConfigure)

	f.server.SetSize(200, 100)
	f.server.SetActivated(true)
	f.server.SetMaximized(true)
	c.roundtrip()

	configures := c.take(f.toplevel, toplevelEventConfigure)
	require.Len(t, configures, 1, "state changes coalesce into one configure")
	ev := configures[0]
	assert.Equal(t, int32(200), ev.Int32())
	assert.Equal(t, int32(100), ev.Int32())
	states := ev.Array()
	require.Len(t, states, 8)
	assert.Equal(t, uint32(toplevelStateMaximized), binary.LittleEndian.Uint32(states))
	assert.Equal(t, uint32(toplevelStateActivated), binary.LittleEndian.Uint32(states[4:]))

	assert.False(t, f.server.Current().Maximized)
	f.ack(f.configure())
	f.commit()
	assert.True(t, f.server.Current().Maximized)
	assert.Equal(t, 200, f.server.Current().Width)
}

func TestToplevelRequests(t *testing.T) {
	s := newTestServer(t)
	f := newToplevel(t, s)
	c := f.client

	c.send(wire.NewMessage(f.toplevel, toplevelRequestSetAppID).PutString("org.example.app"))
	c.send(wire.NewMessage(f.toplevel, toplevelRequestSetTitle).PutString("hello"))
	c.send(wire.NewMessage(f.toplevel, toplevelRequestSetMaximized))
	c.send(wire.NewMessage(f.toplevel, toplevelRequestSetFullscreen).PutObject(0))
	c.send(wire.NewMessage(f.toplevel, toplevelRequestMove).PutObject(0).PutUint32(5))
	c.send(wire.NewMessage(f.toplevel, toplevelRequestSetMinSize).PutInt32(50).PutInt32(40))
	c.roundtrip()

	assert.Equal(t, "org.example.app", f.listener.appID)
	assert.Equal(t, "hello", f.server.Title())
	assert.Equal(t, []string{"maximize", "fullscreen", "move"}, f.listener.events)
	maximized, fullscreen := f.server.Requested()
	assert.True(t, maximized)
	assert.True(t, fullscreen)

	w, h := f.server.MinSize()
	assert.Zero(t, w+h, "min size is double-buffered")
	f.commit()
	w, h = f.server.MinSize()
	assert.Equal(t, 50, w)
	assert.Equal(t, 40, h)
}

func TestXdgProtocolErrors(t *testing.T) {
	tests := []struct {
		name   string
		send   func(f *toplevelFixture)
		object func(f *toplevelFixture) uint32
		code   int
	}{
		{
			name: "buffer before configure",
			send: func(f *toplevelFixture) {
				f.attach(f.client.buffer(f.shm, 2, 2, 0xffffffff))
				f.client.send(wire.NewMessage(f.surface, surfaceRequestCommit))
			},
			object: func(f *toplevelFixture) uint32 { return f.xdgSurf },
			code:   xdgSurfaceErrorUnconfiguredBuffer,
		},
		{
			name: "unknown serial",
			send: func(f *toplevelFixture) {
				f.ack(12345)
			},
			object: func(f *toplevelFixture) uint32 { return f.xdgSurf },
			code:   xdgSurfaceErrorInvalidSerial,
		},
		{
			name: "opposite resize edges",
			send: func(f *toplevelFixture) {
				f.client.send(wire.NewMessage(f.toplevel, toplevelRequestResize).
					PutObject(0).PutUint32(1).PutUint32(EdgeLeft | EdgeRight))
			},
			object: func(f *toplevelFixture) uint32 { return f.toplevel },
			code:   toplevelErrorInvalidResizeEdge,
		},
		{
			name: "second role object",
			send: func(f *toplevelFixture) {
				f.client.send(wire.NewMessage(f.xdgSurf, xdgSurfaceRequestGetToplevel).PutObject(f.client.newID()))
			},
			object: func(f *toplevelFixture) uint32 { return f.xdgSurf },
			code:   xdgSurfaceErrorAlreadyConstructed,
		},
		{
			name: "surface destroyed before role",
			send: func(f *toplevelFixture) {
				f.client.send(wire.NewMessage(f.xdgSurf, xdgSurfaceRequestDestroy))
			},
			object: func(f *toplevelFixture) uint32 { return f.xdgSurf },
			code:   xdgSurfaceErrorDefunctRoleObject,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			f := newToplevel(t, s)
			tt.send(f)
			f.client.roundtrip()
			obj, code := f.client.protocolError()
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.object(f), obj)
		})
	}
}

func TestToplevelDestroyUnmaps(t *testing.T) {
	s := newTestServer(t)
	f := newToplevel(t, s)
	c := f.client
	f.commit()
	f.ack(f.configure())
	f.attach(c.buffer(f.shm, 2, 2, 0xffffffff))
	f.commit()
	require.True(t, f.server.Base().Mapped())

	c.send(wire.NewMessage(f.toplevel, toplevelRequestDestroy))
	c.roundtrip()
	assert.Equal(t, []string{"unmap", "destroy"}, f.listener.events[len(f.listener.events)-2:])
	assert.True(t, f.server.Destroyed())
}

func TestPositionerGeometry(t *testing.T) {
	tests := []struct {
		name    string
		anchor  uint32
		gravity uint32
		offset  image.Point
		want    image.Rectangle
	}{
		{"centered", anchorNone, anchorNone, image.Point{}, image.Rect(5, 10, 15, 20)},
		{"below right", anchorBottomRight, anchorBottomRight, image.Point{}, image.Rect(20, 30, 30, 40)},
		{"above left", anchorTopLeft, anchorTopLeft, image.Point{}, image.Rect(-10, -10, 0, 0)},
		{"bottom with offset", anchorBottom, anchorBottom, image.Pt(2, 3), image.Rect(7, 33, 17, 43)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := positioner{
				width: 10, height: 10,
				anchorRect: image.Rect(0, 0, 20, 30), anchorSet: true,
				anchor: tt.anchor, gravity: tt.gravity,
				offsetX: tt.offset.X, offsetY: tt.offset.Y,
			}
			assert.Equal(t, tt.want, p.geometry())
		})
	}
}

func TestValidEdges(t *testing.T) {
	for edges := uint32(0); edges < 16; edges++ {
		want := edges < 11 && edges != 3 && edges != 7
		assert.Equal(t, want, validEdges(edges), "edges %d", edges)
	}
}

func TestActivationToken(t *testing.T) {
	s := newTestServer(t)
	var got []ActivateEvent
	s.act.OnActivate(func(ev ActivateEvent) { got = append(got, ev) })
	f := newToplevel(t, s)
	c := f.client

	a := c.bind("xdg_activation_v1", 1)
	tok := c.newID()
	c.send(wire.NewMessage(a, activationRequestGetActivationToken).PutObject(tok))
	c.send(wire.NewMessage(tok, activationTokenRequestSetAppID).PutString("org.example.app"))
	c.send(wire.NewMessage(tok, activationTokenRequestCommit))
	c.roundtrip()
	done := c.take(tok, activationTokenEventDone)
	require.Len(t, done, 1)
	token := done[0].String()
	assert.Len(t, token, 32)

	c.send(wire.NewMessage(a, activationRequestActivate).PutString(token).PutObject(f.surface))
	c.roundtrip()
	require.Len(t, got, 1)
	assert.True(t, got[0].Known)
	assert.Equal(t, "org.example.app", got[0].AppID)
	assert.Equal(t, f.server.Surface(), got[0].Surface)
}
