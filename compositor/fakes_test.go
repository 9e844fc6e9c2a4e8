package compositor

import (
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/mstarongithub/wayembed/pixel"
	"github.com/mstarongithub/wayembed/scene"
	"github.com/stretchr/testify/require"
)

type fakeClient struct{ pid int32 }

func (c *fakeClient) PID() int32 { return c.pid }

type fakeSub struct {
	s    *fakeSurface
	x, y int
}

type fakeSurface struct {
	client  *fakeClient
	color   color.RGBA
	img     *pixel.Image
	parent  *fakeSurface
	subs    []fakeSub
	frames  []uint32
	dx, dy  int
	nextID  int
	commits map[int]func()
}

func newFakeSurface(c *fakeClient, w, h int, col color.RGBA) *fakeSurface {
	s := &fakeSurface{client: c, color: col, commits: make(map[int]func())}
	s.resize(w, h)
	return s
}

func (s *fakeSurface) resize(w, h int) {
	if w <= 0 || h <= 0 {
		s.img = nil
		return
	}
	s.img = pixel.NewImage(pixel.FormatARGB8888, w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s.img.WritePremul(x, y, s.color.R, s.color.G, s.color.B, s.color.A)
		}
	}
}

func (s *fakeSurface) Image() *pixel.Image { return s.img }

func (s *fakeSurface) Subsurfaces(fn func(scene.SurfaceSource, int, int)) {
	for _, sub := range s.subs {
		fn(sub.s, sub.x, sub.y)
	}
}

func (s *fakeSurface) InputContains(sx, sy int) bool {
	return !s.img.Empty() && image.Pt(sx, sy).In(s.img.Bounds())
}

func (s *fakeSurface) SendFrameDone(ms uint32) { s.frames = append(s.frames, ms) }
func (s *fakeSurface) Delta() (int, int)       { return s.dx, s.dy }

func (s *fakeSurface) Client() Client {
	if s.client == nil {
		return nil
	}
	return s.client
}

func (s *fakeSurface) Root() Surface {
	r := s
	for r.parent != nil {
		r = r.parent
	}
	return r
}

func (s *fakeSurface) OnCommit(fn func()) func() {
	id := s.nextID
	s.nextID++
	s.commits[id] = fn
	return func() { delete(s.commits, id) }
}

func (s *fakeSurface) commit() {
	for _, fn := range s.commits {
		fn()
	}
}

type fakeToplevel struct {
	surface  *fakeSurface
	appID    string
	title    string
	listener ToplevelListener

	initialized bool
	configured  bool
	// autoAck makes every scheduled change current at once, as a
	// client that acks and commits immediately would.
	autoAck bool

	reqMaximized, reqFullscreen bool
	scheduled, current          ToplevelState
	minW, minH                  int
	closed                      bool
}

func (t *fakeToplevel) Surface() Surface               { return t.surface }
func (t *fakeToplevel) AppID() string                  { return t.appID }
func (t *fakeToplevel) Title() string                  { return t.title }
func (t *fakeToplevel) SetListener(l ToplevelListener) { t.listener = l }
func (t *fakeToplevel) Initialized() bool              { return t.initialized }
func (t *fakeToplevel) Configured() bool               { return t.configured }
func (t *fakeToplevel) Requested() (bool, bool)        { return t.reqMaximized, t.reqFullscreen }
func (t *fakeToplevel) Scheduled() ToplevelState       { return t.scheduled }
func (t *fakeToplevel) Current() ToplevelState         { return t.current }
func (t *fakeToplevel) MinSize() (int, int)            { return t.minW, t.minH }
func (t *fakeToplevel) Close()                         { t.closed = true }

func (t *fakeToplevel) Geometry() image.Rectangle {
	if t.current.Width > 0 && t.current.Height > 0 {
		return image.Rect(0, 0, t.current.Width, t.current.Height)
	}
	if t.surface.img.Empty() {
		return image.Rectangle{}
	}
	return t.surface.img.Bounds()
}

func (t *fakeToplevel) changed() {
	if t.autoAck {
		t.ack()
	}
}

// ack applies the scheduled state the way an acked configure followed by
// a commit of a matching buffer does.
func (t *fakeToplevel) ack() {
	t.current = t.scheduled
	if t.current.Width > 0 && t.current.Height > 0 {
		t.surface.resize(t.current.Width, t.current.Height)
	}
}

func (t *fakeToplevel) SetSize(w, h int) {
	t.scheduled.Width, t.scheduled.Height = w, h
	t.changed()
}

func (t *fakeToplevel) SetMaximized(on bool) {
	t.scheduled.Maximized = on
	t.changed()
}

func (t *fakeToplevel) SetFullscreen(on bool) {
	t.scheduled.Fullscreen = on
	t.changed()
}

func (t *fakeToplevel) SetActivated(on bool) {
	t.scheduled.Activated = on
	t.changed()
}

func (t *fakeToplevel) requestMaximize(on bool) {
	t.reqMaximized = on
	t.listener.RequestMaximize()
}

func (t *fakeToplevel) requestFullscreen(on bool) {
	t.reqFullscreen = on
	t.listener.RequestFullscreen()
}

type fakePopup struct {
	surface  *fakeSurface
	parent   *fakeSurface
	parentG  image.Rectangle
	geometry image.Rectangle
	own      image.Rectangle
	listener PopupListener
}

func (p *fakePopup) Surface() Surface                { return p.surface }
func (p *fakePopup) ParentGeometry() image.Rectangle { return p.parentG }
func (p *fakePopup) Geometry() image.Rectangle       { return p.geometry }
func (p *fakePopup) OwnGeometry() image.Rectangle    { return p.own }
func (p *fakePopup) SetListener(l PopupListener)     { p.listener = l }

func (p *fakePopup) Parent() Surface {
	if p.parent == nil {
		return nil
	}
	return p.parent
}

type axisEvent struct {
	axis     Axis
	value    float64
	discrete int32
}

type fakeSeat struct {
	pointerFocus  Surface
	keyboardFocus Surface
	events        []string
	buttons       []uint32
	axes          []axisEvent
	keys          []uint32
	mods          []uint32
}

func (s *fakeSeat) PointerFocus() Surface  { return s.pointerFocus }
func (s *fakeSeat) KeyboardFocus() Surface { return s.keyboardFocus }

func (s *fakeSeat) PointerFocusClient() Client {
	if s.pointerFocus == nil {
		return nil
	}
	return s.pointerFocus.Client()
}

func (s *fakeSeat) PointerNotifyEnter(surface Surface, sx, sy float64) {
	s.pointerFocus = surface
	s.events = append(s.events, "enter")
}

func (s *fakeSeat) PointerNotifyMotion(_ uint32, sx, sy float64) {
	s.events = append(s.events, fmt.Sprintf("motion %g,%g", sx, sy))
}

func (s *fakeSeat) PointerClearFocus() {
	s.pointerFocus = nil
	s.events = append(s.events, "clear")
}

func (s *fakeSeat) PointerNotifyButton(_ uint32, button uint32, pressed bool) {
	s.buttons = append(s.buttons, button)
	s.events = append(s.events, fmt.Sprintf("button %#x %t", button, pressed))
}

func (s *fakeSeat) PointerNotifyAxis(_ uint32, axis Axis, value float64, discrete int32) {
	s.axes = append(s.axes, axisEvent{axis, value, discrete})
	s.events = append(s.events, "axis")
}

func (s *fakeSeat) PointerNotifyFrame() {
	s.events = append(s.events, "frame")
}

func (s *fakeSeat) KeyboardNotifyEnter(surface Surface) {
	s.keyboardFocus = surface
}

func (s *fakeSeat) KeyboardNotifyKey(_ uint32, key uint32, _ bool) {
	s.keys = append(s.keys, key)
}

func (s *fakeSeat) KeyboardNotifyModifiers(depressed uint32) {
	s.mods = append(s.mods, depressed)
}

type fakeOutput struct {
	width, height, refresh int
	modes                  int
}

func (o *fakeOutput) SetMode(w, h, refresh int) {
	o.width, o.height, o.refresh = w, h, refresh
	o.modes++
}

type fakeHost struct {
	events  []string
	cursors []*Cursor
}

func (h *fakeHost) BeginUpdating() { h.events = append(h.events, "begin") }
func (h *fakeHost) EndUpdating()   { h.events = append(h.events, "end") }
func (h *fakeHost) QueueDraw()     { h.events = append(h.events, "queue-draw") }

func (h *fakeHost) SetCursor(c *Cursor) {
	h.cursors = append(h.cursors, c)
}

type harness struct {
	t      *testing.T
	comp   *Compositor
	seat   *fakeSeat
	output *fakeOutput
	host   *fakeHost
	client *fakeClient
	idle   []func()
}

var (
	white = color.RGBA{0xff, 0xff, 0xff, 0xff}
	red   = color.RGBA{0xff, 0, 0, 0xff}
	blue  = color.RGBA{0, 0, 0xff, 0xff}
)

func newHarness(t *testing.T, modify ...func(*Options)) *harness {
	opts := DefaultOptions()
	for _, fn := range modify {
		fn(&opts)
	}
	h := &harness{
		t:      t,
		seat:   &fakeSeat{},
		output: &fakeOutput{},
		host:   &fakeHost{},
		client: &fakeClient{pid: 42},
	}
	h.comp = newCompositor(opts, h.seat, h.output, func(fn func()) {
		h.idle = append(h.idle, fn)
	})
	h.comp.now = func() uint32 { return 1234 }
	h.comp.SetHost(h.host)
	return h
}

func (h *harness) runIdle() {
	for len(h.idle) > 0 {
		batch := h.idle
		h.idle = nil
		for _, fn := range batch {
			fn()
		}
	}
}

// newWindow creates a toplevel and sets its app id, without mapping it.
func (h *harness) newWindow(appID string, w, height int, col color.RGBA) (*Window, *fakeToplevel) {
	t := &fakeToplevel{
		surface: newFakeSurface(h.client, w, height, col),
		autoAck: true,
	}
	win := h.comp.newToplevel(t)
	require.NotNil(h.t, t.listener)
	if appID != "" {
		t.appID = appID
		t.listener.SetAppID(appID)
	}
	return win, t
}

// mapWindow runs a toplevel through its initial commit, configure and
// map.
func (h *harness) mapWindow(appID string, w, height int, col color.RGBA) (*Window, *fakeToplevel) {
	win, t := h.newWindow(appID, w, height, col)
	t.initialized = true
	t.listener.Commit(true)
	t.configured = true
	t.listener.Map()
	return win, t
}
