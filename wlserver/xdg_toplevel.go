package wlserver

import (
	"encoding/binary"
	"image"

	"github.com/mstarongithub/wayembed/wire"
)

const (
	toplevelRequestDestroy         = 0
	toplevelRequestSetParent       = 1
	toplevelRequestSetTitle        = 2
	toplevelRequestSetAppID        = 3
	toplevelRequestShowWindowMenu  = 4
	toplevelRequestMove            = 5
	toplevelRequestResize          = 6
	toplevelRequestSetMaxSize      = 7
	toplevelRequestSetMinSize      = 8
	toplevelRequestSetMaximized    = 9
	toplevelRequestUnsetMaximized  = 10
	toplevelRequestSetFullscreen   = 11
	toplevelRequestUnsetFullscreen = 12
	toplevelRequestSetMinimized    = 13

	toplevelEventConfigure = 0
	toplevelEventClose     = 1

	toplevelStateMaximized  = 1
	toplevelStateFullscreen = 2
	toplevelStateResizing   = 3
	toplevelStateActivated  = 4

	toplevelErrorInvalidResizeEdge = 0
	toplevelErrorInvalidParent     = 1
	toplevelErrorInvalidSize       = 2
)

// Resize edges as sent in xdg_toplevel.resize.
const (
	EdgeNone   uint32 = 0
	EdgeTop    uint32 = 1
	EdgeBottom uint32 = 2
	EdgeLeft   uint32 = 4
	EdgeRight  uint32 = 8
)

// ToplevelState is the configurable state of a toplevel. A zero size
// lets the client choose.
type ToplevelState struct {
	Width, Height int
	Maximized     bool
	Fullscreen    bool
	Activated     bool
	Resizing      bool
}

// ToplevelListener receives toplevel lifecycle events and client
// requests.
type ToplevelListener interface {
	Map()
	Unmap()
	Commit(initial bool)
	Destroy()
	RequestMove(serial uint32)
	RequestResize(serial, edges uint32)
	RequestMaximize()
	RequestFullscreen()
	SetAppID(id string)
}

type nopToplevelListener struct{}

func (nopToplevelListener) Map()                      {}
func (nopToplevelListener) Unmap()                    {}
func (nopToplevelListener) Commit(bool)               {}
func (nopToplevelListener) Destroy()                  {}
func (nopToplevelListener) RequestMove(uint32)        {}
func (nopToplevelListener) RequestResize(_, _ uint32) {}
func (nopToplevelListener) RequestMaximize()          {}
func (nopToplevelListener) RequestFullscreen()        {}
func (nopToplevelListener) SetAppID(string)           {}

// XdgToplevel is an xdg_toplevel role object.
type XdgToplevel struct {
	base     *XdgSurface
	res      *Resource
	listener ToplevelListener

	// scheduled is what the next configure will carry; current is the
	// last acked state applied by a commit.
	scheduled ToplevelState
	current   ToplevelState

	requestedMaximized  bool
	requestedFullscreen bool

	title  string
	appID  string
	parent *XdgToplevel

	pendingMin, min image.Point
	pendingMax, max image.Point

	destroyed bool
}

// SetListener replaces the listener. A nil listener drops all events.
func (t *XdgToplevel) SetListener(l ToplevelListener) {
	if l == nil {
		l = nopToplevelListener{}
	}
	t.listener = l
}

func (t *XdgToplevel) Base() *XdgSurface        { return t.base }
func (t *XdgToplevel) Surface() *Surface        { return t.base.surface }
func (t *XdgToplevel) Title() string            { return t.title }
func (t *XdgToplevel) AppID() string            { return t.appID }
func (t *XdgToplevel) Parent() *XdgToplevel     { return t.parent }
func (t *XdgToplevel) Current() ToplevelState   { return t.current }
func (t *XdgToplevel) Scheduled() ToplevelState { return t.scheduled }
func (t *XdgToplevel) Destroyed() bool          { return t.destroyed }

// Requested reports what the client last asked for through
// set/unset_maximized and set/unset_fullscreen.
func (t *XdgToplevel) Requested() (maximized, fullscreen bool) {
	return t.requestedMaximized, t.requestedFullscreen
}

// MinSize is the committed minimum size; zero means unconstrained.
func (t *XdgToplevel) MinSize() (int, int) { return t.min.X, t.min.Y }
func (t *XdgToplevel) MaxSize() (int, int) { return t.max.X, t.max.Y }

// Geometry is the window geometry of the underlying xdg_surface.
func (t *XdgToplevel) Geometry() image.Rectangle { return t.base.Geometry() }

// SetSize schedules a configure with the given size.
func (t *XdgToplevel) SetSize(width, height int) {
	t.scheduled.Width, t.scheduled.Height = width, height
	t.base.scheduleConfigure()
}

func (t *XdgToplevel) SetMaximized(on bool) {
	t.scheduled.Maximized = on
	t.base.scheduleConfigure()
}

func (t *XdgToplevel) SetFullscreen(on bool) {
	t.scheduled.Fullscreen = on
	t.base.scheduleConfigure()
}

func (t *XdgToplevel) SetActivated(on bool) {
	if t.scheduled.Activated == on {
		return
	}
	t.scheduled.Activated = on
	t.base.scheduleConfigure()
}

func (t *XdgToplevel) SetResizing(on bool) {
	t.scheduled.Resizing = on
	t.base.scheduleConfigure()
}

// Close asks the client to close the window.
func (t *XdgToplevel) Close() {
	if t.destroyed {
		return
	}
	t.res.Post(t.res.NewEvent(toplevelEventClose))
}

func (t *XdgToplevel) sendConfigure() {
	st := t.scheduled
	var states []byte
	add := func(v uint32) { states = binary.LittleEndian.AppendUint32(states, v) }
	if st.Maximized {
		add(toplevelStateMaximized)
	}
	if st.Fullscreen {
		add(toplevelStateFullscreen)
	}
	if st.Resizing {
		add(toplevelStateResizing)
	}
	if st.Activated {
		add(toplevelStateActivated)
	}
	t.res.Post(t.res.NewEvent(toplevelEventConfigure).
		PutInt32(int32(st.Width)).
		PutInt32(int32(st.Height)).
		PutArray(states))
}

func (t *XdgToplevel) applyPending() {
	t.min = t.pendingMin
	t.max = t.pendingMax
}

func (t *XdgToplevel) destroy() {
	if t.destroyed {
		return
	}
	t.destroyed = true
	xs := t.base
	xs.dismissChildren()
	if xs.mapped {
		xs.mapped = false
		t.listener.Unmap()
	}
	t.listener.Destroy()
	if xs.toplevel == t {
		xs.toplevel = nil
	}
	xs.configures = nil
	xs.acked = nil
	xs.configured = false
	xs.initialCommitted = false
}

// validEdges rejects combinations of opposite edges.
func validEdges(edges uint32) bool {
	if edges > EdgeTop|EdgeBottom|EdgeLeft|EdgeRight {
		return false
	}
	if edges&EdgeTop != 0 && edges&EdgeBottom != 0 {
		return false
	}
	return edges&EdgeLeft == 0 || edges&EdgeRight == 0
}

func (t *XdgToplevel) handle(r *Resource, opcode uint16, d *wire.Decoder) error {
	switch opcode {
	case toplevelRequestDestroy:
		r.Destroy()
	case toplevelRequestSetParent:
		id := d.Object()
		if d.Err() != nil {
			return nil
		}
		if id == 0 {
			t.parent = nil
			return nil
		}
		parent := toplevelFromResource(r.client.Object(id))
		if parent == nil {
			return protoErr(r, toplevelErrorInvalidParent, "invalid parent %d", id)
		}
		for p := parent; p != nil; p = p.parent {
			if p == t {
				return protoErr(r, toplevelErrorInvalidParent, "parent would create a loop")
			}
		}
		t.parent = parent
	case toplevelRequestSetTitle:
		title := d.String()
		if d.Err() == nil {
			t.title = title
		}
	case toplevelRequestSetAppID:
		id := d.String()
		if d.Err() != nil {
			return nil
		}
		t.appID = id
		t.listener.SetAppID(id)
	case toplevelRequestShowWindowMenu:
		d.Object()
		d.Uint32()
		d.Int32()
		d.Int32()
		logf(LogImportanceDebug, "xdg_toplevel@%d: window menu is not supported", r.id)
	case toplevelRequestMove:
		d.Object()
		serial := d.Uint32()
		if d.Err() == nil {
			t.listener.RequestMove(serial)
		}
	case toplevelRequestResize:
		d.Object()
		serial := d.Uint32()
		edges := d.Uint32()
		if d.Err() != nil {
			return nil
		}
		if !validEdges(edges) {
			return protoErr(r, toplevelErrorInvalidResizeEdge, "invalid resize edges %d", edges)
		}
		t.listener.RequestResize(serial, edges)
	case toplevelRequestSetMaxSize, toplevelRequestSetMinSize:
		w, h := int(d.Int32()), int(d.Int32())
		if d.Err() != nil {
			return nil
		}
		if w < 0 || h < 0 {
			return protoErr(r, toplevelErrorInvalidSize, "negative size %dx%d", w, h)
		}
		if opcode == toplevelRequestSetMaxSize {
			t.pendingMax = image.Pt(w, h)
		} else {
			t.pendingMin = image.Pt(w, h)
		}
	case toplevelRequestSetMaximized, toplevelRequestUnsetMaximized:
		t.requestedMaximized = opcode == toplevelRequestSetMaximized
		t.listener.RequestMaximize()
	case toplevelRequestSetFullscreen, toplevelRequestUnsetFullscreen:
		if opcode == toplevelRequestSetFullscreen {
			d.Object()
		}
		if d.Err() != nil {
			return nil
		}
		t.requestedFullscreen = opcode == toplevelRequestSetFullscreen
		t.listener.RequestFullscreen()
	case toplevelRequestSetMinimized:
		logf(LogImportanceDebug, "xdg_toplevel@%d: minimize is not supported", r.id)
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}

func toplevelFromResource(r *Resource) *XdgToplevel {
	if r == nil {
		return nil
	}
	if h, ok := r.handler.(toplevelHandler); ok {
		return h.t
	}
	return nil
}

type toplevelHandler struct {
	t *XdgToplevel
}

func (h toplevelHandler) HandleRequest(r *Resource, opcode uint16, d *wire.Decoder) error {
	return h.t.handle(r, opcode, d)
}
