package wlserver

import (
	"image"
	"slices"

	"github.com/mstarongithub/wayembed/wire"
)

const (
	wmBaseRequestDestroy          = 0
	wmBaseRequestCreatePositioner = 1
	wmBaseRequestGetXdgSurface    = 2
	wmBaseRequestPong             = 3

	wmBaseEventPing = 0

	wmBaseErrorRole                = 0
	wmBaseErrorDefunctSurfaces     = 1
	wmBaseErrorInvalidPopupParent  = 3
	wmBaseErrorInvalidSurfaceState = 4
	wmBaseErrorInvalidPositioner   = 5

	positionerRequestDestroy                 = 0
	positionerRequestSetSize                 = 1
	positionerRequestSetAnchorRect           = 2
	positionerRequestSetAnchor               = 3
	positionerRequestSetGravity              = 4
	positionerRequestSetConstraintAdjustment = 5
	positionerRequestSetOffset               = 6
	positionerRequestSetReactive             = 7
	positionerRequestSetParentSize           = 8
	positionerRequestSetParentConfigure      = 9

	positionerErrorInvalidInput = 0

	xdgSurfaceRequestDestroy           = 0
	xdgSurfaceRequestGetToplevel       = 1
	xdgSurfaceRequestGetPopup          = 2
	xdgSurfaceRequestSetWindowGeometry = 3
	xdgSurfaceRequestAckConfigure      = 4

	xdgSurfaceEventConfigure = 0

	xdgSurfaceErrorNotConstructed     = 1
	xdgSurfaceErrorAlreadyConstructed = 2
	xdgSurfaceErrorUnconfiguredBuffer = 3
	xdgSurfaceErrorInvalidSerial      = 4
	xdgSurfaceErrorInvalidSize        = 5
	xdgSurfaceErrorDefunctRoleObject  = 6
)

// Positioner anchors and gravities.
const (
	anchorNone = iota
	anchorTop
	anchorBottom
	anchorLeft
	anchorRight
	anchorTopLeft
	anchorBottomLeft
	anchorTopRight
	anchorBottomRight
)

type positioner struct {
	width, height int
	anchorRect    image.Rectangle
	anchorSet     bool
	anchor        uint32
	gravity       uint32
	constraint    uint32
	offsetX       int
	offsetY       int
	reactive      bool
}

func (p *positioner) complete() bool {
	return p.width > 0 && p.height > 0 && p.anchorSet
}

// geometry places the popup relative to the parent's window geometry.
// Constraint adjustment is not applied.
func (p *positioner) geometry() image.Rectangle {
	x, y := p.offsetX, p.offsetY
	a := p.anchorRect
	switch p.anchor {
	case anchorTop, anchorTopLeft, anchorTopRight:
		y += a.Min.Y
	case anchorBottom, anchorBottomLeft, anchorBottomRight:
		y += a.Max.Y
	default:
		y += a.Min.Y + a.Dy()/2
	}
	switch p.anchor {
	case anchorLeft, anchorTopLeft, anchorBottomLeft:
		x += a.Min.X
	case anchorRight, anchorTopRight, anchorBottomRight:
		x += a.Max.X
	default:
		x += a.Min.X + a.Dx()/2
	}
	switch p.gravity {
	case anchorTop, anchorTopLeft, anchorTopRight:
		y -= p.height
	case anchorBottom, anchorBottomLeft, anchorBottomRight:
	default:
		y -= p.height / 2
	}
	switch p.gravity {
	case anchorLeft, anchorTopLeft, anchorBottomLeft:
		x -= p.width
	case anchorRight, anchorTopRight, anchorBottomRight:
	default:
		x -= p.width / 2
	}
	return image.Rect(x, y, x+p.width, y+p.height)
}

func (p *positioner) handle(r *Resource, opcode uint16, d *wire.Decoder) error {
	switch opcode {
	case positionerRequestDestroy:
		r.Destroy()
	case positionerRequestSetSize:
		w, h := int(d.Int32()), int(d.Int32())
		if d.Err() != nil {
			return nil
		}
		if w <= 0 || h <= 0 {
			return protoErr(r, positionerErrorInvalidInput, "width and height must be positive")
		}
		p.width, p.height = w, h
	case positionerRequestSetAnchorRect:
		x, y, w, h := int(d.Int32()), int(d.Int32()), int(d.Int32()), int(d.Int32())
		if d.Err() != nil {
			return nil
		}
		if w < 0 || h < 0 {
			return protoErr(r, positionerErrorInvalidInput, "width and height must be non-negative")
		}
		p.anchorRect = image.Rect(x, y, x+w, y+h)
		p.anchorSet = true
	case positionerRequestSetAnchor, positionerRequestSetGravity:
		v := d.Uint32()
		if d.Err() != nil {
			return nil
		}
		if v > anchorBottomRight {
			return protoErr(r, positionerErrorInvalidInput, "invalid anchor or gravity %d", v)
		}
		if opcode == positionerRequestSetAnchor {
			p.anchor = v
		} else {
			p.gravity = v
		}
	case positionerRequestSetConstraintAdjustment:
		p.constraint = d.Uint32()
	case positionerRequestSetOffset:
		p.offsetX, p.offsetY = int(d.Int32()), int(d.Int32())
	case positionerRequestSetReactive:
		p.reactive = true
	case positionerRequestSetParentSize:
		d.Int32()
		d.Int32()
	case positionerRequestSetParentConfigure:
		d.Uint32()
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}

func positionerFromResource(r *Resource) *positioner {
	if r == nil {
		return nil
	}
	if h, ok := r.handler.(positionerHandler); ok {
		return h.p
	}
	return nil
}

type positionerHandler struct {
	p *positioner
}

func (h positionerHandler) HandleRequest(r *Resource, opcode uint16, d *wire.Decoder) error {
	return h.p.handle(r, opcode, d)
}

// XdgShell is the xdg_wm_base global.
type XdgShell struct {
	display     *Display
	global      *Global
	wmBases     []*Resource
	newToplevel []func(*XdgToplevel)
	newPopup    []func(*XdgPopup)
}

// NewXdgShell advertises xdg_wm_base at version.
func NewXdgShell(d *Display, version uint32) *XdgShell {
	x := &XdgShell{display: d}
	x.global = d.AddGlobal("xdg_wm_base", version, func(c *Client, id, v uint32) error {
		surfaces := 0
		r, err := c.NewResource(id, "xdg_wm_base", v, HandlerFunc(func(r *Resource, opcode uint16, dec *wire.Decoder) error {
			return x.handle(r, &surfaces, opcode, dec)
		}))
		if err != nil {
			return err
		}
		x.wmBases = append(x.wmBases, r)
		r.OnDestroy(func() { x.wmBases = removeResource(x.wmBases, r) })
		return nil
	})
	return x
}

// OnNewToplevel registers fn for every new xdg_toplevel.
func (x *XdgShell) OnNewToplevel(fn func(*XdgToplevel)) {
	x.newToplevel = append(x.newToplevel, fn)
}

// OnNewPopup registers fn for every new xdg_popup.
func (x *XdgShell) OnNewPopup(fn func(*XdgPopup)) {
	x.newPopup = append(x.newPopup, fn)
}

// Ping sends xdg_wm_base.ping to every wm_base of c.
func (x *XdgShell) Ping(c *Client) {
	for _, r := range x.wmBases {
		if r.client == c {
			r.Post(r.NewEvent(wmBaseEventPing).PutUint32(x.display.NextSerial()))
		}
	}
}

func (x *XdgShell) handle(r *Resource, surfaces *int, opcode uint16, d *wire.Decoder) error {
	switch opcode {
	case wmBaseRequestDestroy:
		if *surfaces > 0 {
			return protoErr(r, wmBaseErrorDefunctSurfaces, "xdg_wm_base destroyed before its %d surfaces", *surfaces)
		}
		r.Destroy()
	case wmBaseRequestCreatePositioner:
		id := d.NewID()
		if d.Err() != nil {
			return nil
		}
		_, err := r.client.NewResource(id, "xdg_positioner", r.version, positionerHandler{p: &positioner{}})
		return err
	case wmBaseRequestGetXdgSurface:
		id := d.NewID()
		surfaceID := d.Object()
		if d.Err() != nil {
			return nil
		}
		s := SurfaceFromResource(r.client.Object(surfaceID))
		if s == nil {
			return protoErr(r, displayErrorInvalidObject, "invalid surface %d", surfaceID)
		}
		if s.roleName != "" && s.roleName != "xdg_surface" || s.role != nil {
			return protoErr(r, wmBaseErrorRole, "wl_surface@%d already has a role", surfaceID)
		}
		if s.image != nil || s.pending.buffer != nil {
			return protoErr(r, wmBaseErrorInvalidSurfaceState, "wl_surface@%d already has a buffer", surfaceID)
		}
		xs := &XdgSurface{shell: x, surface: s}
		res, err := r.client.NewResource(id, "xdg_surface", r.version, xdgSurfaceHandler{xs: xs})
		if err != nil {
			return err
		}
		xs.res = res
		s.setRole("xdg_surface", xs)
		*surfaces++
		res.OnDestroy(func() {
			*surfaces--
			xs.destroyRole()
			if s.role == surfaceRole(xs) {
				s.role = nil
			}
		})
		s.OnDestroy(xs.destroyRole)
	case wmBaseRequestPong:
		serial := d.Uint32()
		logf(LogImportanceDebug, "pong %d from client %d", serial, r.client.pid)
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}

type configureState struct {
	serial   uint32
	toplevel ToplevelState
}

// XdgSurface is the role shared by toplevels and popups. It owns the
// configure/ack handshake and the mapped state.
type XdgSurface struct {
	shell   *XdgShell
	res     *Resource
	surface *Surface

	toplevel *XdgToplevel
	popup    *XdgPopup

	initialCommitted bool
	configured       bool
	mapped           bool

	pendingGeometry image.Rectangle
	geometry        image.Rectangle
	geometrySet     bool

	scheduled  bool
	configures []configureState
	acked      *configureState

	children []*XdgPopup
}

func (xs *XdgSurface) Surface() *Surface { return xs.surface }
func (xs *XdgSurface) Mapped() bool      { return xs.mapped }
func (xs *XdgSurface) Configured() bool  { return xs.configured }

// Initialized reports whether the initial commit happened.
func (xs *XdgSurface) Initialized() bool { return xs.initialCommitted }

// Geometry is the window geometry in surface-local coordinates. Without
// an explicit geometry it covers the surface content.
func (xs *XdgSurface) Geometry() image.Rectangle {
	if xs.geometrySet {
		return xs.geometry
	}
	w, h := xs.surface.Size()
	return image.Rect(0, 0, w, h)
}

func (xs *XdgSurface) scheduleConfigure() {
	if xs.scheduled || !xs.initialCommitted || xs.res.destroyed {
		return
	}
	xs.scheduled = true
	xs.shell.display.Idle(xs.sendConfigure)
}

func (xs *XdgSurface) sendConfigure() {
	xs.scheduled = false
	if xs.res.destroyed {
		return
	}
	serial := xs.shell.display.NextSerial()
	st := configureState{serial: serial}
	switch {
	case xs.toplevel != nil:
		st.toplevel = xs.toplevel.scheduled
		xs.toplevel.sendConfigure()
	case xs.popup != nil:
		xs.popup.sendConfigure()
	default:
		return
	}
	xs.configures = append(xs.configures, st)
	xs.res.Post(xs.res.NewEvent(xdgSurfaceEventConfigure).PutUint32(serial))
}

func (xs *XdgSurface) commit(s *Surface) error {
	if xs.toplevel == nil && xs.popup == nil {
		return protoErr(xs.res, xdgSurfaceErrorNotConstructed, "xdg_surface must have a role object")
	}
	if s.image != nil && !xs.configured {
		return protoErr(xs.res, xdgSurfaceErrorUnconfiguredBuffer, "xdg_surface has never been configured")
	}
	if !xs.pendingGeometry.Empty() {
		xs.geometry = xs.pendingGeometry
		xs.geometrySet = true
		xs.pendingGeometry = image.Rectangle{}
	}
	if xs.acked != nil {
		if xs.toplevel != nil {
			xs.toplevel.current = xs.acked.toplevel
		}
		xs.acked = nil
	}
	if xs.toplevel != nil {
		xs.toplevel.applyPending()
	}

	if !xs.initialCommitted {
		xs.initialCommitted = true
		xs.listenerCommit(true)
		xs.scheduleConfigure()
		return nil
	}
	xs.listenerCommit(false)
	switch {
	case s.image != nil && !xs.mapped:
		xs.mapped = true
		xs.listenerMap()
	case s.image == nil && xs.mapped:
		xs.unmap()
	}
	return nil
}

// unmap resets the surface to its pre-initial-commit state, as a null
// buffer commit requires.
func (xs *XdgSurface) unmap() {
	wasMapped := xs.mapped
	xs.mapped = false
	xs.configured = false
	xs.initialCommitted = false
	xs.configures = nil
	xs.acked = nil
	xs.geometrySet = false
	xs.geometry = image.Rectangle{}
	if wasMapped {
		xs.listenerUnmap()
	}
}

func (xs *XdgSurface) listenerCommit(initial bool) {
	switch {
	case xs.toplevel != nil:
		xs.toplevel.listener.Commit(initial)
	case xs.popup != nil:
		xs.popup.listener.Commit(initial)
	}
}

func (xs *XdgSurface) listenerMap() {
	switch {
	case xs.toplevel != nil:
		xs.toplevel.listener.Map()
	case xs.popup != nil:
		xs.popup.listener.Map()
	}
}

func (xs *XdgSurface) listenerUnmap() {
	switch {
	case xs.toplevel != nil:
		xs.toplevel.listener.Unmap()
	case xs.popup != nil:
		xs.popup.listener.Unmap()
	}
}

// dismissChildren sends popup_done to every popup parented to xs.
func (xs *XdgSurface) dismissChildren() {
	for _, child := range slices.Clone(xs.children) {
		child.dismiss()
	}
}

// destroyRole tears down the toplevel or popup, unmapping first.
func (xs *XdgSurface) destroyRole() {
	if xs.toplevel != nil {
		xs.toplevel.destroy()
	}
	if xs.popup != nil {
		xs.popup.destroy()
	}
}

func (xs *XdgSurface) handle(r *Resource, opcode uint16, d *wire.Decoder) error {
	switch opcode {
	case xdgSurfaceRequestDestroy:
		if xs.toplevel != nil || xs.popup != nil {
			return protoErr(r, xdgSurfaceErrorDefunctRoleObject, "xdg_surface destroyed before its role object")
		}
		r.Destroy()
	case xdgSurfaceRequestGetToplevel:
		id := d.NewID()
		if d.Err() != nil {
			return nil
		}
		if xs.toplevel != nil || xs.popup != nil {
			return protoErr(r, xdgSurfaceErrorAlreadyConstructed, "xdg_surface already has a role object")
		}
		t := &XdgToplevel{base: xs, listener: nopToplevelListener{}}
		res, err := r.client.NewResource(id, "xdg_toplevel", r.version, toplevelHandler{t: t})
		if err != nil {
			return err
		}
		t.res = res
		xs.toplevel = t
		res.OnDestroy(t.destroy)
		for _, fn := range xs.shell.newToplevel {
			fn(t)
		}
	case xdgSurfaceRequestGetPopup:
		id := d.NewID()
		parentID := d.Object()
		positionerID := d.Object()
		if d.Err() != nil {
			return nil
		}
		if xs.toplevel != nil || xs.popup != nil {
			return protoErr(r, xdgSurfaceErrorAlreadyConstructed, "xdg_surface already has a role object")
		}
		pos := positionerFromResource(r.client.Object(positionerID))
		if pos == nil || !pos.complete() {
			return protoErr(r, wmBaseErrorInvalidPositioner, "positioner object is not complete")
		}
		parent := xdgSurfaceFromResource(r.client.Object(parentID))
		if parent == nil {
			return protoErr(r, wmBaseErrorInvalidPopupParent, "popup requires an xdg_surface parent")
		}
		p := &XdgPopup{base: xs, parent: parent, pos: *pos, listener: nopPopupListener{}}
		p.geometry = p.pos.geometry()
		res, err := r.client.NewResource(id, "xdg_popup", r.version, HandlerFunc(p.handle))
		if err != nil {
			return err
		}
		p.res = res
		xs.popup = p
		parent.children = append(parent.children, p)
		res.OnDestroy(p.destroy)
		for _, fn := range xs.shell.newPopup {
			fn(p)
		}
	case xdgSurfaceRequestSetWindowGeometry:
		x, y, w, h := int(d.Int32()), int(d.Int32()), int(d.Int32()), int(d.Int32())
		if d.Err() != nil {
			return nil
		}
		if w <= 0 || h <= 0 {
			return protoErr(r, xdgSurfaceErrorInvalidSize, "invalid window geometry %dx%d", w, h)
		}
		xs.pendingGeometry = image.Rect(x, y, x+w, y+h)
	case xdgSurfaceRequestAckConfigure:
		serial := d.Uint32()
		if d.Err() != nil {
			return nil
		}
		if xs.toplevel == nil && xs.popup == nil {
			return protoErr(r, xdgSurfaceErrorNotConstructed, "xdg_surface must have a role object")
		}
		idx := -1
		for i, c := range xs.configures {
			if c.serial == serial {
				idx = i
				break
			}
		}
		if idx < 0 {
			return protoErr(r, xdgSurfaceErrorInvalidSerial, "wrong configure serial: %d", serial)
		}
		acked := xs.configures[idx]
		xs.acked = &acked
		xs.configures = xs.configures[idx+1:]
		xs.configured = true
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}

func xdgSurfaceFromResource(r *Resource) *XdgSurface {
	if r == nil {
		return nil
	}
	if h, ok := r.handler.(xdgSurfaceHandler); ok {
		return h.xs
	}
	return nil
}

type xdgSurfaceHandler struct {
	xs *XdgSurface
}

func (h xdgSurfaceHandler) HandleRequest(r *Resource, opcode uint16, d *wire.Decoder) error {
	return h.xs.handle(r, opcode, d)
}
