package wlserver

import (
	"image"

	"github.com/mstarongithub/wayembed/pixel"
	"github.com/mstarongithub/wayembed/wire"
)

const (
	compositorRequestCreateSurface = 0
	compositorRequestCreateRegion  = 1

	surfaceRequestDestroy            = 0
	surfaceRequestAttach             = 1
	surfaceRequestDamage             = 2
	surfaceRequestFrame              = 3
	surfaceRequestSetOpaqueRegion    = 4
	surfaceRequestSetInputRegion     = 5
	surfaceRequestCommit             = 6
	surfaceRequestSetBufferTransform = 7
	surfaceRequestSetBufferScale     = 8
	surfaceRequestDamageBuffer       = 9
	surfaceRequestOffset             = 10

	surfaceEventEnter = 0
	surfaceEventLeave = 1

	surfaceErrorInvalidScale     = 0
	surfaceErrorInvalidTransform = 1
	surfaceErrorInvalidOffset    = 3

	regionRequestDestroy  = 0
	regionRequestAdd      = 1
	regionRequestSubtract = 2
)

type regionOp struct {
	add  bool
	rect image.Rectangle
}

// region is the replayable form of a wl_region.
type region struct {
	ops []regionOp
}

// Contains replays the add/subtract operations for one point.
func (rg *region) Contains(x, y int) bool {
	p := image.Pt(x, y)
	inside := false
	for _, op := range rg.ops {
		if p.In(op.rect) {
			inside = op.add
		}
	}
	return inside
}

func (rg *region) clone() *region {
	c := &region{ops: make([]regionOp, len(rg.ops))}
	copy(c.ops, rg.ops)
	return c
}

// surfaceRole is implemented by role objects that need to see commits
// after the double-buffered state was applied.
type surfaceRole interface {
	commit(s *Surface) error
}

type surfaceState struct {
	bufferSet bool
	buffer    *Buffer
	dx, dy    int
	frames    []*Resource
	inputSet  bool
	input     *region
}

// Surface is a wl_surface. Buffer contents are copied on commit so the
// client's buffer is released immediately.
type Surface struct {
	res     *Resource
	display *Display
	pending surfaceState

	image  *pixel.Image
	dx, dy int
	frames []*Resource
	input  *region

	roleName string
	role     surfaceRole

	sub         *Subsurface
	subsurfaces []*Subsurface

	nextListener int
	commitHooks  map[int]func()
	entered      bool
	destroyed    bool
	onDestroy    []func()
}

func (s *Surface) ID() uint32              { return s.res.id }
func (s *Surface) Client() *Client         { return s.res.client }
func (s *Surface) Resource() *Resource     { return s.res }
func (s *Surface) Image() *pixel.Image     { return s.image }
func (s *Surface) Role() string            { return s.roleName }
func (s *Surface) Destroyed() bool         { return s.destroyed }
func (s *Surface) Delta() (dx, dy int)     { return s.dx, s.dy }
func (s *Surface) Subsurface() *Subsurface { return s.sub }

// Size is the size of the current content, zero when unmapped.
func (s *Surface) Size() (int, int) {
	if s.image == nil {
		return 0, 0
	}
	return s.image.Width, s.image.Height
}

// Subsurfaces lists mapped children, bottom to top.
func (s *Surface) Subsurfaces() []*Subsurface {
	return s.subsurfaces
}

// InputContains tests a surface-local point against the content bounds
// and the input region.
func (s *Surface) InputContains(sx, sy int) bool {
	w, h := s.Size()
	if sx < 0 || sy < 0 || sx >= w || sy >= h {
		return false
	}
	return s.input == nil || s.input.Contains(sx, sy)
}

// SendFrameDone fires the committed frame callbacks of this surface and
// its subsurfaces.
func (s *Surface) SendFrameDone(ms uint32) {
	frames := s.frames
	s.frames = nil
	for _, cb := range frames {
		sendCallbackDone(cb, ms)
	}
	for _, sub := range s.subsurfaces {
		sub.surface.SendFrameDone(ms)
	}
}

// OnCommit registers fn for every commit; the returned func removes it.
func (s *Surface) OnCommit(fn func()) (cancel func()) {
	if s.commitHooks == nil {
		s.commitHooks = make(map[int]func())
	}
	id := s.nextListener
	s.nextListener++
	s.commitHooks[id] = fn
	return func() { delete(s.commitHooks, id) }
}

func (s *Surface) OnDestroy(fn func()) {
	s.onDestroy = append(s.onDestroy, fn)
}

// setRole assigns a role once. Re-assigning the same role is allowed, as
// for cursors set repeatedly.
func (s *Surface) setRole(name string, role surfaceRole) bool {
	if s.roleName != "" && s.roleName != name {
		return false
	}
	s.roleName = name
	s.role = role
	return true
}

func (s *Surface) commit() error {
	if s.pending.bufferSet {
		if buf := s.pending.buffer; buf != nil {
			img, err := buf.Snapshot()
			if err != nil {
				return protoErr(buf.res, shmErrorInvalidFd, "%v", err)
			}
			s.image = img
			buf.Release()
		} else {
			s.image = nil
		}
	}
	s.dx, s.dy = s.pending.dx, s.pending.dy
	s.frames = append(s.frames, s.pending.frames...)
	if s.pending.inputSet {
		s.input = s.pending.input
	}
	s.pending = surfaceState{}

	for _, sub := range s.subsurfaces {
		sub.applyPosition()
	}
	if s.role != nil {
		if err := s.role.commit(s); err != nil {
			return err
		}
	}
	for _, fn := range s.commitHooks {
		fn()
	}
	if s.image != nil && !s.entered {
		s.entered = true
		for _, o := range s.display.outputs {
			o.enter(s)
		}
	}
	return nil
}

func (s *Surface) destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	for i := len(s.onDestroy) - 1; i >= 0; i-- {
		s.onDestroy[i]()
	}
	s.onDestroy = nil
	s.commitHooks = nil
	for _, sub := range s.subsurfaces {
		sub.parent = nil
	}
	s.subsurfaces = nil
	if s.sub != nil {
		s.sub.unlink()
	}
}

func (s *Surface) handle(r *Resource, opcode uint16, d *wire.Decoder) error {
	switch opcode {
	case surfaceRequestDestroy:
		r.Destroy()
	case surfaceRequestAttach:
		bufID := d.Object()
		x := d.Int32()
		y := d.Int32()
		if d.Err() != nil {
			return nil
		}
		if r.version >= 5 && (x != 0 || y != 0) {
			return protoErr(r, surfaceErrorInvalidOffset, "attach with non-zero offset (%d, %d)", x, y)
		}
		var buf *Buffer
		if bufID != 0 {
			buf = bufferFromResource(r.client.Object(bufID))
			if buf == nil {
				return protoErr(r, displayErrorInvalidObject, "invalid buffer %d", bufID)
			}
		}
		s.pending.bufferSet = true
		s.pending.buffer = buf
		s.pending.dx, s.pending.dy = int(x), int(y)
	case surfaceRequestDamage, surfaceRequestDamageBuffer:
		d.Int32()
		d.Int32()
		d.Int32()
		d.Int32()
	case surfaceRequestFrame:
		id := d.NewID()
		if d.Err() != nil {
			return nil
		}
		cb, err := r.client.NewResource(id, "wl_callback", 1, noRequests)
		if err != nil {
			return err
		}
		s.pending.frames = append(s.pending.frames, cb)
	case surfaceRequestSetOpaqueRegion:
		d.Object()
	case surfaceRequestSetInputRegion:
		regionID := d.Object()
		if d.Err() != nil {
			return nil
		}
		s.pending.inputSet = true
		s.pending.input = nil
		if regionID != 0 {
			rg := regionFromResource(r.client.Object(regionID))
			if rg == nil {
				return protoErr(r, displayErrorInvalidObject, "invalid region %d", regionID)
			}
			s.pending.input = rg.clone()
		}
	case surfaceRequestCommit:
		return s.commit()
	case surfaceRequestSetBufferTransform:
		t := d.Int32()
		if d.Err() == nil && (t < 0 || t > 7) {
			return protoErr(r, surfaceErrorInvalidTransform, "transform %d is not valid", t)
		}
	case surfaceRequestSetBufferScale:
		scale := d.Int32()
		if d.Err() == nil && scale <= 0 {
			return protoErr(r, surfaceErrorInvalidScale, "scale %d is not positive", scale)
		}
	case surfaceRequestOffset:
		x := d.Int32()
		y := d.Int32()
		s.pending.dx, s.pending.dy = int(x), int(y)
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}

// SurfaceFromResource returns the surface behind a wl_surface object.
func SurfaceFromResource(r *Resource) *Surface {
	if r == nil {
		return nil
	}
	if s, ok := r.handler.(surfaceHandler); ok {
		return s.s
	}
	return nil
}

type surfaceHandler struct {
	s *Surface
}

func (h surfaceHandler) HandleRequest(r *Resource, opcode uint16, d *wire.Decoder) error {
	return h.s.handle(r, opcode, d)
}

type regionHandler struct {
	rg *region
}

func (h regionHandler) HandleRequest(r *Resource, opcode uint16, d *wire.Decoder) error {
	switch opcode {
	case regionRequestDestroy:
		r.Destroy()
	case regionRequestAdd, regionRequestSubtract:
		x := int(d.Int32())
		y := int(d.Int32())
		w := int(d.Int32())
		hgt := int(d.Int32())
		if d.Err() != nil {
			return nil
		}
		h.rg.ops = append(h.rg.ops, regionOp{add: opcode == regionRequestAdd, rect: image.Rect(x, y, x+w, y+hgt)})
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}

func regionFromResource(r *Resource) *region {
	if r == nil {
		return nil
	}
	if h, ok := r.handler.(regionHandler); ok {
		return h.rg
	}
	return nil
}

// Compositor is the wl_compositor global.
type Compositor struct {
	display    *Display
	global     *Global
	newSurface []func(*Surface)
}

// NewCompositor advertises wl_compositor version 5.
func NewCompositor(d *Display) *Compositor {
	c := &Compositor{display: d}
	c.global = d.AddGlobal("wl_compositor", 5, func(cl *Client, id, version uint32) error {
		_, err := cl.NewResource(id, "wl_compositor", version, HandlerFunc(c.handle))
		return err
	})
	return c
}

// OnNewSurface registers fn for every created surface.
func (c *Compositor) OnNewSurface(fn func(*Surface)) {
	c.newSurface = append(c.newSurface, fn)
}

func (c *Compositor) handle(r *Resource, opcode uint16, d *wire.Decoder) error {
	id := d.NewID()
	if d.Err() != nil {
		return nil
	}
	switch opcode {
	case compositorRequestCreateSurface:
		s := &Surface{display: c.display}
		res, err := r.client.NewResource(id, "wl_surface", r.version, surfaceHandler{s: s})
		if err != nil {
			return err
		}
		s.res = res
		res.OnDestroy(s.destroy)
		for _, fn := range c.newSurface {
			fn(s)
		}
	case compositorRequestCreateRegion:
		_, err := r.client.NewResource(id, "wl_region", 1, regionHandler{rg: &region{}})
		return err
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}
