package wlserver

import (
	"github.com/mstarongithub/wayembed/wire"
)

const (
	subcompositorRequestDestroy       = 0
	subcompositorRequestGetSubsurface = 1

	subcompositorErrorBadSurface = 0
	subcompositorErrorBadParent  = 1

	subsurfaceRequestDestroy     = 0
	subsurfaceRequestSetPosition = 1
	subsurfaceRequestPlaceAbove  = 2
	subsurfaceRequestPlaceBelow  = 3
	subsurfaceRequestSetSync     = 4
	subsurfaceRequestSetDesync   = 5

	subsurfaceErrorBadSurface = 0
)

// Subsurface positions a child surface relative to its parent. Content
// updates always take effect on the child's own commit, as if desync.
type Subsurface struct {
	res             *Resource
	surface         *Surface
	parent          *Surface
	x, y            int
	pendingX        int
	pendingY        int
	positionPending bool
	sync            bool
}

func (sub *Subsurface) Surface() *Surface { return sub.surface }
func (sub *Subsurface) Parent() *Surface  { return sub.parent }

// Position is relative to the parent's top-left corner.
func (sub *Subsurface) Position() (int, int) { return sub.x, sub.y }

func (sub *Subsurface) commit(*Surface) error { return nil }

func (sub *Subsurface) applyPosition() {
	if sub.positionPending {
		sub.x, sub.y = sub.pendingX, sub.pendingY
		sub.positionPending = false
	}
}

func (sub *Subsurface) unlink() {
	if sub.parent == nil {
		return
	}
	list := sub.parent.subsurfaces
	for i, other := range list {
		if other == sub {
			sub.parent.subsurfaces = append(list[:i], list[i+1:]...)
			break
		}
	}
	sub.parent = nil
}

func (sub *Subsurface) indexIn(list []*Subsurface) int {
	for i, other := range list {
		if other == sub {
			return i
		}
	}
	return -1
}

// place moves sub next to sibling. Placing relative to the parent puts
// sub at the bottom of the children; nothing is painted below a parent.
func (sub *Subsurface) place(sibling *Surface, above bool) bool {
	parent := sub.parent
	if parent == nil {
		return true
	}
	if sibling != parent && (sibling.sub == nil || sibling.sub.parent != parent || sibling.sub == sub) {
		return false
	}
	idx := sub.indexIn(parent.subsurfaces)
	list := append(parent.subsurfaces[:idx:idx], parent.subsurfaces[idx+1:]...)
	if sibling == parent {
		parent.subsurfaces = append([]*Subsurface{sub}, list...)
		return true
	}
	i := sibling.sub.indexIn(list)
	if above {
		i++
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = sub
	parent.subsurfaces = list
	return true
}

func isAncestor(candidate, s *Surface) bool {
	for p := s; p != nil; {
		if p == candidate {
			return true
		}
		if p.sub == nil {
			return false
		}
		p = p.sub.parent
	}
	return false
}

// NewSubcompositor advertises wl_subcompositor.
func NewSubcompositor(d *Display) *Global {
	return d.AddGlobal("wl_subcompositor", 1, func(c *Client, id, version uint32) error {
		_, err := c.NewResource(id, "wl_subcompositor", version, HandlerFunc(handleSubcompositor))
		return err
	})
}

func handleSubcompositor(r *Resource, opcode uint16, d *wire.Decoder) error {
	switch opcode {
	case subcompositorRequestDestroy:
		r.Destroy()
	case subcompositorRequestGetSubsurface:
		id := d.NewID()
		surfaceID := d.Object()
		parentID := d.Object()
		if d.Err() != nil {
			return nil
		}
		s := SurfaceFromResource(r.client.Object(surfaceID))
		parent := SurfaceFromResource(r.client.Object(parentID))
		if s == nil || parent == nil {
			return protoErr(r, subcompositorErrorBadSurface, "invalid surface or parent")
		}
		if s.roleName != "" && s.roleName != "wl_subsurface" || s.sub != nil {
			return protoErr(r, subcompositorErrorBadSurface, "wl_surface@%d already has a role", surfaceID)
		}
		if isAncestor(s, parent) {
			return protoErr(r, subcompositorErrorBadParent, "wl_surface@%d is an ancestor of its parent", surfaceID)
		}
		sub := &Subsurface{surface: s, parent: parent, sync: true}
		res, err := r.client.NewResource(id, "wl_subsurface", r.version, HandlerFunc(sub.handle))
		if err != nil {
			return err
		}
		sub.res = res
		s.setRole("wl_subsurface", sub)
		s.sub = sub
		parent.subsurfaces = append(parent.subsurfaces, sub)
		res.OnDestroy(func() {
			sub.unlink()
			if s.sub == sub {
				s.sub = nil
			}
		})
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}

func (sub *Subsurface) handle(r *Resource, opcode uint16, d *wire.Decoder) error {
	switch opcode {
	case subsurfaceRequestDestroy:
		r.Destroy()
	case subsurfaceRequestSetPosition:
		x := d.Int32()
		y := d.Int32()
		if d.Err() != nil {
			return nil
		}
		sub.pendingX, sub.pendingY = int(x), int(y)
		sub.positionPending = true
	case subsurfaceRequestPlaceAbove, subsurfaceRequestPlaceBelow:
		siblingID := d.Object()
		if d.Err() != nil {
			return nil
		}
		sibling := SurfaceFromResource(r.client.Object(siblingID))
		if sibling == nil || !sub.place(sibling, opcode == subsurfaceRequestPlaceAbove) {
			return protoErr(r, subsurfaceErrorBadSurface, "wl_surface@%d is not a sibling or the parent", siblingID)
		}
	case subsurfaceRequestSetSync:
		sub.sync = true
	case subsurfaceRequestSetDesync:
		sub.sync = false
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}
