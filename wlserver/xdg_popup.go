package wlserver

import (
	"image"

	"github.com/mstarongithub/wayembed/wire"
)

const (
	popupRequestDestroy    = 0
	popupRequestGrab       = 1
	popupRequestReposition = 2

	popupEventConfigure    = 0
	popupEventPopupDone    = 1
	popupEventRepositioned = 2
)

// PopupListener receives popup lifecycle events.
type PopupListener interface {
	Map()
	Unmap()
	Commit(initial bool)
	Destroy()
}

type nopPopupListener struct{}

func (nopPopupListener) Map()        {}
func (nopPopupListener) Unmap()      {}
func (nopPopupListener) Commit(bool) {}
func (nopPopupListener) Destroy()    {}

// XdgPopup is an xdg_popup role object. Popups are placed by their
// positioner without constraint adjustment and never take a grab.
type XdgPopup struct {
	base     *XdgSurface
	res      *Resource
	parent   *XdgSurface
	pos      positioner
	geometry image.Rectangle
	listener PopupListener

	repositionToken *uint32
	dismissed       bool
	destroyed       bool
}

func (p *XdgPopup) SetListener(l PopupListener) {
	if l == nil {
		l = nopPopupListener{}
	}
	p.listener = l
}

func (p *XdgPopup) Base() *XdgSurface { return p.base }
func (p *XdgPopup) Surface() *Surface { return p.base.surface }

// Parent is nil once the parent's role object is gone.
func (p *XdgPopup) Parent() *XdgSurface { return p.parent }

// Geometry is the popup's window geometry relative to the parent's window
// geometry.
func (p *XdgPopup) Geometry() image.Rectangle { return p.geometry }

func (p *XdgPopup) sendConfigure() {
	if p.repositionToken != nil {
		p.res.Post(p.res.NewEvent(popupEventRepositioned).PutUint32(*p.repositionToken))
		p.repositionToken = nil
	}
	g := p.geometry
	p.res.Post(p.res.NewEvent(popupEventConfigure).
		PutInt32(int32(g.Min.X)).
		PutInt32(int32(g.Min.Y)).
		PutInt32(int32(g.Dx())).
		PutInt32(int32(g.Dy())))
}

// dismiss tells the client the popup is gone and detaches it from its
// parent. The protocol object lives on until the client destroys it.
func (p *XdgPopup) dismiss() {
	if p.dismissed {
		return
	}
	p.dismissed = true
	p.base.dismissChildren()
	p.unlink()
	if !p.destroyed {
		p.res.Post(p.res.NewEvent(popupEventPopupDone))
	}
}

func (p *XdgPopup) unlink() {
	if p.parent == nil {
		return
	}
	p.parent.children = removePopup(p.parent.children, p)
	p.parent = nil
}

func removePopup(list []*XdgPopup, p *XdgPopup) []*XdgPopup {
	for i, other := range list {
		if other == p {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (p *XdgPopup) destroy() {
	if p.destroyed {
		return
	}
	p.destroyed = true
	xs := p.base
	xs.dismissChildren()
	p.unlink()
	if xs.mapped {
		xs.mapped = false
		p.listener.Unmap()
	}
	p.listener.Destroy()
	if xs.popup == p {
		xs.popup = nil
	}
	xs.configures = nil
	xs.acked = nil
	xs.configured = false
	xs.initialCommitted = false
}

func (p *XdgPopup) handle(r *Resource, opcode uint16, d *wire.Decoder) error {
	switch opcode {
	case popupRequestDestroy:
		r.Destroy()
	case popupRequestGrab:
		d.Object()
		d.Uint32()
		logf(LogImportanceDebug, "xdg_popup@%d: grabs are not supported", r.id)
	case popupRequestReposition:
		posID := d.Object()
		token := d.Uint32()
		if d.Err() != nil {
			return nil
		}
		pos := positionerFromResource(r.client.Object(posID))
		if pos == nil || !pos.complete() {
			return protoErr(r, wmBaseErrorInvalidPositioner, "positioner object is not complete")
		}
		p.pos = *pos
		p.geometry = p.pos.geometry()
		p.repositionToken = &token
		p.base.scheduleConfigure()
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}
