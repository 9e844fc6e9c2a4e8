package compositor

import (
	"image"

	"github.com/mstarongithub/wayembed/pixel"
	"github.com/mstarongithub/wayembed/scene"
	"github.com/mstarongithub/wayembed/wlserver"
)

// Adapters from the wlserver objects to the interfaces in protocol.go.
// They are small value types so two adapters of the same object compare
// equal.

func surfaceOf(s *wlserver.Surface) Surface {
	if s == nil {
		return nil
	}
	return wlSurface{s}
}

func clientOf(c *wlserver.Client) Client {
	if c == nil {
		return nil
	}
	return c
}

type wlSurface struct{ s *wlserver.Surface }

func (w wlSurface) Image() *pixel.Image           { return w.s.Image() }
func (w wlSurface) InputContains(sx, sy int) bool { return w.s.InputContains(sx, sy) }
func (w wlSurface) SendFrameDone(ms uint32)       { w.s.SendFrameDone(ms) }
func (w wlSurface) Client() Client                { return clientOf(w.s.Client()) }
func (w wlSurface) Delta() (int, int)             { return w.s.Delta() }
func (w wlSurface) OnCommit(fn func()) func()     { return w.s.OnCommit(fn) }

func (w wlSurface) Subsurfaces(fn func(scene.SurfaceSource, int, int)) {
	for _, sub := range w.s.Subsurfaces() {
		x, y := sub.Position()
		fn(wlSurface{sub.Surface()}, x, y)
	}
}

func (w wlSurface) Root() Surface {
	s := w.s
	for s.Subsurface() != nil && s.Subsurface().Parent() != nil {
		s = s.Subsurface().Parent()
	}
	return wlSurface{s}
}

type wlToplevel struct{ t *wlserver.XdgToplevel }

func convertState(s wlserver.ToplevelState) ToplevelState {
	return ToplevelState{
		Width:      s.Width,
		Height:     s.Height,
		Maximized:  s.Maximized,
		Fullscreen: s.Fullscreen,
		Activated:  s.Activated,
	}
}

func (w wlToplevel) Surface() Surface               { return surfaceOf(w.t.Surface()) }
func (w wlToplevel) AppID() string                  { return w.t.AppID() }
func (w wlToplevel) Title() string                  { return w.t.Title() }
func (w wlToplevel) SetListener(l ToplevelListener) { w.t.SetListener(l) }
func (w wlToplevel) Initialized() bool              { return w.t.Base().Initialized() }
func (w wlToplevel) Configured() bool               { return w.t.Base().Configured() }
func (w wlToplevel) Requested() (bool, bool)        { return w.t.Requested() }
func (w wlToplevel) Scheduled() ToplevelState       { return convertState(w.t.Scheduled()) }
func (w wlToplevel) Current() ToplevelState         { return convertState(w.t.Current()) }
func (w wlToplevel) Geometry() image.Rectangle      { return w.t.Geometry() }
func (w wlToplevel) MinSize() (int, int)            { return w.t.MinSize() }
func (w wlToplevel) SetSize(width, height int)      { w.t.SetSize(width, height) }
func (w wlToplevel) SetMaximized(on bool)           { w.t.SetMaximized(on) }
func (w wlToplevel) SetFullscreen(on bool)          { w.t.SetFullscreen(on) }
func (w wlToplevel) SetActivated(on bool)           { w.t.SetActivated(on) }
func (w wlToplevel) Close()                         { w.t.Close() }

type wlPopup struct{ p *wlserver.XdgPopup }

func (w wlPopup) Surface() Surface             { return surfaceOf(w.p.Surface()) }
func (w wlPopup) Geometry() image.Rectangle    { return w.p.Geometry() }
func (w wlPopup) OwnGeometry() image.Rectangle { return w.p.Base().Geometry() }
func (w wlPopup) SetListener(l PopupListener)  { w.p.SetListener(l) }

func (w wlPopup) Parent() Surface {
	if w.p.Parent() == nil {
		return nil
	}
	return surfaceOf(w.p.Parent().Surface())
}

func (w wlPopup) ParentGeometry() image.Rectangle {
	if w.p.Parent() == nil {
		return image.Rectangle{}
	}
	return w.p.Parent().Geometry()
}

type wlSeat struct{ s *wlserver.Seat }

func unwrap(s Surface) *wlserver.Surface {
	if w, ok := s.(wlSurface); ok {
		return w.s
	}
	return nil
}

func (w wlSeat) PointerFocus() Surface      { return surfaceOf(w.s.PointerFocus()) }
func (w wlSeat) PointerFocusClient() Client { return clientOf(w.s.PointerFocusClient()) }
func (w wlSeat) PointerClearFocus()         { w.s.PointerClearFocus() }
func (w wlSeat) PointerNotifyFrame()        { w.s.PointerNotifyFrame() }
func (w wlSeat) KeyboardFocus() Surface     { return surfaceOf(w.s.KeyboardFocus()) }

func (w wlSeat) KeyboardNotifyEnter(s Surface) {
	w.s.KeyboardNotifyEnter(unwrap(s))
}

func (w wlSeat) PointerNotifyEnter(s Surface, sx, sy float64) {
	w.s.PointerNotifyEnter(unwrap(s), sx, sy)
}

func (w wlSeat) PointerNotifyMotion(timeMs uint32, sx, sy float64) {
	w.s.PointerNotifyMotion(timeMs, sx, sy)
}

func (w wlSeat) PointerNotifyButton(timeMs, button uint32, pressed bool) {
	w.s.PointerNotifyButton(timeMs, button, pressed)
}

func (w wlSeat) PointerNotifyAxis(timeMs uint32, axis Axis, value float64, discrete int32) {
	a := wlserver.AxisVertical
	if axis == AxisHorizontal {
		a = wlserver.AxisHorizontal
	}
	w.s.PointerNotifyAxis(timeMs, a, value, discrete)
}

func (w wlSeat) KeyboardNotifyKey(timeMs, key uint32, pressed bool) {
	w.s.KeyboardNotifyKey(timeMs, key, pressed)
}

func (w wlSeat) KeyboardNotifyModifiers(depressed uint32) {
	m := w.s.Modifiers()
	m.Depressed = depressed
	w.s.KeyboardNotifyModifiers(m)
}
