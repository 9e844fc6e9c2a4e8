package compositor

import (
	"image"

	"github.com/sirupsen/logrus"
)

// CursorMode is what pointer motion currently does.
type CursorMode int

const (
	CursorModePassThrough CursorMode = iota
	CursorModeMove
	CursorModeResize
)

func (m CursorMode) String() string {
	switch m {
	case CursorModePassThrough:
		return "passthrough"
	case CursorModeMove:
		return "move"
	case CursorModeResize:
		return "resize"
	}
	return "unknown"
}

// Resize edges, as sent by xdg_toplevel.resize.
const (
	EdgeNone   uint32 = 0
	EdgeTop    uint32 = 1
	EdgeBottom uint32 = 2
	EdgeLeft   uint32 = 4
	EdgeRight  uint32 = 8
)

// Linux input button codes.
const (
	BtnLeft   uint32 = 0x110
	BtnRight  uint32 = 0x111
	BtnMiddle uint32 = 0x112
)

// ScrollStep is the axis value of one wheel detent.
const ScrollStep = 15

// Host keycodes are evdev codes shifted by this offset, as in X11.
const keycodeOffset = 8

// grab is the interactive move or resize in progress. window is nil in
// passthrough mode.
type grab struct {
	mode         CursorMode
	window       *Window
	grabX, grabY float64
	box          image.Rectangle
	edges        uint32
}

// Grab describes the active interactive move or resize.
type Grab struct {
	Mode   CursorMode
	Window WindowID
	Edges  uint32
	Box    image.Rectangle
}

func (comp *Compositor) Grab() Grab {
	g := Grab{Mode: comp.grab.mode, Edges: comp.grab.edges, Box: comp.grab.box}
	if comp.grab.window != nil {
		g.Window = comp.grab.window.id
	}
	return g
}

// CursorPosition is the last pointer position the host reported.
func (comp *Compositor) CursorPosition() (float64, float64) {
	return comp.cursorX, comp.cursorY
}

// windowAt finds the window and surface under the pointer, with the
// pointer in surface coordinates.
func (comp *Compositor) windowAt(lx, ly float64) (*Window, Surface, float64, float64) {
	hit, ok := comp.scene.NodeAt(lx, ly)
	if !ok {
		return nil, nil, 0, 0
	}
	surface, _ := hit.Surface.(Surface)
	for n := hit.Node.Parent(); n != nil; n = n.Parent() {
		if id, ok := n.Data.(WindowID); ok {
			return comp.windows[id], surface, hit.SX, hit.SY
		}
	}
	return nil, surface, hit.SX, hit.SY
}

func (comp *Compositor) resetCursorMode() {
	logrus.Debugln("resetCursorMode")
	comp.grab = grab{}
}

// beginInteractive starts a move or resize on behalf of a client. Only the
// window under the pointer may start one.
func (comp *Compositor) beginInteractive(w *Window, mode CursorMode, edges uint32) {
	focused := comp.seat.PointerFocus()
	if focused == nil || focused.Root() != w.toplevel.Surface() {
		logrus.WithField("window", w.id).Debugln("beginInteractive: window does not have pointer focus")
		return
	}
	logrus.WithFields(logrus.Fields{
		"window": w.id,
		"mode":   mode,
		"edges":  edges,
	}).Debugln("beginInteractive")

	x, y := w.tree.Position()
	g := grab{mode: mode, window: w}
	switch mode {
	case CursorModeMove:
		g.grabX = comp.cursorX - float64(x)
		g.grabY = comp.cursorY - float64(y)
	case CursorModeResize:
		box := w.toplevel.Geometry()
		borderX := x + box.Min.X
		if edges&EdgeRight != 0 {
			borderX += box.Dx()
		}
		borderY := y + box.Min.Y
		if edges&EdgeBottom != 0 {
			borderY += box.Dy()
		}
		g.grabX = comp.cursorX - float64(borderX)
		g.grabY = comp.cursorY - float64(borderY)
		g.box = box.Add(image.Pt(x, y))
		g.edges = edges
	}
	comp.grab = g
}

func (comp *Compositor) processCursorMove() {
	w := comp.grab.window
	w.tree.SetPosition(int(comp.cursorX-comp.grab.grabX), int(comp.cursorY-comp.grab.grabY))
	w.savePosition()
}

// processCursorResize moves the grabbed edges to the pointer while keeping
// the window at least one unit and its minimum size large.
func (comp *Compositor) processCursorResize() {
	g := comp.grab
	w := g.window
	borderX := int(comp.cursorX - g.grabX)
	borderY := int(comp.cursorY - g.grabY)
	newLeft, newRight := g.box.Min.X, g.box.Max.X
	newTop, newBottom := g.box.Min.Y, g.box.Max.Y

	if g.edges&EdgeTop != 0 {
		newTop = borderY
		if newTop >= newBottom {
			newTop = newBottom - 1
		}
	} else if g.edges&EdgeBottom != 0 {
		newBottom = borderY
		if newBottom <= newTop {
			newBottom = newTop + 1
		}
	}
	if g.edges&EdgeLeft != 0 {
		newLeft = borderX
		if newLeft >= newRight {
			newLeft = newRight - 1
		}
	} else if g.edges&EdgeRight != 0 {
		newRight = borderX
		if newRight <= newLeft {
			newRight = newLeft + 1
		}
	}

	width := newRight - newLeft
	height := newBottom - newTop
	minWidth, minHeight := w.toplevel.MinSize()
	if width < minWidth && height < minHeight {
		return
	}
	if width < minWidth {
		if g.edges&EdgeLeft != 0 {
			newLeft -= minWidth - width
		}
		width = minWidth
	}
	if height < minHeight {
		if g.edges&EdgeTop != 0 {
			newTop -= minHeight - height
		}
		height = minHeight
	}

	box := w.toplevel.Geometry()
	w.toplevel.SetSize(width, height)
	w.tree.SetPosition(newLeft-box.Min.X, newTop-box.Min.Y)
	w.savePosition()
	w.saveSize(width, height)
}

func (comp *Compositor) processCursorMotion(timeMs uint32) {
	switch comp.grab.mode {
	case CursorModeMove:
		comp.processCursorMove()
		return
	case CursorModeResize:
		comp.processCursorResize()
		return
	}

	w, surface, sx, sy := comp.windowAt(comp.cursorX, comp.cursorY)
	if w == nil {
		comp.resetCursor()
	}
	if surface == nil {
		comp.seat.PointerClearFocus()
		return
	}
	comp.seat.PointerNotifyEnter(surface, sx, sy)
	comp.seat.PointerNotifyMotion(timeMs, sx, sy)
}

// PointerEnter is the host pointer entering the widget at x, y.
func (comp *Compositor) PointerEnter(timeMs uint32, x, y float64) {
	comp.PointerMotion(timeMs, x, y)
}

// PointerMotion moves the pointer to x, y in widget coordinates.
func (comp *Compositor) PointerMotion(timeMs uint32, x, y float64) {
	comp.cursorX, comp.cursorY = x, y
	comp.processCursorMotion(timeMs)
	comp.seat.PointerNotifyFrame()
}

// PointerLeave is the host pointer leaving the widget.
func (comp *Compositor) PointerLeave() {
	logrus.Debugln("PointerLeave")
	comp.seat.PointerClearFocus()
}

func buttonCode(button int) (uint32, bool) {
	switch button {
	case 1:
		return BtnLeft, true
	case 2:
		return BtnMiddle, true
	case 3:
		return BtnRight, true
	}
	return 0, false
}

// PointerButton delivers a host button (1 primary, 2 middle, 3
// secondary) at the current pointer position.
func (comp *Compositor) PointerButton(timeMs uint32, button int, pressed bool) {
	if button != 0 && button == comp.opts.ContextMenuButton {
		if pressed {
			comp.emitContextMenu(int(comp.cursorX), int(comp.cursorY))
		}
		return
	}
	code, ok := buttonCode(button)
	if !ok {
		logrus.WithField("button", button).Warnln("Unsupported pointer button")
		return
	}
	comp.seat.PointerNotifyButton(timeMs, code, pressed)
	comp.seat.PointerNotifyFrame()

	if !pressed {
		comp.resetCursorMode()
		return
	}
	if w, _, _, _ := comp.windowAt(comp.cursorX, comp.cursorY); w != nil {
		comp.focusWindow(w)
	}
}

// PointerScroll delivers scroll deltas in wheel detents. An axis whose
// scaled value truncates to zero sends nothing.
func (comp *Compositor) PointerScroll(timeMs uint32, dx, dy float64) {
	if int32(dx*ScrollStep) != 0 {
		comp.seat.PointerNotifyAxis(timeMs, AxisHorizontal, dx*ScrollStep, int32(dx))
		comp.seat.PointerNotifyFrame()
	}
	if int32(dy*ScrollStep) != 0 {
		comp.seat.PointerNotifyAxis(timeMs, AxisVertical, dy*ScrollStep, int32(dy))
		comp.seat.PointerNotifyFrame()
	}
}

// Key delivers a host key event. keycode is in the host's numbering,
// evdev plus eight.
func (comp *Compositor) Key(timeMs uint32, keycode uint32, pressed bool) {
	if keycode < keycodeOffset {
		logrus.WithField("keycode", keycode).Warnln("Keycode below the evdev offset")
		return
	}
	comp.seat.KeyboardNotifyKey(timeMs, keycode-keycodeOffset, pressed)
}

// HostModifiers is the host's modifier state.
type HostModifiers uint32

const (
	HostShift   HostModifiers = 1 << 0
	HostLock    HostModifiers = 1 << 1
	HostControl HostModifiers = 1 << 2
	HostAlt     HostModifiers = 1 << 3
	HostSuper   HostModifiers = 1 << 26
	HostHyper   HostModifiers = 1 << 27
	HostMeta    HostModifiers = 1 << 28
)

// xkb modifier bits of the default keymap.
const (
	ModShift uint32 = 1 << 0
	ModCaps  uint32 = 1 << 1
	ModCtrl  uint32 = 1 << 2
	ModAlt   uint32 = 1 << 3
	ModMod2  uint32 = 1 << 4
	ModMod3  uint32 = 1 << 5
	ModLogo  uint32 = 1 << 6
)

// ModifierMode selects how host modifiers are translated.
type ModifierMode int

const (
	// ModifiersAll translates every held modifier.
	ModifiersAll ModifierMode = iota
	// ModifiersFirstMatch only translates the first held modifier in
	// the order shift, lock, control, alt, super, hyper, meta.
	ModifiersFirstMatch
)

func (m ModifierMode) String() string {
	if m == ModifiersFirstMatch {
		return "first-match"
	}
	return "all"
}

func ParseModifierMode(s string) (ModifierMode, bool) {
	switch s {
	case "", "all":
		return ModifiersAll, true
	case "first-match":
		return ModifiersFirstMatch, true
	}
	return ModifiersAll, false
}

var modifierTable = []struct {
	host HostModifiers
	xkb  uint32
}{
	{HostShift, ModShift},
	{HostLock, ModCaps},
	{HostControl, ModCtrl},
	{HostAlt, ModAlt},
	{HostSuper, ModLogo},
	{HostHyper, ModMod2},
	{HostMeta, ModMod3},
}

func translateModifiers(state HostModifiers, mode ModifierMode) uint32 {
	var out uint32
	for _, m := range modifierTable {
		if state&m.host == 0 {
			continue
		}
		out |= m.xkb
		if mode == ModifiersFirstMatch {
			break
		}
	}
	return out
}

// SetModifiers forwards a change of the host modifier state.
func (comp *Compositor) SetModifiers(state HostModifiers) {
	comp.seat.KeyboardNotifyModifiers(translateModifiers(state, comp.opts.ModifierMode))
}
