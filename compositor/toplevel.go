package compositor

import (
	"container/list"
	"image"

	"github.com/mstarongithub/wayembed/scene"
	"github.com/sirupsen/logrus"
)

// WindowID is a stable handle for a window. Scene nodes carry it in their
// Data field so hit tests can find the window without owning it.
type WindowID uint32

// Window is a client toplevel placed on the virtual screen.
type Window struct {
	id       WindowID
	comp     *Compositor
	toplevel Toplevel
	tree     *scene.Node
	elem     *list.Element

	mapped bool
	state  *PersistedState
	// oldState is the placement to return to when leaving maximized or
	// fullscreen.
	oldState image.Rectangle
}

func (w *Window) ID() WindowID       { return w.id }
func (w *Window) Toplevel() Toplevel { return w.toplevel }
func (w *Window) Mapped() bool       { return w.mapped }
func (w *Window) AppID() string      { return w.toplevel.AppID() }
func (w *Window) Title() string      { return w.toplevel.Title() }

// State is the persisted entry the window writes to, if any.
func (w *Window) State() (PersistedState, bool) {
	if w.state == nil {
		return PersistedState{}, false
	}
	return *w.state, true
}

// Position is the scene position of the window's surface.
func (w *Window) Position() (int, int) { return w.tree.Position() }

// Geometry is the window on screen: its scene position and its
// negotiated size, or the committed size before any was negotiated.
func (w *Window) Geometry() image.Rectangle {
	x, y := w.tree.Position()
	cur := w.toplevel.Current()
	width, height := cur.Width, cur.Height
	if width == 0 || height == 0 {
		box := w.toplevel.Geometry()
		width, height = box.Dx(), box.Dy()
	}
	return image.Rect(x, y, x+width, y+height)
}

func (w *Window) Maximized() bool  { return w.toplevel.Current().Maximized }
func (w *Window) Fullscreen() bool { return w.toplevel.Current().Fullscreen }

// windowListener receives the toplevel's protocol events.
type windowListener struct{ w *Window }

func (l windowListener) Map()                { l.w.comp.handleMap(l.w) }
func (l windowListener) Unmap()              { l.w.comp.handleUnmap(l.w) }
func (l windowListener) Commit(initial bool) { l.w.comp.handleCommit(l.w, initial) }
func (l windowListener) Destroy()            { l.w.comp.handleDestroy(l.w) }
func (l windowListener) RequestMove(uint32)  { l.w.comp.beginInteractive(l.w, CursorModeMove, 0) }
func (l windowListener) RequestMaximize()    { l.w.comp.handleRequestMaximize(l.w, false) }
func (l windowListener) RequestFullscreen()  { l.w.comp.handleRequestMaximize(l.w, true) }
func (l windowListener) SetAppID(id string)  { l.w.comp.handleSetAppID(l.w, id) }

func (l windowListener) RequestResize(_, edges uint32) {
	l.w.comp.beginInteractive(l.w, CursorModeResize, edges)
}

// newToplevel places a new window's subtree under the scene root. It
// stays hidden until the client maps it.
func (comp *Compositor) newToplevel(t Toplevel) *Window {
	comp.nextID++
	w := &Window{id: comp.nextID, comp: comp, toplevel: t}
	w.tree = comp.scene.NewTree(nil)
	w.tree.Data = w.id
	w.tree.SetEnabled(false)
	comp.scene.NewSurface(w.tree, t.Surface())

	comp.windows[w.id] = w
	comp.trees[t.Surface()] = w.tree
	t.SetListener(windowListener{w})
	if id := t.AppID(); id != "" {
		comp.handleSetAppID(w, id)
	}
	logrus.WithField("window", w.id).Debugln("newToplevel")
	return w
}

func (comp *Compositor) handleMap(w *Window) {
	logrus.WithFields(logrus.Fields{"window": w.id, "app_id": w.AppID()}).Debugln("handleMap")
	w.mapped = true
	w.tree.SetEnabled(true)
	w.elem = comp.topLevelList.PushFront(w)
	comp.focusWindow(w)

	st := w.state
	if st == nil {
		return
	}
	w.toplevel.SetFullscreen(st.Fullscreen)
	w.toplevel.SetMaximized(st.Maximized)
	if st.Maximized || st.Fullscreen {
		w.oldState = image.Rect(st.X, st.Y, st.X+st.Width, st.Y+st.Height)
		w.configure(0, 0, comp.width, comp.height)
		return
	}
	w.configure(st.X, st.Y, st.Width, st.Height)
}

func (comp *Compositor) handleUnmap(w *Window) {
	logrus.WithField("window", w.id).Debugln("handleUnmap")
	if comp.grab.window == w {
		comp.resetCursorMode()
	}
	w.state = nil
	w.mapped = false
	w.tree.SetEnabled(false)
	if w.elem != nil {
		comp.topLevelList.Remove(w.elem)
		w.elem = nil
	}
}

func (comp *Compositor) handleCommit(w *Window, initial bool) {
	if initial {
		logrus.WithField("window", w.id).Debugln("handleCommit: initial")
		// Zero lets the client pick its own size.
		w.toplevel.SetSize(0, 0)
	}
	comp.scene.Damage()
}

func (comp *Compositor) handleDestroy(w *Window) {
	logrus.WithField("window", w.id).Debugln("handleDestroy")
	if comp.grab.window == w {
		comp.resetCursorMode()
	}
	if w.elem != nil {
		comp.topLevelList.Remove(w.elem)
		w.elem = nil
	}
	delete(comp.trees, w.toplevel.Surface())
	delete(comp.windows, w.id)
	w.tree.Destroy()
}

func (comp *Compositor) handleSetAppID(w *Window, id string) {
	logrus.WithFields(logrus.Fields{"window": w.id, "app_id": id}).Debugln("handleSetAppID")
	w.state = comp.states.Attach(id)
}

func (comp *Compositor) handleRequestMaximize(w *Window, fullscreen bool) {
	maximized, wantFullscreen := w.toplevel.Requested()
	if fullscreen {
		comp.setMaximizedFullscreen(w, true, wantFullscreen)
	} else {
		comp.setMaximizedFullscreen(w, false, maximized)
	}
}

// setMaximizedFullscreen moves the window in or out of the maximized
// (or fullscreen) state. Entering remembers the current placement,
// leaving restores it.
func (comp *Compositor) setMaximizedFullscreen(w *Window, fullscreen, value bool) {
	t := w.toplevel
	if !t.Initialized() || !t.Configured() {
		return
	}
	// The scheduled state equals the current one once the client acked,
	// and already carries a change still in flight.
	scheduled := t.Scheduled()
	if fullscreen {
		if scheduled.Fullscreen == value {
			return
		}
		t.SetFullscreen(value)
		if w.state != nil {
			w.state.Fullscreen = value
		}
	} else {
		if scheduled.Maximized == value {
			return
		}
		t.SetMaximized(value)
		if w.state != nil {
			w.state.Maximized = value
		}
	}
	logrus.WithFields(logrus.Fields{
		"window":     w.id,
		"fullscreen": fullscreen,
		"value":      value,
	}).Debugln("setMaximizedFullscreen")

	if value {
		if !scheduled.Maximized && !scheduled.Fullscreen {
			w.oldState = w.Geometry()
		}
		w.configure(0, 0, comp.width, comp.height)
		return
	}
	if (fullscreen && scheduled.Maximized) || (!fullscreen && scheduled.Fullscreen) {
		// Still covering the screen through the other state.
		return
	}
	w.restore()
}

// restore returns the window to the placement it had before covering the
// screen. A zero size lets the client choose again.
func (w *Window) restore() {
	old := w.oldState
	w.tree.SetPosition(old.Min.X, old.Min.Y)
	w.toplevel.SetSize(old.Dx(), old.Dy())
	w.savePosition()
	w.saveSize(old.Dx(), old.Dy())
}

// configure places the window and, for a non-zero size, asks the client
// to resize.
func (w *Window) configure(x, y, width, height int) {
	logrus.WithFields(logrus.Fields{
		"window": w.id, "x": x, "y": y, "width": width, "height": height,
	}).Debugln("configure")
	w.tree.SetPosition(x, y)
	if width != 0 && height != 0 {
		w.toplevel.SetSize(width, height)
	}
}

func (w *Window) savePosition() {
	if w.state == nil {
		return
	}
	w.state.X, w.state.Y = w.tree.Position()
}

func (w *Window) saveSize(width, height int) {
	if w.state == nil {
		return
	}
	w.state.Width, w.state.Height = width, height
}

// windowBySurface finds the window whose main surface is s.
func (comp *Compositor) windowBySurface(s Surface) *Window {
	if s == nil {
		return nil
	}
	tree, ok := comp.trees[s]
	if !ok {
		return nil
	}
	id, ok := tree.Data.(WindowID)
	if !ok {
		return nil
	}
	return comp.windows[id]
}

// focusWindow gives w keyboard focus, activates it and moves it to the
// front of the screen and of the window list.
func (comp *Compositor) focusWindow(w *Window) {
	surface := w.toplevel.Surface()
	prev := comp.seat.KeyboardFocus()
	if prev != nil && prev == surface {
		return
	}
	logrus.WithField("window", w.id).Debugln("focusWindow")
	if pw := comp.windowBySurface(prev); pw != nil {
		pw.toplevel.SetActivated(false)
	}
	w.tree.RaiseToTop()
	w.toplevel.SetActivated(true)
	if w.elem != nil {
		comp.topLevelList.MoveToFront(w.elem)
	}
	comp.seat.KeyboardNotifyEnter(surface)
}

// requestActivate raises a mapped window without moving focus.
func (comp *Compositor) requestActivate(s Surface) {
	w := comp.windowBySurface(s)
	if w == nil || w.elem == nil {
		logrus.Debugln("requestActivate: no such window")
		return
	}
	logrus.WithField("window", w.id).Debugln("requestActivate")
	w.tree.RaiseToTop()
}

// Windows lists the mapped windows, most recently focused first.
func (comp *Compositor) Windows() []*Window {
	out := make([]*Window, 0, comp.topLevelList.Len())
	for e := comp.topLevelList.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Window))
	}
	return out
}

// Window looks a window up by handle, mapped or not.
func (comp *Compositor) Window(id WindowID) (*Window, bool) {
	w, ok := comp.windows[id]
	return w, ok
}

// Focus moves keyboard focus to the window, as a click would.
func (comp *Compositor) Focus(id WindowID) bool {
	w, ok := comp.windows[id]
	if !ok || !w.mapped {
		return false
	}
	comp.focusWindow(w)
	return true
}

func (comp *Compositor) SetMaximized(id WindowID, on bool) bool {
	w, ok := comp.windows[id]
	if !ok {
		return false
	}
	comp.setMaximizedFullscreen(w, false, on)
	return true
}

func (comp *Compositor) SetFullscreen(id WindowID, on bool) bool {
	w, ok := comp.windows[id]
	if !ok {
		return false
	}
	comp.setMaximizedFullscreen(w, true, on)
	return true
}

// CloseWindow asks the client to close the window.
func (comp *Compositor) CloseWindow(id WindowID) bool {
	w, ok := comp.windows[id]
	if !ok {
		return false
	}
	w.toplevel.Close()
	return true
}
