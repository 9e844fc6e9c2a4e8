package compositor

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapUnmapDestroy(t *testing.T) {
	h := newHarness(t)
	win, top := h.newWindow("Cmb:editor", 20, 10, red)
	assert.False(t, win.tree.Enabled(), "hidden until mapped")
	assert.Empty(t, h.comp.Windows())

	top.initialized = true
	top.listener.Commit(true)
	assert.Equal(t, 0, top.scheduled.Width, "initial commit lets the client choose")

	top.configured = true
	top.listener.Map()
	assert.True(t, win.Mapped())
	assert.True(t, win.tree.Enabled())
	assert.Equal(t, []*Window{win}, h.comp.Windows())
	assert.Equal(t, Surface(top.surface), h.seat.keyboardFocus)
	assert.True(t, top.current.Activated)
	assert.Equal(t, image.Rect(32, 32, 52, 42), win.Geometry())

	top.listener.Unmap()
	assert.False(t, win.Mapped())
	assert.Empty(t, h.comp.Windows())
	_, attached := win.State()
	assert.False(t, attached, "unmap detaches the persisted entry")
	st, ok := h.comp.States().Lookup("Cmb:editor")
	require.True(t, ok, "the entry itself stays")
	assert.Equal(t, 32, st.X)

	top.listener.Destroy()
	_, ok = h.comp.Window(win.ID())
	assert.False(t, ok)
	assert.True(t, win.tree.Destroyed())
}

func TestSetAppID(t *testing.T) {
	h := newHarness(t)
	win, top := h.newWindow("plain", 10, 10, red)
	_, ok := win.State()
	assert.False(t, ok)
	assert.Zero(t, h.comp.States().Len())

	top.listener.SetAppID("Cmb:one")
	st, ok := win.State()
	require.True(t, ok)
	assert.Equal(t, PersistedState{X: 32, Y: 32}, st)

	top.listener.SetAppID("other")
	_, ok = win.State()
	assert.False(t, ok)
	assert.Equal(t, 1, h.comp.States().Len())
}

// Moving and resizing a window is remembered for the next window with
// the same identity, together with its maximized flag.
func TestPersistenceRoundTrip(t *testing.T) {
	h := newHarness(t)
	win, top := h.mapWindow("Cmb:editor", 200, 100, red)
	require.Equal(t, image.Rect(32, 32, 232, 132), win.Geometry())

	// Move by 100, 50.
	h.comp.PointerMotion(0, 40, 40)
	top.listener.RequestMove(0)
	require.Equal(t, CursorModeMove, h.comp.Grab().Mode)
	h.comp.PointerMotion(0, 140, 90)
	h.comp.PointerButton(0, 1, false)
	require.Equal(t, image.Rect(132, 82, 332, 182), win.Geometry())

	// Grow from the bottom right corner by 50, 50.
	h.comp.PointerMotion(0, 331, 181)
	top.listener.RequestResize(0, EdgeBottom|EdgeRight)
	require.Equal(t, CursorModeResize, h.comp.Grab().Mode)
	h.comp.PointerMotion(0, 381, 231)
	h.comp.PointerButton(0, 1, false)
	require.Equal(t, image.Rect(132, 82, 382, 232), win.Geometry())

	st, ok := h.comp.States().Lookup("Cmb:editor")
	require.True(t, ok)
	assert.Equal(t, PersistedState{X: 132, Y: 82, Width: 250, Height: 150}, st)

	top.listener.Unmap()
	top.listener.Destroy()

	win2, top2 := h.mapWindow("Cmb:editor", 10, 10, blue)
	assert.Equal(t, image.Rect(132, 82, 382, 232), win2.Geometry())

	top2.requestMaximize(true)
	require.True(t, win2.Maximized())
	top2.listener.Unmap()
	top2.listener.Destroy()

	win3, top3 := h.mapWindow("Cmb:editor", 10, 10, blue)
	assert.True(t, win3.Maximized(), "the maximized flag survives too")
	assert.Equal(t, image.Rect(0, 0, 800, 600), win3.Geometry())

	top3.requestMaximize(false)
	assert.Equal(t, image.Rect(132, 82, 382, 232), win3.Geometry())
}

func TestMaximize(t *testing.T) {
	h := newHarness(t)
	win, top := h.mapWindow("Cmb:editor", 200, 100, red)
	require.Equal(t, image.Rect(32, 32, 232, 132), win.Geometry())

	top.requestMaximize(true)
	assert.Equal(t, image.Rect(0, 0, 800, 600), win.Geometry())
	st, _ := h.comp.States().Lookup("Cmb:editor")
	assert.True(t, st.Maximized)
	assert.Equal(t, PersistedState{X: 32, Y: 32, Maximized: true}, st,
		"the covered placement is not written through")

	top.requestMaximize(true)
	assert.Equal(t, image.Rect(0, 0, 800, 600), win.Geometry(), "maximizing twice is the same as once")

	top.requestMaximize(false)
	assert.Equal(t, image.Rect(32, 32, 232, 132), win.Geometry())
	st, _ = h.comp.States().Lookup("Cmb:editor")
	assert.False(t, st.Maximized)
}

func TestMaximizeInFlight(t *testing.T) {
	h := newHarness(t)
	win, top := h.mapWindow("", 200, 100, red)
	top.autoAck = false

	top.requestMaximize(true)
	assert.True(t, top.scheduled.Maximized)
	assert.Equal(t, 800, top.scheduled.Width)

	// The client has not acked yet, asking again changes nothing.
	top.requestMaximize(true)
	top.requestMaximize(false)
	assert.False(t, top.scheduled.Maximized)
	assert.Equal(t, 200, top.scheduled.Width)
	assert.Equal(t, 100, top.scheduled.Height)
	x, y := win.Position()
	assert.Equal(t, 0, x)
	assert.Equal(t, 0, y)
}

func TestMaximizeBeforeConfigure(t *testing.T) {
	h := newHarness(t)
	win, top := h.newWindow("", 200, 100, red)
	top.requestMaximize(true)
	assert.False(t, top.scheduled.Maximized)
	assert.False(t, win.Maximized())
}

func TestFullscreenOverMaximized(t *testing.T) {
	h := newHarness(t)
	win, top := h.mapWindow("", 200, 100, red)
	h.comp.SetMaximized(win.ID(), true)
	h.comp.SetFullscreen(win.ID(), true)
	assert.Equal(t, image.Rect(0, 0, 800, 600), win.Geometry())

	h.comp.SetMaximized(win.ID(), false)
	assert.Equal(t, image.Rect(0, 0, 800, 600), win.Geometry(), "still fullscreen")

	h.comp.SetFullscreen(win.ID(), false)
	assert.Equal(t, image.Rect(0, 0, 200, 100), win.Geometry())
	assert.False(t, top.current.Fullscreen)
}

func TestFocusOrder(t *testing.T) {
	h := newHarness(t)
	a, ta := h.mapWindow("", 300, 300, red)
	b, tb := h.mapWindow("", 100, 100, blue)
	c, tc := h.mapWindow("", 50, 50, red)
	require.Equal(t, []*Window{c, b, a}, h.comp.Windows())
	assert.True(t, tc.current.Activated)
	assert.False(t, tb.current.Activated)

	// Only a is under 250, 250.
	h.comp.PointerMotion(0, 250, 250)
	h.comp.PointerButton(0, 1, true)
	assert.Equal(t, []*Window{a, c, b}, h.comp.Windows())
	assert.Equal(t, a.tree, h.comp.scene.Root().Children()[0])
	assert.Equal(t, Surface(ta.surface), h.seat.keyboardFocus)
	assert.True(t, ta.current.Activated)
	assert.False(t, tc.current.Activated)

	require.True(t, h.comp.Focus(b.ID()))
	assert.Equal(t, []*Window{b, a, c}, h.comp.Windows())
	assert.False(t, h.comp.Focus(WindowID(99)))
}

func TestRequestActivate(t *testing.T) {
	h := newHarness(t)
	a, ta := h.mapWindow("", 10, 10, red)
	b, _ := h.mapWindow("", 10, 10, red)
	require.Equal(t, b.tree, h.comp.scene.Root().Children()[0])

	h.comp.requestActivate(ta.surface)
	assert.Equal(t, a.tree, h.comp.scene.Root().Children()[0])
	assert.Equal(t, []*Window{b, a}, h.comp.Windows(), "focus order is unchanged")
	assert.NotEqual(t, Surface(ta.surface), h.seat.keyboardFocus)

	h.comp.requestActivate(nil)
}

func TestForgetAll(t *testing.T) {
	h := newHarness(t)
	win, _ := h.mapWindow("Cmb:a", 10, 10, red)
	h.mapWindow("Cmb:b", 10, 10, red)
	require.Equal(t, 2, h.comp.States().Len())

	h.comp.ForgetAll()
	assert.Zero(t, h.comp.States().Len())
	_, ok := win.State()
	assert.False(t, ok)
}

func TestCloseWindow(t *testing.T) {
	h := newHarness(t)
	win, top := h.mapWindow("", 10, 10, red)
	assert.True(t, h.comp.CloseWindow(win.ID()))
	assert.True(t, top.closed)
	assert.False(t, h.comp.CloseWindow(WindowID(99)))
}

func TestPopupPlacement(t *testing.T) {
	h := newHarness(t)
	win, top := h.mapWindow("Cmb:editor", 200, 100, red)

	p := &fakePopup{
		surface:  newFakeSurface(h.client, 30, 20, blue),
		parent:   top.surface,
		parentG:  image.Rect(0, 0, 200, 100),
		geometry: image.Rect(10, 90, 40, 110),
		own:      image.Rect(2, 2, 32, 22),
	}
	h.comp.newPopup(p)
	require.NotNil(t, p.listener)
	tree := h.comp.trees[Surface(p.surface)]
	require.NotNil(t, tree)
	assert.Equal(t, win.tree, tree.Parent())
	assert.False(t, tree.Enabled())

	p.listener.Map()
	x, y := tree.Position()
	assert.Equal(t, 8, x)
	assert.Equal(t, 88, y)

	// Hits on the popup belong to the window.
	got, surface, _, _ := h.comp.windowAt(32+8+1, 32+88+1)
	assert.Equal(t, win, got)
	assert.Equal(t, Surface(p.surface), surface)

	p.listener.Destroy()
	assert.True(t, tree.Destroyed())
	assert.NotContains(t, h.comp.trees, Surface(p.surface))
}

func TestPopupWithoutParent(t *testing.T) {
	h := newHarness(t)
	p := &fakePopup{surface: newFakeSurface(h.client, 10, 10, blue)}
	h.comp.newPopup(p)
	assert.Nil(t, p.listener)
}
