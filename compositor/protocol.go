package compositor

import (
	"image"

	"github.com/mstarongithub/wayembed/scene"
)

// The compositor logic talks to the protocol server only through the
// interfaces below. bind.go adapts the wlserver types to them.

// Client is a connected client process.
type Client interface {
	PID() int32
}

// Surface is a client surface that can be shown in the scene.
type Surface interface {
	scene.SurfaceSource
	Client() Client
	// Root is the top of the subsurface tree this surface belongs to.
	Root() Surface
	// Delta is the buffer offset of the last commit.
	Delta() (dx, dy int)
	OnCommit(fn func()) (cancel func())
}

// ToplevelState is the part of a toplevel's state the compositor reads.
type ToplevelState struct {
	Width, Height int
	Maximized     bool
	Fullscreen    bool
	Activated     bool
}

// ToplevelListener is implemented by the window manager for each window.
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

// Toplevel is a client application window.
type Toplevel interface {
	Surface() Surface
	AppID() string
	Title() string
	SetListener(l ToplevelListener)

	Initialized() bool
	Configured() bool
	// Requested is what the client last asked for.
	Requested() (maximized, fullscreen bool)
	// Scheduled is what the next configure carries.
	Scheduled() ToplevelState
	// Current is what the client acked and committed.
	Current() ToplevelState
	// Geometry is the window geometry in surface-local coordinates.
	Geometry() image.Rectangle
	MinSize() (width, height int)

	SetSize(width, height int)
	SetMaximized(on bool)
	SetFullscreen(on bool)
	SetActivated(on bool)
	Close()
}

// PopupListener is implemented by the window manager for each popup.
type PopupListener interface {
	Map()
	Unmap()
	Commit(initial bool)
	Destroy()
}

// Popup is a menu or tooltip attached to another xdg surface.
type Popup interface {
	Surface() Surface
	// Parent is nil once the parent is gone.
	Parent() Surface
	// ParentGeometry is the parent's window geometry.
	ParentGeometry() image.Rectangle
	// Geometry is relative to the parent's window geometry.
	Geometry() image.Rectangle
	// OwnGeometry is the popup's window geometry in its surface
	// coordinates.
	OwnGeometry() image.Rectangle
	SetListener(l PopupListener)
}

type Axis int

const (
	AxisVertical Axis = iota
	AxisHorizontal
)

// Seat delivers input to clients.
type Seat interface {
	PointerFocus() Surface
	PointerFocusClient() Client
	PointerNotifyEnter(s Surface, sx, sy float64)
	PointerNotifyMotion(timeMs uint32, sx, sy float64)
	PointerClearFocus()
	PointerNotifyButton(timeMs, button uint32, pressed bool)
	PointerNotifyAxis(timeMs uint32, axis Axis, value float64, discrete int32)
	PointerNotifyFrame()

	KeyboardFocus() Surface
	KeyboardNotifyEnter(s Surface)
	KeyboardNotifyKey(timeMs, key uint32, pressed bool)
	KeyboardNotifyModifiers(depressed uint32)
}

// Output is the protocol-side description of the virtual screen.
type Output interface {
	SetMode(width, height, refreshMHz int)
}
