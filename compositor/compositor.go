// Package compositor is an embeddable nested Wayland compositor. It owns a
// virtual screen that clients connect to over a private socket, composites
// their windows into one image and takes its input from the embedding
// program.
//
// Everything runs on the embedding program's event loop: hand Source to
// the loop, forward input through the Pointer* and Key methods, call
// FrameTick on every frame clock tick and Draw when the host repaints.
package compositor

import (
	"container/list"
	"errors"
	"image/color"

	"github.com/mstarongithub/wayembed/pixel"
	"github.com/mstarongithub/wayembed/scene"
	"github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("compositor is closed")

// Host is the embedding widget as the compositor sees it.
type Host interface {
	// BeginUpdating and EndUpdating start and stop the host frame clock.
	BeginUpdating()
	EndUpdating()
	// QueueDraw asks for a repaint, which ends in a call to Draw.
	QueueDraw()
	// SetCursor installs a client cursor, nil restores the default one.
	SetCursor(c *Cursor)
}

type nopHost struct{}

func (nopHost) BeginUpdating()    {}
func (nopHost) EndUpdating()      {}
func (nopHost) QueueDraw()        {}
func (nopHost) SetCursor(*Cursor) {}

type Options struct {
	// Name of the virtual output as seen by clients.
	Name string
	// SocketDir is where the private socket directory is created. Empty
	// means the system temporary directory.
	SocketDir string

	Width, Height int
	Background    color.RGBA

	// IdentityPrefix marks the app ids whose placement is remembered.
	IdentityPrefix string
	// ContextMenuButton is the host button that opens the context menu
	// instead of reaching clients. Zero disables it.
	ContextMenuButton int
	ModifierMode      ModifierMode
	KeyboardLayout    string
	RenderFormat      pixel.Format
	RefreshMHz        int
}

func DefaultOptions() Options {
	return Options{
		Name:              "wayembed",
		Width:             800,
		Height:            600,
		Background:        color.RGBA{0xff, 0xff, 0xff, 0xff},
		IdentityPrefix:    DefaultIdentityPrefix,
		ContextMenuButton: 3,
		ModifierMode:      ModifiersAll,
		KeyboardLayout:    "us",
		RenderFormat:      pixel.FormatARGB8888,
		RefreshMHz:        60000,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Name == "" {
		o.Name = def.Name
	}
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = def.Width, def.Height
	}
	if o.KeyboardLayout == "" {
		o.KeyboardLayout = def.KeyboardLayout
	}
	if o.RefreshMHz <= 0 {
		o.RefreshMHz = def.RefreshMHz
	}
	return o
}

// Compositor is one virtual screen with its clients.
type Compositor struct {
	opts Options
	be   *backend

	scene      *scene.Scene
	background *scene.Node
	renderer   *scene.Renderer
	output     Output
	seat       Seat
	host       Host
	idle       func(func())
	now        func() uint32

	width, height int

	windows      map[WindowID]*Window
	nextID       WindowID
	topLevelList *list.List
	trees        map[Surface]*scene.Node
	states       *StateTable

	cursorX, cursorY float64
	grab             grab

	cursor  cursorBridge
	present presentation

	errorMessage string
	contextMenu  []func(x, y int)
	closed       bool
}

// New creates the virtual screen and its protocol server and binds a
// fresh socket. A socket that cannot be bound is logged and leaves the
// screen running without new connections.
func New(opts Options) (*Compositor, error) {
	opts = opts.withDefaults()
	be, err := newBackend(opts)
	if err != nil {
		return nil, err
	}
	comp := newCompositor(opts, wlSeat{be.seat}, be.output, be.display.Idle)
	comp.be = be
	be.connect(comp)
	return comp, nil
}

func newCompositor(opts Options, seat Seat, output Output, idle func(func())) *Compositor {
	comp := &Compositor{
		opts:         opts,
		seat:         seat,
		output:       output,
		host:         nopHost{},
		idle:         idle,
		now:          monotonicMs,
		width:        opts.Width,
		height:       opts.Height,
		windows:      make(map[WindowID]*Window),
		topLevelList: list.New(),
		trees:        make(map[Surface]*scene.Node),
		states:       NewStateTable(opts.IdentityPrefix),
	}

	comp.scene = scene.New()
	comp.background = comp.scene.NewRect(nil, comp.width, comp.height, opts.Background)

	renderer, err := scene.NewRenderer(opts.RenderFormat)
	if err != nil {
		logrus.WithError(err).Warnln("Failed to create renderer, no frames will be produced")
	} else {
		comp.renderer = renderer
	}

	comp.scene.OnDamage(comp.scheduleFrame)
	comp.output.SetMode(comp.width, comp.height, opts.RefreshMHz)
	comp.present.needsFrame = true
	return comp
}

// SetHost connects the embedding widget. Until then frame clock, redraw
// and cursor requests go nowhere.
func (comp *Compositor) SetHost(h Host) {
	if h == nil {
		h = nopHost{}
	}
	comp.host = h
	comp.scheduleFrame()
}

// SocketPath is the socket clients connect to, empty when binding failed.
func (comp *Compositor) SocketPath() string {
	if comp.be == nil {
		return ""
	}
	return comp.be.socketPath
}

// SocketName is SocketPath's base name, for WAYLAND_DISPLAY together with
// XDG_RUNTIME_DIR set to SocketDir.
func (comp *Compositor) SocketName() string {
	if comp.be == nil {
		return ""
	}
	return comp.be.socketName()
}

func (comp *Compositor) SocketDir() string {
	if comp.be == nil {
		return ""
	}
	return comp.be.socketDir
}

func (comp *Compositor) Options() Options { return comp.opts }

func (comp *Compositor) Size() (int, int) { return comp.width, comp.height }

// Resize follows a host layout change. The output mode is updated before
// anything is painted at the new size.
func (comp *Compositor) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	logrus.WithFields(logrus.Fields{"width": width, "height": height}).Debugln("Resize")
	comp.width, comp.height = width, height
	comp.background.SetSize(width, height)
	comp.output.SetMode(width, height, comp.opts.RefreshMHz)
	comp.present.needsFrame = true
	comp.scheduleFrame()
}

// SetBackground recolours the background, alpha is ignored.
func (comp *Compositor) SetBackground(c color.RGBA) {
	c.A = 0xff
	comp.background.SetColor(c)
}

func (comp *Compositor) Background() color.RGBA { return comp.background.Color() }

// States is the persisted placement table.
func (comp *Compositor) States() *StateTable { return comp.states }

// ForgetAll clears the persisted placement table. Live windows stop
// writing to the entries they had.
func (comp *Compositor) ForgetAll() {
	logrus.WithField("entries", comp.states.Len()).Infoln("Forgetting window state")
	comp.states.Clear()
	for _, w := range comp.windows {
		w.state = nil
	}
}

// SetErrorMessage replaces the composited frame with msg. An empty msg
// resumes compositing.
func (comp *Compositor) SetErrorMessage(msg string) {
	if msg == comp.errorMessage {
		return
	}
	comp.errorMessage = msg
	comp.host.QueueDraw()
}

func (comp *Compositor) ErrorMessage() string { return comp.errorMessage }

// OnContextMenu registers fn for presses of the context menu button,
// with widget coordinates.
func (comp *Compositor) OnContextMenu(fn func(x, y int)) {
	comp.contextMenu = append(comp.contextMenu, fn)
}

func (comp *Compositor) emitContextMenu(x, y int) {
	logrus.WithFields(logrus.Fields{"x": x, "y": y}).Debugln("emitContextMenu")
	for _, fn := range comp.contextMenu {
		fn(x, y)
	}
}

// Source is the protocol server as an event loop source.
func (comp *Compositor) Source() *Source {
	return &Source{comp: comp}
}

func (comp *Compositor) Closed() bool { return comp.closed }

// Close tears down every window, the protocol server and the socket
// directory. Later calls do nothing.
func (comp *Compositor) Close() error {
	if comp.closed {
		return nil
	}
	comp.closed = true
	logrus.Infoln("Closing compositor")

	comp.states.Clear()
	comp.cancelPendingCursor()
	comp.resetCursor()
	var err error
	if comp.be != nil {
		err = comp.be.destroy()
	}
	for _, w := range comp.windows {
		w.tree.Destroy()
	}
	clear(comp.windows)
	clear(comp.trees)
	comp.topLevelList.Init()
	comp.scene.Root().Destroy()
	if comp.present.updating {
		comp.present.updating = false
		comp.host.EndUpdating()
	}
	return err
}
