package main

import (
	"fmt"
	"image/color"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mstarongithub/wayembed/common/ipc"
	"github.com/mstarongithub/wayembed/compositor"
	"github.com/mstarongithub/wayembed/config"
	"github.com/mstarongithub/wayembed/mainloop"
	"github.com/mstarongithub/wayembed/repl"
	"github.com/mstarongithub/wayembed/util"
	"github.com/sirupsen/logrus"
	"gitlab.com/mstarongitlab/goutils/sliceutils"
)

// console drives the compositor the way a host widget would, one command
// per line. Commands run on the main loop goroutine.
type console struct {
	loop     *mainloop.Loop
	comp     *compositor.Compositor
	host     *headlessHost
	commands *repl.Commands
	start    time.Time
	inside   bool
}

func newConsole(loop *mainloop.Loop, comp *compositor.Compositor, host *headlessHost) *console {
	c := &console{
		loop:     loop,
		comp:     comp,
		host:     host,
		commands: repl.NewCommands(),
		start:    time.Now(),
	}
	c.register()
	return c
}

// run reads commands until the input ends or quit is entered.
func (c *console) run(in repl.ReadCloser, out io.WriteCloser) {
	commandRepl := repl.NewRepl(in, out)
	logrus.Debugln("Starting repl")
	if err := commandRepl.Run(c.handle); err != nil {
		logrus.WithError(err).Warnln("Console stopped")
	}
}

// handle hands a line over to the main loop and waits for the result.
func (c *console) handle(input string, r *repl.Repl) (string, error) {
	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	err := c.loop.Invoke(func() {
		if c.comp.Closed() {
			done <- result{"Compositor closed", repl.ErrQuit}
			return
		}
		out, err := c.commands.Handle(input, r)
		done <- result{out, err}
	})
	if err != nil {
		return "Main loop stopped", repl.ErrQuit
	}
	res := <-done
	return res.out, res.err
}

func (c *console) now() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

func (c *console) register() {
	for _, cmd := range []repl.Command{
		{Name: "run", Usage: "command [args...]", Help: "Start a client", MinArgs: 1, Run: c.cmdRun},
		{Name: "quit", Help: "Stop the compositor", Run: c.cmdQuit},
		{Name: "inspect", Usage: "screen|windows|grab|state|cursor [filter]", Help: "Print state as YAML", MinArgs: 1, Run: c.cmdInspect},
		{Name: "motion", Usage: "x y", Help: "Move the pointer", MinArgs: 2, Run: c.cmdMotion},
		{Name: "leave", Help: "Move the pointer off the screen", Run: c.cmdLeave},
		{Name: "press", Usage: "button", Help: "Press a pointer button, 1 to 3", MinArgs: 1, Run: c.cmdButton(true)},
		{Name: "release", Usage: "button", Help: "Release a pointer button", MinArgs: 1, Run: c.cmdButton(false)},
		{Name: "click", Usage: "x y [button]", Help: "Move, press and release", MinArgs: 2, Run: c.cmdClick},
		{Name: "scroll", Usage: "dx dy", Help: "Scroll by wheel steps", MinArgs: 2, Run: c.cmdScroll},
		{Name: "key", Usage: "keycode", Help: "Press a key, host keycode", MinArgs: 1, Run: c.cmdKey(true)},
		{Name: "keyup", Usage: "keycode", Help: "Release a key", MinArgs: 1, Run: c.cmdKey(false)},
		{Name: "mods", Usage: "mask|shift+ctrl+...", Help: "Set the held modifiers", MinArgs: 1, Run: c.cmdMods},
		{Name: "resize", Usage: "width height", Help: "Resize the virtual screen", MinArgs: 2, Run: c.cmdResize},
		{Name: "bg", Usage: "r g b | #rrggbb", Help: "Set the background colour", MinArgs: 1, Run: c.cmdBackground},
		{Name: "forget", Help: "Forget all remembered window placements", Run: c.cmdForget},
		{Name: "error", Usage: "[text]", Help: "Show an error message instead of the screen, no text clears it", Run: c.cmdError},
		{Name: "focus", Usage: "id", Help: "Focus a window", MinArgs: 1, Run: c.cmdFocus},
		{Name: "maximize", Usage: "id on|off", Help: "Maximize or restore a window", MinArgs: 2, Run: c.cmdMaximize(false)},
		{Name: "fullscreen", Usage: "id on|off", Help: "Make a window fullscreen or restore it", MinArgs: 2, Run: c.cmdMaximize(true)},
		{Name: "close", Usage: "id", Help: "Ask a window to close", MinArgs: 1, Run: c.cmdClose},
		{Name: "snapshot", Usage: "[file]", Help: "Save the screen as PNG", Run: c.cmdSnapshot},
	} {
		c.commands.Register(cmd)
	}
}

func (c *console) cmdRun(args []string, r *repl.Repl) (string, error) {
	if _, err := spawnClient(c.comp, args, r.Output); err != nil {
		return "", err
	}
	return "Running " + args[0], nil
}

func (c *console) cmdQuit([]string, *repl.Repl) (string, error) {
	c.loop.Quit()
	return "Quitting", repl.ErrQuit
}

func (c *console) cmdInspect(args []string, _ *repl.Repl) (string, error) {
	var target, filter string
	util.Unpack(args, &target, &filter)
	logrus.WithFields(logrus.Fields{"target": target, "filter": filter}).Debugln("Parsed inspect command")
	switch target {
	case "screen":
		return ipc.Encode(c.screenReport())
	case "windows":
		return ipc.Encode(c.windowReports(filter))
	case "grab":
		return ipc.Encode(grabReport(c.comp.Grab()))
	case "state":
		return ipc.Encode(c.stateReports())
	case "cursor":
		return ipc.Encode(c.cursorReport())
	}
	return "", fmt.Errorf("unknown inspect target %q", target)
}

func (c *console) screenReport() ipc.ScreenReport {
	w, h := c.comp.Size()
	bg := c.comp.Background()
	return ipc.ScreenReport{
		Width:        w,
		Height:       h,
		Background:   fmt.Sprintf("#%02x%02x%02x", bg.R, bg.G, bg.B),
		Socket:       c.comp.SocketPath(),
		Updating:     c.comp.Updating(),
		ErrorMessage: c.comp.ErrorMessage(),
		Windows:      len(c.comp.Windows()),
	}
}

// windowReports lists windows front to back. A filter keeps the windows
// whose app id starts with it.
func (c *console) windowReports(filter string) []ipc.WindowReport {
	windows := c.comp.Windows()
	if filter != "" {
		windows = sliceutils.Filter(windows, func(w *compositor.Window) bool {
			return strings.HasPrefix(w.AppID(), filter)
		})
	}
	out := make([]ipc.WindowReport, 0, len(windows))
	for _, w := range windows {
		out = append(out, windowReport(w))
	}
	return out
}

func windowReport(w *compositor.Window) ipc.WindowReport {
	g := w.Geometry()
	_, persisted := w.State()
	rep := ipc.WindowReport{
		ID:         uint64(w.ID()),
		AppID:      w.AppID(),
		Title:      w.Title(),
		Mapped:     w.Mapped(),
		X:          g.Min.X,
		Y:          g.Min.Y,
		Width:      g.Dx(),
		Height:     g.Dy(),
		Maximized:  w.Maximized(),
		Fullscreen: w.Fullscreen(),
		Persisted:  persisted,
	}
	if client := w.Toplevel().Surface().Client(); client != nil {
		rep.PID = client.PID()
	}
	return rep
}

var edgeNames = []struct {
	edge uint32
	name string
}{
	{compositor.EdgeTop, "top"},
	{compositor.EdgeBottom, "bottom"},
	{compositor.EdgeLeft, "left"},
	{compositor.EdgeRight, "right"},
}

func grabReport(g compositor.Grab) ipc.GrabReport {
	rep := ipc.GrabReport{Mode: g.Mode.String(), Window: uint64(g.Window)}
	for _, e := range edgeNames {
		if g.Edges&e.edge != 0 {
			rep.Edges = append(rep.Edges, e.name)
		}
	}
	return rep
}

func (c *console) stateReports() map[string]ipc.StateReport {
	states := c.comp.States()
	out := make(map[string]ipc.StateReport, states.Len())
	for _, id := range states.Identities() {
		st, _ := states.Lookup(id)
		out[id] = ipc.StateReport{
			X:          st.X,
			Y:          st.Y,
			Width:      st.Width,
			Height:     st.Height,
			Maximized:  st.Maximized,
			Fullscreen: st.Fullscreen,
		}
	}
	return out
}

func (c *console) cursorReport() ipc.CursorReport {
	x, y := c.comp.CursorPosition()
	rep := ipc.CursorReport{X: x, Y: y}
	if cur := c.comp.Cursor(); cur != nil {
		size := cur.Image.Bounds().Size()
		rep.Custom = true
		rep.Width, rep.Height = size.X, size.Y
		rep.HotspotX, rep.HotspotY = cur.HotspotX, cur.HotspotY
	}
	return rep
}

// motion enters the screen first if the pointer was outside.
func (c *console) motion(x, y float64) {
	if !c.inside {
		c.inside = true
		c.comp.PointerEnter(c.now(), x, y)
		return
	}
	c.comp.PointerMotion(c.now(), x, y)
}

func (c *console) cmdMotion(args []string, _ *repl.Repl) (string, error) {
	pos, err := util.ParseFloats(args[:2]...)
	if err != nil {
		return "", err
	}
	c.motion(pos[0], pos[1])
	return "", nil
}

func (c *console) cmdLeave([]string, *repl.Repl) (string, error) {
	c.inside = false
	c.comp.PointerLeave()
	return "", nil
}

func (c *console) cmdButton(pressed bool) func([]string, *repl.Repl) (string, error) {
	return func(args []string, _ *repl.Repl) (string, error) {
		b, err := strconv.Atoi(args[0])
		if err != nil {
			return "", fmt.Errorf("invalid button %q", args[0])
		}
		c.comp.PointerButton(c.now(), b, pressed)
		return "", nil
	}
}

func (c *console) cmdClick(args []string, _ *repl.Repl) (string, error) {
	pos, err := util.ParseFloats(args[:2]...)
	if err != nil {
		return "", err
	}
	button := 1
	if len(args) > 2 {
		if button, err = strconv.Atoi(args[2]); err != nil {
			return "", fmt.Errorf("invalid button %q", args[2])
		}
	}
	c.motion(pos[0], pos[1])
	c.comp.PointerButton(c.now(), button, true)
	c.comp.PointerButton(c.now(), button, false)
	return "", nil
}

func (c *console) cmdScroll(args []string, _ *repl.Repl) (string, error) {
	d, err := util.ParseFloats(args[:2]...)
	if err != nil {
		return "", err
	}
	c.comp.PointerScroll(c.now(), d[0], d[1])
	return "", nil
}

func (c *console) cmdKey(pressed bool) func([]string, *repl.Repl) (string, error) {
	return func(args []string, _ *repl.Repl) (string, error) {
		code, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return "", fmt.Errorf("invalid keycode %q", args[0])
		}
		c.comp.Key(c.now(), uint32(code), pressed)
		return "", nil
	}
}

var hostModifierNames = map[string]compositor.HostModifiers{
	"shift": compositor.HostShift,
	"lock":  compositor.HostLock,
	"ctrl":  compositor.HostControl,
	"alt":   compositor.HostAlt,
	"super": compositor.HostSuper,
	"hyper": compositor.HostHyper,
	"meta":  compositor.HostMeta,
}

// parseHostModifiers accepts a number or names joined by +. "none"
// releases everything.
func parseHostModifiers(s string) (compositor.HostModifiers, error) {
	if v, err := strconv.ParseUint(s, 0, 32); err == nil {
		return compositor.HostModifiers(v), nil
	}
	if s == "none" {
		return 0, nil
	}
	var mods compositor.HostModifiers
	for _, name := range strings.Split(strings.ToLower(s), "+") {
		m, ok := hostModifierNames[name]
		if !ok {
			names := make([]string, 0, len(hostModifierNames))
			for n := range hostModifierNames {
				names = append(names, n)
			}
			sort.Strings(names)
			return 0, fmt.Errorf("unknown modifier %q, known are %s", name, strings.Join(names, ", "))
		}
		mods |= m
	}
	return mods, nil
}

func (c *console) cmdMods(args []string, _ *repl.Repl) (string, error) {
	mods, err := parseHostModifiers(args[0])
	if err != nil {
		return "", err
	}
	c.comp.SetModifiers(mods)
	return "", nil
}

func (c *console) cmdResize(args []string, _ *repl.Repl) (string, error) {
	size, err := util.ParseInts(args[:2]...)
	if err != nil {
		return "", err
	}
	if size[0] <= 0 || size[1] <= 0 {
		return "", fmt.Errorf("invalid size %dx%d", size[0], size[1])
	}
	c.comp.Resize(size[0], size[1])
	return fmt.Sprintf("Screen is %dx%d", size[0], size[1]), nil
}

func (c *console) cmdBackground(args []string, _ *repl.Repl) (string, error) {
	var bg color.RGBA
	if len(args) >= 3 {
		rgb, err := util.ParseInts(args[:3]...)
		if err != nil {
			return "", err
		}
		for _, v := range rgb {
			if v < 0 || v > 0xff {
				return "", fmt.Errorf("colour component %d out of range", v)
			}
		}
		bg = color.RGBA{uint8(rgb[0]), uint8(rgb[1]), uint8(rgb[2]), 0xff}
	} else {
		parsed, err := config.ParseColor(args[0])
		if err != nil {
			return "", err
		}
		bg = parsed
	}
	c.comp.SetBackground(bg)
	return "", nil
}

func (c *console) cmdForget([]string, *repl.Repl) (string, error) {
	n := c.comp.States().Len()
	c.comp.ForgetAll()
	return fmt.Sprintf("Forgot %d placements", n), nil
}

func (c *console) cmdError(args []string, _ *repl.Repl) (string, error) {
	c.comp.SetErrorMessage(strings.Join(args, " "))
	return "", nil
}

func parseWindowID(s string) (compositor.WindowID, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid window id %q", s)
	}
	return compositor.WindowID(id), nil
}

func (c *console) cmdFocus(args []string, _ *repl.Repl) (string, error) {
	id, err := parseWindowID(args[0])
	if err != nil {
		return "", err
	}
	if !c.comp.Focus(id) {
		return "", fmt.Errorf("no mapped window %d", id)
	}
	return "", nil
}

func (c *console) cmdMaximize(fullscreen bool) func([]string, *repl.Repl) (string, error) {
	return func(args []string, _ *repl.Repl) (string, error) {
		id, err := parseWindowID(args[0])
		if err != nil {
			return "", err
		}
		on, err := util.ParseSwitch(args[1])
		if err != nil {
			return "", err
		}
		set := c.comp.SetMaximized
		if fullscreen {
			set = c.comp.SetFullscreen
		}
		if !set(id, on) {
			return "", fmt.Errorf("no window %d", id)
		}
		return "", nil
	}
}

func (c *console) cmdClose(args []string, _ *repl.Repl) (string, error) {
	id, err := parseWindowID(args[0])
	if err != nil {
		return "", err
	}
	if !c.comp.CloseWindow(id) {
		return "", fmt.Errorf("no window %d", id)
	}
	return "", nil
}

func (c *console) cmdSnapshot(args []string, _ *repl.Repl) (string, error) {
	var path string
	util.Unpack(args, &path)
	saved, err := c.host.Snapshot(path)
	if err != nil {
		return "", err
	}
	return "Saved " + saved, nil
}
