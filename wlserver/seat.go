package wlserver

import (
	"encoding/binary"
	"fmt"
	"slices"
	"strings"

	"github.com/mstarongithub/wayembed/wire"
	"golang.org/x/sys/unix"
)

const (
	seatRequestGetPointer  = 0
	seatRequestGetKeyboard = 1
	seatRequestGetTouch    = 2
	seatRequestRelease     = 3

	seatEventCapabilities = 0
	seatEventName         = 1

	pointerRequestSetCursor = 0
	pointerRequestRelease   = 1

	pointerEventEnter        = 0
	pointerEventLeave        = 1
	pointerEventMotion       = 2
	pointerEventButton       = 3
	pointerEventAxis         = 4
	pointerEventFrame        = 5
	pointerEventAxisSource   = 6
	pointerEventAxisDiscrete = 8

	pointerErrorRole = 0

	pointerAxisSourceWheel = 0

	keyboardRequestRelease = 0

	keyboardEventKeymap     = 0
	keyboardEventEnter      = 1
	keyboardEventLeave      = 2
	keyboardEventKey        = 3
	keyboardEventModifiers  = 4
	keyboardEventRepeatInfo = 5

	keymapFormatXkbV1 = 1

	touchRequestRelease = 0
)

// Seat capabilities.
const (
	SeatCapabilityPointer  uint32 = 1
	SeatCapabilityKeyboard uint32 = 2
	SeatCapabilityTouch    uint32 = 4
)

// Axis is a wl_pointer scroll axis.
type Axis uint32

const (
	AxisVertical   Axis = 0
	AxisHorizontal Axis = 1
)

// Modifiers is the xkb modifier state sent with wl_keyboard.modifiers.
type Modifiers struct {
	Depressed uint32
	Latched   uint32
	Locked    uint32
	Group     uint32
}

// SetCursorEvent is raised when a client calls wl_pointer.set_cursor. A
// nil Surface hides the cursor.
type SetCursorEvent struct {
	Client   *Client
	Surface  *Surface
	Serial   uint32
	HotspotX int32
	HotspotY int32
}

const keymapTemplate = `xkb_keymap {
	xkb_keycodes  { include "evdev+aliases(qwerty)" };
	xkb_types     { include "complete" };
	xkb_compat    { include "complete" };
	xkb_symbols   { include "pc+%s+inet(evdev)" };
};
`

// Seat is the wl_seat global together with the pointer and keyboard
// focus it tracks.
type Seat struct {
	display *Display
	global  *Global
	name    string
	caps    uint32

	pointers  []*Resource
	keyboards []*Resource

	pointerFocus     *Surface
	pointerX         float64
	pointerY         float64
	keyboardFocus    *Surface
	pressedKeys      []uint32
	modifiers        Modifiers
	watched          map[*Surface]bool
	keymapFd         int
	keymapSize       int
	repeatRate       int32
	repeatDelay      int32
	selection        *DataSource
	setCursorHandler []func(SetCursorEvent)
	selectionHandler []func(*DataSource)
}

// NewSeat advertises a seat with pointer and keyboard capabilities.
func NewSeat(d *Display, name string) *Seat {
	s := &Seat{
		display:     d,
		name:        name,
		caps:        SeatCapabilityPointer | SeatCapabilityKeyboard,
		watched:     make(map[*Surface]bool),
		keymapFd:    -1,
		repeatRate:  25,
		repeatDelay: 600,
	}
	s.global = d.AddGlobal("wl_seat", 7, s.bind)
	return s
}

func (s *Seat) Name() string { return s.name }

// OnSetCursor registers fn for cursor image requests from any client.
func (s *Seat) OnSetCursor(fn func(SetCursorEvent)) {
	s.setCursorHandler = append(s.setCursorHandler, fn)
}

// OnSetSelection registers fn for clipboard selection changes.
func (s *Seat) OnSetSelection(fn func(*DataSource)) {
	s.selectionHandler = append(s.selectionHandler, fn)
}

// Selection returns the current clipboard source, if any.
func (s *Seat) Selection() *DataSource { return s.selection }

// SetRepeatInfo changes the key repeat rate (per second) and delay (ms).
func (s *Seat) SetRepeatInfo(rate, delay int32) {
	s.repeatRate, s.repeatDelay = rate, delay
}

// SetKeymap hands clients an include-based xkb keymap for layout. Their
// xkbcommon resolves the includes.
func (s *Seat) SetKeymap(layout string) error {
	if layout == "" || strings.ContainsAny(layout, "\"\n{};") {
		return fmt.Errorf("invalid keyboard layout %q", layout)
	}
	text := fmt.Sprintf(keymapTemplate, layout) + "\x00"
	fd, err := unix.MemfdCreate("wayembed-keymap", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return fmt.Errorf("creating keymap memfd: %w", err)
	}
	if _, err := unix.Write(fd, []byte(text)); err != nil {
		unix.Close(fd)
		return fmt.Errorf("writing keymap: %w", err)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK|unix.F_SEAL_GROW|unix.F_SEAL_WRITE|unix.F_SEAL_SEAL); err != nil {
		logf(LogImportanceDebug, "sealing keymap: %v", err)
	}
	if s.keymapFd >= 0 {
		unix.Close(s.keymapFd)
	}
	s.keymapFd, s.keymapSize = fd, len(text)
	for _, k := range s.keyboards {
		s.sendKeymap(k)
	}
	return nil
}

func (s *Seat) bind(c *Client, id, version uint32) error {
	r, err := c.NewResource(id, "wl_seat", version, HandlerFunc(s.handle))
	if err != nil {
		return err
	}
	r.Post(r.NewEvent(seatEventCapabilities).PutUint32(s.caps))
	if version >= 2 {
		r.Post(r.NewEvent(seatEventName).PutString(s.name))
	}
	return nil
}

func removeResource(list []*Resource, r *Resource) []*Resource {
	for i, other := range list {
		if other == r {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (s *Seat) handle(r *Resource, opcode uint16, d *wire.Decoder) error {
	switch opcode {
	case seatRequestGetPointer:
		id := d.NewID()
		if d.Err() != nil {
			return nil
		}
		p, err := r.client.NewResource(id, "wl_pointer", r.version, HandlerFunc(s.handlePointer))
		if err != nil {
			return err
		}
		s.pointers = append(s.pointers, p)
		p.OnDestroy(func() { s.pointers = removeResource(s.pointers, p) })
	case seatRequestGetKeyboard:
		id := d.NewID()
		if d.Err() != nil {
			return nil
		}
		k, err := r.client.NewResource(id, "wl_keyboard", r.version, HandlerFunc(func(kr *Resource, op uint16, _ *wire.Decoder) error {
			if op != keyboardRequestRelease {
				return protoErr(kr, displayErrorInvalidMethod, "invalid opcode %d", op)
			}
			kr.Destroy()
			return nil
		}))
		if err != nil {
			return err
		}
		s.keyboards = append(s.keyboards, k)
		k.OnDestroy(func() { s.keyboards = removeResource(s.keyboards, k) })
		s.sendKeymap(k)
		if k.version >= 4 {
			k.Post(k.NewEvent(keyboardEventRepeatInfo).PutInt32(s.repeatRate).PutInt32(s.repeatDelay))
		}
		if s.keyboardFocus != nil && s.keyboardFocus.Client() == r.client {
			serial := s.display.NextSerial()
			s.sendKeyboardEnter(k, s.keyboardFocus, serial)
			s.sendModifiers(k, serial)
		}
	case seatRequestGetTouch:
		id := d.NewID()
		if d.Err() != nil {
			return nil
		}
		_, err := r.client.NewResource(id, "wl_touch", r.version, HandlerFunc(func(tr *Resource, op uint16, _ *wire.Decoder) error {
			if op != touchRequestRelease {
				return protoErr(tr, displayErrorInvalidMethod, "invalid opcode %d", op)
			}
			tr.Destroy()
			return nil
		}))
		return err
	case seatRequestRelease:
		r.Destroy()
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}

func (s *Seat) handlePointer(r *Resource, opcode uint16, d *wire.Decoder) error {
	switch opcode {
	case pointerRequestSetCursor:
		serial := d.Uint32()
		surfaceID := d.Object()
		hx := d.Int32()
		hy := d.Int32()
		if d.Err() != nil {
			return nil
		}
		var surface *Surface
		if surfaceID != 0 {
			surface = SurfaceFromResource(r.client.Object(surfaceID))
			if surface == nil {
				return protoErr(r, displayErrorInvalidObject, "invalid surface %d", surfaceID)
			}
			if !surface.setRole("wl_pointer-cursor", nil) {
				return protoErr(r, pointerErrorRole, "wl_surface@%d already has another role", surfaceID)
			}
		}
		ev := SetCursorEvent{Client: r.client, Surface: surface, Serial: serial, HotspotX: hx, HotspotY: hy}
		for _, fn := range s.setCursorHandler {
			fn(ev)
		}
	case pointerRequestRelease:
		r.Destroy()
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}

func (s *Seat) sendKeymap(k *Resource) {
	if s.keymapFd < 0 {
		return
	}
	fd, err := unix.FcntlInt(uintptr(s.keymapFd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		logf(LogImportanceError, "duplicating keymap fd: %v", err)
		return
	}
	k.Post(k.NewEvent(keyboardEventKeymap).
		PutUint32(keymapFormatXkbV1).
		PutFd(fd).
		PutUint32(uint32(s.keymapSize)))
}

// watch clears focus when a focused surface goes away.
func (s *Seat) watch(surface *Surface) {
	if s.watched[surface] {
		return
	}
	s.watched[surface] = true
	surface.OnDestroy(func() {
		delete(s.watched, surface)
		if s.pointerFocus == surface {
			s.pointerFocus = nil
		}
		if s.keyboardFocus == surface {
			s.keyboardFocus = nil
		}
	})
}

func (s *Seat) resourcesOf(list []*Resource, c *Client) []*Resource {
	var out []*Resource
	for _, r := range list {
		if r.client == c {
			out = append(out, r)
		}
	}
	return out
}

// PointerFocus returns the surface with pointer focus.
func (s *Seat) PointerFocus() *Surface { return s.pointerFocus }

// PointerFocusClient returns the client owning the pointer focus.
func (s *Seat) PointerFocusClient() *Client {
	if s.pointerFocus == nil {
		return nil
	}
	return s.pointerFocus.Client()
}

// PointerNotifyEnter moves pointer focus to surface at surface-local
// coordinates. Entering the already focused surface does nothing.
func (s *Seat) PointerNotifyEnter(surface *Surface, sx, sy float64) {
	if surface == s.pointerFocus {
		return
	}
	s.PointerClearFocus()
	if surface == nil || surface.Destroyed() {
		return
	}
	s.watch(surface)
	s.pointerFocus = surface
	s.pointerX, s.pointerY = sx, sy
	serial := s.display.NextSerial()
	for _, p := range s.resourcesOf(s.pointers, surface.Client()) {
		p.Post(p.NewEvent(pointerEventEnter).
			PutUint32(serial).
			PutObject(surface.ID()).
			PutFixed(wire.FixedFromFloat(sx)).
			PutFixed(wire.FixedFromFloat(sy)))
	}
}

// PointerClearFocus sends leave to the focused surface.
func (s *Seat) PointerClearFocus() {
	old := s.pointerFocus
	if old == nil {
		return
	}
	s.pointerFocus = nil
	serial := s.display.NextSerial()
	for _, p := range s.resourcesOf(s.pointers, old.Client()) {
		p.Post(p.NewEvent(pointerEventLeave).PutUint32(serial).PutObject(old.ID()))
	}
}

// PointerNotifyMotion sends motion to the focused surface.
func (s *Seat) PointerNotifyMotion(timeMs uint32, sx, sy float64) {
	if s.pointerFocus == nil || (sx == s.pointerX && sy == s.pointerY) {
		return
	}
	s.pointerX, s.pointerY = sx, sy
	for _, p := range s.resourcesOf(s.pointers, s.pointerFocus.Client()) {
		p.Post(p.NewEvent(pointerEventMotion).
			PutUint32(timeMs).
			PutFixed(wire.FixedFromFloat(sx)).
			PutFixed(wire.FixedFromFloat(sy)))
	}
}

// PointerNotifyButton sends a button event and returns its serial, or 0
// when nothing has focus.
func (s *Seat) PointerNotifyButton(timeMs, button uint32, pressed bool) uint32 {
	if s.pointerFocus == nil {
		return 0
	}
	state := uint32(0)
	if pressed {
		state = 1
	}
	serial := s.display.NextSerial()
	for _, p := range s.resourcesOf(s.pointers, s.pointerFocus.Client()) {
		p.Post(p.NewEvent(pointerEventButton).
			PutUint32(serial).
			PutUint32(timeMs).
			PutUint32(button).
			PutUint32(state))
	}
	return serial
}

// PointerNotifyAxis sends a wheel scroll on one axis.
func (s *Seat) PointerNotifyAxis(timeMs uint32, axis Axis, value float64, discrete int32) {
	if s.pointerFocus == nil {
		return
	}
	for _, p := range s.resourcesOf(s.pointers, s.pointerFocus.Client()) {
		if p.version >= 5 {
			p.Post(p.NewEvent(pointerEventAxisSource).PutUint32(pointerAxisSourceWheel))
			if discrete != 0 {
				p.Post(p.NewEvent(pointerEventAxisDiscrete).PutUint32(uint32(axis)).PutInt32(discrete))
			}
		}
		p.Post(p.NewEvent(pointerEventAxis).
			PutUint32(timeMs).
			PutUint32(uint32(axis)).
			PutFixed(wire.FixedFromFloat(value)))
	}
}

// PointerNotifyFrame closes a group of pointer events.
func (s *Seat) PointerNotifyFrame() {
	if s.pointerFocus == nil {
		return
	}
	for _, p := range s.resourcesOf(s.pointers, s.pointerFocus.Client()) {
		if p.version >= 5 {
			p.Post(p.NewEvent(pointerEventFrame))
		}
	}
}

// KeyboardFocus returns the surface with keyboard focus.
func (s *Seat) KeyboardFocus() *Surface { return s.keyboardFocus }

func (s *Seat) sendKeyboardEnter(k *Resource, surface *Surface, serial uint32) {
	keys := make([]byte, 0, len(s.pressedKeys)*4)
	for _, key := range s.pressedKeys {
		keys = binary.LittleEndian.AppendUint32(keys, key)
	}
	k.Post(k.NewEvent(keyboardEventEnter).
		PutUint32(serial).
		PutObject(surface.ID()).
		PutArray(keys))
}

func (s *Seat) sendModifiers(k *Resource, serial uint32) {
	k.Post(k.NewEvent(keyboardEventModifiers).
		PutUint32(serial).
		PutUint32(s.modifiers.Depressed).
		PutUint32(s.modifiers.Latched).
		PutUint32(s.modifiers.Locked).
		PutUint32(s.modifiers.Group))
}

// KeyboardNotifyEnter moves keyboard focus to surface.
func (s *Seat) KeyboardNotifyEnter(surface *Surface) {
	if surface == s.keyboardFocus {
		return
	}
	s.KeyboardClearFocus()
	if surface == nil || surface.Destroyed() {
		return
	}
	s.watch(surface)
	s.keyboardFocus = surface
	serial := s.display.NextSerial()
	for _, k := range s.resourcesOf(s.keyboards, surface.Client()) {
		s.sendKeyboardEnter(k, surface, serial)
		s.sendModifiers(k, serial)
	}
}

// KeyboardClearFocus sends leave to the focused surface.
func (s *Seat) KeyboardClearFocus() {
	old := s.keyboardFocus
	if old == nil {
		return
	}
	s.keyboardFocus = nil
	serial := s.display.NextSerial()
	for _, k := range s.resourcesOf(s.keyboards, old.Client()) {
		k.Post(k.NewEvent(keyboardEventLeave).PutUint32(serial).PutObject(old.ID()))
	}
}

// KeyboardNotifyKey sends an evdev key code to the focused surface.
func (s *Seat) KeyboardNotifyKey(timeMs, key uint32, pressed bool) {
	state := uint32(0)
	if pressed {
		state = 1
		if !slices.Contains(s.pressedKeys, key) {
			s.pressedKeys = append(s.pressedKeys, key)
		}
	} else {
		for i, k := range s.pressedKeys {
			if k == key {
				s.pressedKeys = append(s.pressedKeys[:i], s.pressedKeys[i+1:]...)
				break
			}
		}
	}
	if s.keyboardFocus == nil {
		return
	}
	serial := s.display.NextSerial()
	for _, k := range s.resourcesOf(s.keyboards, s.keyboardFocus.Client()) {
		k.Post(k.NewEvent(keyboardEventKey).
			PutUint32(serial).
			PutUint32(timeMs).
			PutUint32(key).
			PutUint32(state))
	}
}

// Modifiers returns the last modifier state sent.
func (s *Seat) Modifiers() Modifiers { return s.modifiers }

// KeyboardNotifyModifiers updates and forwards the modifier state.
func (s *Seat) KeyboardNotifyModifiers(m Modifiers) {
	if m == s.modifiers {
		return
	}
	s.modifiers = m
	if s.keyboardFocus == nil {
		return
	}
	serial := s.display.NextSerial()
	for _, k := range s.resourcesOf(s.keyboards, s.keyboardFocus.Client()) {
		s.sendModifiers(k, serial)
	}
}

// Destroy withdraws the seat global and releases the keymap.
func (s *Seat) Destroy() {
	s.display.RemoveGlobal(s.global)
	if s.keymapFd >= 0 {
		unix.Close(s.keymapFd)
		s.keymapFd = -1
	}
}
