package compositor

import (
	"image"

	"github.com/mstarongithub/wayembed/pixel"
	"github.com/sirupsen/logrus"
)

// Cursor is a client cursor image copied out of the client's buffer.
type Cursor struct {
	Image              *image.NRGBA
	HotspotX, HotspotY int
}

// cursorBridge tracks the one cursor request waiting for its surface to
// commit a buffer.
type cursorBridge struct {
	cancel             func()
	hotspotX, hotspotY int
	current            *Cursor
}

// Cursor is the client cursor currently installed, nil for the host
// default.
func (comp *Compositor) Cursor() *Cursor { return comp.cursor.current }

func (comp *Compositor) cancelPendingCursor() {
	if comp.cursor.cancel != nil {
		comp.cursor.cancel()
		comp.cursor.cancel = nil
	}
}

// requestCursor handles wl_pointer.set_cursor. Only the client under the
// pointer may change the cursor; the image is taken at the surface's next
// commit.
func (comp *Compositor) requestCursor(client Client, surface Surface, hotspotX, hotspotY int) {
	focused := comp.seat.PointerFocusClient()
	if focused == nil || focused != client {
		logrus.Debugln("requestCursor: client does not have pointer focus")
		return
	}
	if surface == nil {
		return
	}
	logrus.WithFields(logrus.Fields{"hotspot_x": hotspotX, "hotspot_y": hotspotY}).Debugln("requestCursor")
	comp.cancelPendingCursor()
	comp.cursor.hotspotX, comp.cursor.hotspotY = hotspotX, hotspotY
	comp.cursor.cancel = surface.OnCommit(func() {
		dx, dy := surface.Delta()
		comp.cursor.hotspotX -= dx
		comp.cursor.hotspotY -= dy
		comp.installCursor(surface)
	})
}

func (comp *Compositor) installCursor(surface Surface) {
	img := surface.Image()
	if img.Empty() {
		return
	}
	comp.cancelPendingCursor()

	if img.Format != pixel.FormatARGB8888 {
		logrus.WithField("format", img.Format).Debugln("installCursor: unsupported cursor format")
		comp.resetCursor()
		return
	}
	c := &Cursor{
		Image:    img.ToNRGBA(),
		HotspotX: comp.cursor.hotspotX,
		HotspotY: comp.cursor.hotspotY,
	}
	comp.cursor.current = c
	comp.host.SetCursor(c)
}

// resetCursor restores the host's default cursor.
func (comp *Compositor) resetCursor() {
	if comp.cursor.current == nil {
		return
	}
	comp.cursor.current = nil
	comp.host.SetCursor(nil)
}
