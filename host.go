package main

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/mstarongithub/wayembed/compositor"
	"github.com/mstarongithub/wayembed/mainloop"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
)

// screen is the part of the compositor the host drives.
type screen interface {
	Size() (int, int)
	Draw(dst draw.Image)
	FrameTick()
	CursorPosition() (float64, float64)
}

// headlessHost stands in for a toolkit widget: the frame clock is a main
// loop ticker and the widget surface an in-memory canvas.
type headlessHost struct {
	loop        *mainloop.Loop
	screen      screen
	clock       *mainloop.Ticker
	canvas      *image.RGBA
	drawQueued  bool
	cursor      *compositor.Cursor
	frames      int
	snapshotDir string
}

func newHeadlessHost(loop *mainloop.Loop, s screen, refreshHz int, snapshotDir string) *headlessHost {
	h := &headlessHost{loop: loop, screen: s, snapshotDir: snapshotDir}
	h.clock = loop.NewTicker(time.Second/time.Duration(refreshHz), s.FrameTick)
	return h
}

func (h *headlessHost) BeginUpdating() {
	logrus.Debugln("Frame clock started")
	h.clock.Start()
}

func (h *headlessHost) EndUpdating() {
	logrus.Debugln("Frame clock stopped")
	h.clock.Stop()
}

// QueueDraw coalesces redraw requests into one draw per loop iteration.
func (h *headlessHost) QueueDraw() {
	if h.drawQueued {
		return
	}
	h.drawQueued = true
	h.loop.Idle(h.draw)
}

func (h *headlessHost) SetCursor(c *compositor.Cursor) {
	h.cursor = c
	if c == nil {
		logrus.Debugln("Cursor reset to default")
		return
	}
	logrus.WithFields(logrus.Fields{
		"size":    c.Image.Bounds().Size(),
		"hotspot": image.Pt(c.HotspotX, c.HotspotY),
	}).Debugln("Cursor set")
}

func (h *headlessHost) draw() {
	h.drawQueued = false
	w, ht := h.screen.Size()
	if h.canvas == nil || h.canvas.Bounds().Dx() != w || h.canvas.Bounds().Dy() != ht {
		h.canvas = image.NewRGBA(image.Rect(0, 0, w, ht))
	}
	h.screen.Draw(h.canvas)
	h.frames++
}

// Frames counts the draws so far.
func (h *headlessHost) Frames() int { return h.frames }

// Snapshot draws the screen and saves it as PNG, with the client cursor
// on top. An empty path picks a timestamped name in the snapshot dir.
func (h *headlessHost) Snapshot(path string) (string, error) {
	h.draw()
	img := image.NewRGBA(h.canvas.Bounds())
	draw.Copy(img, image.Point{}, h.canvas, h.canvas.Bounds(), draw.Src, nil)
	if c := h.cursor; c != nil && c.Image != nil {
		x, y := h.screen.CursorPosition()
		at := image.Pt(int(x)-c.HotspotX, int(y)-c.HotspotY)
		draw.Copy(img, at, c.Image, c.Image.Bounds(), draw.Over, nil)
	}

	if path == "" {
		path = filepath.Join(h.snapshotDir, "wayembed-"+time.Now().Format("20060102-150405.000")+".png")
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating snapshot: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	logrus.WithField("path", path).Infoln("Saved snapshot")
	return path, nil
}
