package compositor

import (
	"image"
	"strings"

	"github.com/mstarongithub/wayembed/pixel"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// presentation couples the host frame clock to scene damage: the clock
// runs while there is something to draw and stops once a frame finds the
// scene unchanged.
type presentation struct {
	needsFrame     bool
	updating       bool
	frameScheduled bool
}

// Frame is one composited image of the virtual screen.
type Frame struct {
	Image  *pixel.Image
	Format pixel.HostFormat
}

// Updating reports whether the host frame clock is running.
func (comp *Compositor) Updating() bool { return comp.present.updating }

func (comp *Compositor) surfaceCommitted() {
	comp.scene.Damage()
}

// scheduleFrame raises the output frame signal once the current batch of
// work is done.
func (comp *Compositor) scheduleFrame() {
	if comp.closed || comp.present.frameScheduled {
		return
	}
	comp.present.frameScheduled = true
	comp.idle(func() {
		comp.present.frameScheduled = false
		comp.outputFrame()
	})
}

func (comp *Compositor) outputFrame() {
	if comp.closed {
		return
	}
	if !comp.present.needsFrame && !comp.scene.Damaged() {
		if comp.present.updating {
			logrus.Debugln("outputFrame: idle, stopping frame clock")
			comp.present.updating = false
			comp.host.EndUpdating()
		}
		return
	}
	if !comp.present.updating {
		logrus.Debugln("outputFrame: damaged, starting frame clock")
		comp.present.updating = true
		comp.host.BeginUpdating()
	}
	comp.host.QueueDraw()
}

// FrameTick is called on every tick of the host frame clock.
func (comp *Compositor) FrameTick() {
	comp.outputFrame()
}

// BuildFrame composites the scene. It fails when rendering is disabled or
// the image has no host format.
func (comp *Compositor) BuildFrame() (Frame, bool) {
	if comp.renderer == nil || comp.closed {
		return Frame{}, false
	}
	img := comp.renderer.Render(comp.scene, comp.width, comp.height)
	format := pixel.HostFormatOf(img.Format)
	if format == pixel.HostFormatInvalid {
		logrus.WithField("format", img.Format).Debugln("BuildFrame: no host format, skipping frame")
		return Frame{}, false
	}
	return Frame{Image: img, Format: format}, true
}

// Draw paints the error message if one is set, otherwise the current
// frame. Drawing a frame counts as presenting it to clients. The message
// consumes the damage too, so the frame clock stops while it is shown.
func (comp *Compositor) Draw(dst draw.Image) {
	if comp.errorMessage != "" {
		drawMessage(dst, comp.errorMessage)
		comp.present.needsFrame = false
		comp.scene.ClearDamage()
		return
	}
	frame, ok := comp.BuildFrame()
	if !ok {
		return
	}
	b := dst.Bounds()
	draw.Copy(dst, b.Min, frame.Image.ToRGBA(), frame.Image.Bounds(), draw.Src, nil)
	comp.commitFrame()
}

func (comp *Compositor) commitFrame() {
	comp.present.needsFrame = false
	comp.scene.ClearDamage()
	comp.scene.SendFrameDone(comp.now())
}

// drawMessage centres msg, one line per newline, on a white background.
func drawMessage(dst draw.Image, msg string) {
	b := dst.Bounds()
	draw.Draw(dst, b, image.White, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil()
	lines := strings.Split(msg, "\n")
	top := b.Min.Y + (b.Dy()-lineHeight*len(lines))/2

	d := &font.Drawer{Dst: dst, Src: image.Black, Face: face}
	for i, line := range lines {
		width := d.MeasureString(line).Ceil()
		x := b.Min.X + (b.Dx()-width)/2
		y := top + i*lineHeight + metrics.Ascent.Ceil()
		d.Dot = fixed.P(x, y)
		d.DrawString(line)
	}
}
