package scene

import (
	"errors"
	"fmt"
	"image"

	"github.com/mstarongithub/wayembed/pixel"
	"golang.org/x/image/draw"
)

var ErrUnsupportedFormat = errors.New("unsupported render format")

// Renderer composites a scene in software into a pixel.Image of a fixed
// format.
type Renderer struct {
	format pixel.Format
	canvas *image.RGBA
}

// NewRenderer fails for formats the renderer cannot write.
func NewRenderer(format pixel.Format) (*Renderer, error) {
	if !format.Writable() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return &Renderer{format: format}, nil
}

func (r *Renderer) Format() pixel.Format { return r.format }

// Render paints the scene clipped to width x height.
func (r *Renderer) Render(s *Scene, width, height int) *pixel.Image {
	bounds := image.Rect(0, 0, width, height)
	if r.canvas == nil || r.canvas.Bounds() != bounds {
		r.canvas = image.NewRGBA(bounds)
	}
	draw.Draw(r.canvas, bounds, image.Transparent, image.Point{}, draw.Src)
	r.paint(s.root, 0, 0)

	out := pixel.NewImage(r.format, width, height)
	for y := 0; y < height; y++ {
		row := r.canvas.Pix[y*r.canvas.Stride:]
		for x := 0; x < width; x++ {
			p := row[x*4 : x*4+4 : x*4+4]
			out.WritePremul(x, y, p[0], p[1], p[2], p[3])
		}
	}
	return out
}

func (r *Renderer) paint(n *Node, ox, oy int) {
	if !n.enabled {
		return
	}
	ox += n.x
	oy += n.y
	switch n.typ {
	case NodeTree:
		for i := len(n.children) - 1; i >= 0; i-- {
			r.paint(n.children[i], ox, oy)
		}
	case NodeRect:
		rect := image.Rect(ox, oy, ox+n.width, oy+n.height)
		draw.Draw(r.canvas, rect, image.NewUniform(n.color), image.Point{}, draw.Over)
	case NodeSurface:
		r.paintSurface(n.source, ox, oy)
	}
}

func (r *Renderer) paintSurface(src SurfaceSource, ox, oy int) {
	if img := src.Image(); !img.Empty() {
		rgba := img.ToRGBA()
		draw.Copy(r.canvas, image.Pt(ox, oy), rgba, rgba.Bounds(), draw.Over, nil)
	}
	src.Subsurfaces(func(child SurfaceSource, x, y int) {
		r.paintSurface(child, ox+x, oy+y)
	})
}
