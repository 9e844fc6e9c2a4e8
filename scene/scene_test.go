package scene

import (
	"image/color"
	"testing"

	"github.com/mstarongithub/wayembed/pixel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChild struct {
	src  *fakeSurface
	x, y int
}

type fakeSurface struct {
	img      *pixel.Image
	children []fakeChild
	frames   []uint32
}

func newFakeSurface(w, h int, r, g, b uint8) *fakeSurface {
	img := pixel.NewImage(pixel.FormatARGB8888, w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.WritePremul(x, y, r, g, b, 0xff)
		}
	}
	return &fakeSurface{img: img}
}

func (f *fakeSurface) Image() *pixel.Image { return f.img }

func (f *fakeSurface) Subsurfaces(fn func(SurfaceSource, int, int)) {
	for _, c := range f.children {
		fn(c.src, c.x, c.y)
	}
}

func (f *fakeSurface) InputContains(sx, sy int) bool {
	return f.img != nil && sx >= 0 && sy >= 0 && sx < f.img.Width && sy < f.img.Height
}

func (f *fakeSurface) SendFrameDone(ms uint32) { f.frames = append(f.frames, ms) }

func TestNewNodesGoToFront(t *testing.T) {
	s := New()
	a := s.NewTree(nil)
	b := s.NewTree(nil)
	c := s.NewTree(nil)
	assert.Equal(t, []*Node{c, b, a}, s.Root().Children())

	a.RaiseToTop()
	assert.Equal(t, []*Node{a, c, b}, s.Root().Children())
	a.LowerToBottom()
	assert.Equal(t, []*Node{c, b, a}, s.Root().Children())

	b.Destroy()
	assert.Equal(t, []*Node{c, a}, s.Root().Children())
	assert.True(t, b.Destroyed())
	assert.Nil(t, b.Parent())
}

func TestDamage(t *testing.T) {
	s := New()
	calls := 0
	s.OnDamage(func() { calls++ })

	n := s.NewRect(nil, 10, 10, color.RGBA{A: 0xff})
	assert.True(t, s.Damaged())
	s.ClearDamage()

	n.SetPosition(0, 0)
	assert.False(t, s.Damaged(), "no-op changes do not damage")
	n.SetPosition(4, 4)
	assert.True(t, s.Damaged())
	assert.Equal(t, 2, calls)
}

func TestCoords(t *testing.T) {
	s := New()
	tree := s.NewTree(nil)
	tree.SetPosition(10, 20)
	inner := s.NewTree(tree)
	inner.SetPosition(1, 2)
	x, y := inner.Coords()
	assert.Equal(t, 11, x)
	assert.Equal(t, 22, y)
}

func TestNodeAt(t *testing.T) {
	s := New()
	s.NewRect(nil, 100, 100, color.RGBA{0xff, 0xff, 0xff, 0xff})

	back := s.NewTree(nil)
	back.Data = "back"
	backSurf := newFakeSurface(50, 50, 0xff, 0, 0)
	s.NewSurface(back, backSurf)

	front := s.NewTree(nil)
	front.Data = "front"
	front.SetPosition(20, 20)
	frontSurf := newFakeSurface(20, 20, 0, 0xff, 0)
	popup := newFakeSurface(5, 5, 0, 0, 0xff)
	frontSurf.children = []fakeChild{{src: popup, x: 18, y: 18}}
	s.NewSurface(front, frontSurf)

	tests := []struct {
		name   string
		x, y   float64
		want   SurfaceSource
		owner  any
		sx, sy float64
	}{
		{"back only", 5, 5, backSurf, "back", 5, 5},
		{"front covers back", 25, 25.5, frontSurf, "front", 5, 5.5},
		{"subsurface outside parent", 40, 41, popup, "front", 2, 3},
		{"background is not a surface", 80, 80, nil, nil, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit, ok := s.NodeAt(tt.x, tt.y)
			if tt.want == nil {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Same(t, tt.want, hit.Surface)
			assert.Equal(t, tt.owner, hit.Node.Parent().Data)
			assert.Equal(t, tt.sx, hit.SX)
			assert.Equal(t, tt.sy, hit.SY)
		})
	}

	front.SetEnabled(false)
	hit, ok := s.NodeAt(25, 25)
	require.True(t, ok)
	assert.Same(t, backSurf, hit.Surface)
}

func TestRender(t *testing.T) {
	s := New()
	s.NewRect(nil, 4, 4, color.RGBA{0xff, 0xff, 0xff, 0xff})
	tree := s.NewTree(nil)
	tree.SetPosition(1, 1)
	s.NewSurface(tree, newFakeSurface(2, 2, 0xff, 0, 0))

	r, err := NewRenderer(pixel.FormatXRGB8888)
	require.NoError(t, err)
	img := r.Render(s, 4, 4)
	require.Equal(t, pixel.FormatXRGB8888, img.Format)

	pixelAt := func(x, y int) [4]uint8 {
		r, g, b, a := img.ReadPremul(x, y)
		return [4]uint8{r, g, b, a}
	}
	assert.Equal(t, [4]uint8{0xff, 0xff, 0xff, 0xff}, pixelAt(0, 0))
	assert.Equal(t, [4]uint8{0xff, 0, 0, 0xff}, pixelAt(1, 1))
	assert.Equal(t, [4]uint8{0xff, 0, 0, 0xff}, pixelAt(2, 2))
	assert.Equal(t, [4]uint8{0xff, 0xff, 0xff, 0xff}, pixelAt(3, 3))
}

func TestRendererFormats(t *testing.T) {
	_, err := NewRenderer(pixel.FormatRGB565)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = NewRenderer(pixel.FormatABGR8888)
	assert.NoError(t, err)
}

func TestSendFrameDoneSkipsDisabled(t *testing.T) {
	s := New()
	visible := newFakeSurface(1, 1, 0, 0, 0)
	hidden := newFakeSurface(1, 1, 0, 0, 0)
	s.NewSurface(nil, visible)
	s.NewSurface(nil, hidden).SetEnabled(false)

	s.SendFrameDone(42)
	assert.Equal(t, []uint32{42}, visible.frames)
	assert.Empty(t, hidden.frames)
}
