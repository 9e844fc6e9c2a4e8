// Package scene is a small retained scene graph: trees, solid rectangles
// and client surfaces, painted back to front by a software renderer.
//
// Children are kept front to back: index 0 is painted last and hit first.
package scene

import (
	"image"
	"image/color"
	"slices"

	"github.com/mstarongithub/wayembed/pixel"
)

type NodeType int

const (
	NodeTree NodeType = iota
	NodeRect
	NodeSurface
)

func (t NodeType) String() string {
	switch t {
	case NodeTree:
		return "tree"
	case NodeRect:
		return "rect"
	case NodeSurface:
		return "surface"
	}
	return "unknown"
}

// SurfaceSource is the client content behind a surface node.
type SurfaceSource interface {
	Image() *pixel.Image
	// Subsurfaces calls fn for each child, bottom to top, with its
	// position relative to the parent.
	Subsurfaces(fn func(child SurfaceSource, x, y int))
	InputContains(sx, sy int) bool
	SendFrameDone(ms uint32)
}

// Node is one element of the scene. Data is free for the owner, typically
// a handle back to whatever the node represents.
type Node struct {
	scene     *Scene
	typ       NodeType
	parent    *Node
	children  []*Node
	x, y      int
	enabled   bool
	destroyed bool

	width, height int
	color         color.RGBA

	source SurfaceSource

	Data any
}

// Scene owns the root tree and tracks whether anything changed since the
// last frame.
type Scene struct {
	root     *Node
	damaged  bool
	onDamage []func()
}

func New() *Scene {
	s := &Scene{}
	s.root = &Node{scene: s, typ: NodeTree, enabled: true}
	return s
}

func (s *Scene) Root() *Node { return s.root }

// OnDamage registers fn to run whenever the scene becomes damaged.
func (s *Scene) OnDamage(fn func()) {
	s.onDamage = append(s.onDamage, fn)
}

// Damage marks the scene as needing a new frame.
func (s *Scene) Damage() {
	s.damaged = true
	for _, fn := range s.onDamage {
		fn()
	}
}

func (s *Scene) Damaged() bool { return s.damaged }

// ClearDamage is called once a frame reflecting the current state has
// been presented.
func (s *Scene) ClearDamage() { s.damaged = false }

func (s *Scene) newNode(parent *Node, typ NodeType) *Node {
	if parent == nil {
		parent = s.root
	}
	n := &Node{scene: s, typ: typ, parent: parent, enabled: true}
	parent.children = slices.Insert(parent.children, 0, n)
	s.Damage()
	return n
}

// NewTree adds an empty tree in front of parent's other children. A nil
// parent means the root.
func (s *Scene) NewTree(parent *Node) *Node {
	return s.newNode(parent, NodeTree)
}

func (s *Scene) NewRect(parent *Node, width, height int, c color.RGBA) *Node {
	n := s.newNode(parent, NodeRect)
	n.width, n.height, n.color = width, height, c
	return n
}

func (s *Scene) NewSurface(parent *Node, src SurfaceSource) *Node {
	n := s.newNode(parent, NodeSurface)
	n.source = src
	return n
}

func (n *Node) Type() NodeType        { return n.typ }
func (n *Node) Parent() *Node         { return n.parent }
func (n *Node) Enabled() bool         { return n.enabled }
func (n *Node) Destroyed() bool       { return n.destroyed }
func (n *Node) Source() SurfaceSource { return n.source }
func (n *Node) Position() (int, int)  { return n.x, n.y }
func (n *Node) Color() color.RGBA     { return n.color }
func (n *Node) Size() (int, int)      { return n.width, n.height }

// Children returns a copy of the children, front to back.
func (n *Node) Children() []*Node {
	return slices.Clone(n.children)
}

// Coords returns the node's position in scene coordinates.
func (n *Node) Coords() (int, int) {
	x, y := 0, 0
	for p := n; p != nil; p = p.parent {
		x += p.x
		y += p.y
	}
	return x, y
}

func (n *Node) SetPosition(x, y int) {
	if n.x == x && n.y == y {
		return
	}
	n.x, n.y = x, y
	n.scene.Damage()
}

func (n *Node) SetEnabled(on bool) {
	if n.enabled == on {
		return
	}
	n.enabled = on
	n.scene.Damage()
}

// SetSize resizes a rect node.
func (n *Node) SetSize(width, height int) {
	if n.width == width && n.height == height {
		return
	}
	n.width, n.height = width, height
	n.scene.Damage()
}

// SetColor recolours a rect node.
func (n *Node) SetColor(c color.RGBA) {
	if n.color == c {
		return
	}
	n.color = c
	n.scene.Damage()
}

func (n *Node) index() int {
	if n.parent == nil {
		return -1
	}
	return slices.Index(n.parent.children, n)
}

// RaiseToTop moves n in front of its siblings.
func (n *Node) RaiseToTop() {
	i := n.index()
	if i <= 0 {
		return
	}
	siblings := n.parent.children
	copy(siblings[1:i+1], siblings[:i])
	siblings[0] = n
	n.scene.Damage()
}

// LowerToBottom moves n behind its siblings.
func (n *Node) LowerToBottom() {
	i := n.index()
	if i < 0 || i == len(n.parent.children)-1 {
		return
	}
	siblings := n.parent.children
	copy(siblings[i:], siblings[i+1:])
	siblings[len(siblings)-1] = n
	n.scene.Damage()
}

// Destroy removes n and its whole subtree from the scene.
func (n *Node) Destroy() {
	if n.destroyed {
		return
	}
	if i := n.index(); i >= 0 {
		n.parent.children = slices.Delete(n.parent.children, i, i+1)
	}
	n.destroyRecursive()
	n.scene.Damage()
}

func (n *Node) destroyRecursive() {
	n.destroyed = true
	for _, c := range n.children {
		c.destroyRecursive()
	}
	n.children = nil
	n.parent = nil
	n.source = nil
}

// Hit is the result of a hit test.
type Hit struct {
	// Node is the surface node that was hit.
	Node *Node
	// Surface is the exact surface under the point, possibly a
	// subsurface of Node's source.
	Surface SurfaceSource
	// SX, SY are relative to Surface.
	SX, SY float64
}

// NodeAt finds the frontmost surface accepting input at lx, ly.
func (s *Scene) NodeAt(lx, ly float64) (Hit, bool) {
	return nodeAt(s.root, lx, ly)
}

func nodeAt(n *Node, lx, ly float64) (Hit, bool) {
	if !n.enabled {
		return Hit{}, false
	}
	lx -= float64(n.x)
	ly -= float64(n.y)
	switch n.typ {
	case NodeTree:
		for _, c := range n.children {
			if hit, ok := nodeAt(c, lx, ly); ok {
				return hit, true
			}
		}
	case NodeSurface:
		if surf, sx, sy, ok := surfaceAt(n.source, lx, ly); ok {
			return Hit{Node: n, Surface: surf, SX: sx, SY: sy}, true
		}
	}
	return Hit{}, false
}

// surfaceAt tests subsurfaces top-down before the surface itself.
func surfaceAt(src SurfaceSource, sx, sy float64) (SurfaceSource, float64, float64, bool) {
	type child struct {
		src  SurfaceSource
		x, y int
	}
	var children []child
	src.Subsurfaces(func(c SurfaceSource, x, y int) {
		children = append(children, child{c, x, y})
	})
	for i := len(children) - 1; i >= 0; i-- {
		c := children[i]
		if hit, hx, hy, ok := surfaceAt(c.src, sx-float64(c.x), sy-float64(c.y)); ok {
			return hit, hx, hy, true
		}
	}
	if src.InputContains(floor(sx), floor(sy)) {
		return src, sx, sy, true
	}
	return nil, 0, 0, false
}

func floor(f float64) int {
	i := int(f)
	if f < 0 && float64(i) != f {
		i--
	}
	return i
}

// SendFrameDone fires frame callbacks of every visible surface.
func (s *Scene) SendFrameDone(ms uint32) {
	s.walk(s.root, func(n *Node) {
		if n.typ == NodeSurface && n.source != nil {
			n.source.SendFrameDone(ms)
		}
	})
}

// walk visits enabled nodes back to front.
func (s *Scene) walk(n *Node, fn func(*Node)) {
	if !n.enabled {
		return
	}
	fn(n)
	for i := len(n.children) - 1; i >= 0; i-- {
		s.walk(n.children[i], fn)
	}
}

// Bounds is the union of every visible node's extent in scene
// coordinates.
func (s *Scene) Bounds() image.Rectangle {
	var r image.Rectangle
	s.walk(s.root, func(n *Node) {
		x, y := n.Coords()
		switch n.typ {
		case NodeRect:
			r = r.Union(image.Rect(x, y, x+n.width, y+n.height))
		case NodeSurface:
			if img := n.source.Image(); img != nil {
				r = r.Union(img.Bounds().Add(image.Pt(x, y)))
			}
		}
	})
	return r
}
