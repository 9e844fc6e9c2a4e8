package compositor

import (
	"github.com/mstarongithub/wayembed/scene"
	"github.com/sirupsen/logrus"
)

// popupView shows a popup inside its parent's subtree, so it moves and
// stacks with the window it belongs to.
type popupView struct {
	comp  *Compositor
	popup Popup
	tree  *scene.Node
}

func (comp *Compositor) newPopup(p Popup) {
	parentTree, ok := comp.trees[p.Parent()]
	if !ok {
		logrus.Debugln("newPopup: parent is not on screen")
		return
	}
	v := &popupView{comp: comp, popup: p}
	v.tree = comp.scene.NewTree(parentTree)
	v.tree.SetEnabled(false)
	comp.scene.NewSurface(v.tree, p.Surface())
	comp.trees[p.Surface()] = v.tree
	p.SetListener(v)
	logrus.Debugln("newPopup")
}

// place positions the popup relative to its parent's surface.
func (v *popupView) place() {
	parent := v.popup.ParentGeometry()
	g := v.popup.Geometry()
	own := v.popup.OwnGeometry()
	v.tree.SetPosition(parent.Min.X+g.Min.X-own.Min.X, parent.Min.Y+g.Min.Y-own.Min.Y)
}

func (v *popupView) Map() {
	v.place()
	v.tree.SetEnabled(true)
}

func (v *popupView) Unmap() {
	v.tree.SetEnabled(false)
}

func (v *popupView) Commit(bool) {
	v.place()
	v.comp.scene.Damage()
}

func (v *popupView) Destroy() {
	delete(v.comp.trees, v.popup.Surface())
	v.tree.Destroy()
}
