package wlserver

import (
	"github.com/mstarongithub/wayembed/wire"
)

const (
	displayRequestSync        = 0
	displayRequestGetRegistry = 1

	displayEventError    = 0
	displayEventDeleteID = 1

	registryRequestBind = 0

	registryEventGlobal       = 0
	registryEventGlobalRemove = 1

	callbackEventDone = 0
)

func (c *Client) handleDisplay(r *Resource, opcode uint16, d *wire.Decoder) error {
	switch opcode {
	case displayRequestSync:
		id := d.NewID()
		if d.Err() != nil {
			return nil
		}
		cb, err := c.NewResource(id, "wl_callback", 1, noRequests)
		if err != nil {
			return err
		}
		sendCallbackDone(cb, c.display.NextSerial())
	case displayRequestGetRegistry:
		id := d.NewID()
		if d.Err() != nil {
			return nil
		}
		reg, err := c.NewResource(id, "wl_registry", 1, HandlerFunc(c.handleRegistry))
		if err != nil {
			return err
		}
		c.registries = append(c.registries, reg)
		reg.OnDestroy(func() {
			for i, other := range c.registries {
				if other == reg {
					c.registries = append(c.registries[:i], c.registries[i+1:]...)
					break
				}
			}
		})
		for _, g := range c.display.globals {
			sendGlobal(reg, g)
		}
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}

func sendGlobal(reg *Resource, g *Global) {
	reg.Post(reg.NewEvent(registryEventGlobal).
		PutUint32(g.name).
		PutString(g.Interface).
		PutUint32(g.Version))
}

func (c *Client) handleRegistry(r *Resource, opcode uint16, d *wire.Decoder) error {
	if opcode != registryRequestBind {
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	name := d.Uint32()
	iface := d.String()
	version := d.Uint32()
	id := d.NewID()
	if d.Err() != nil {
		return nil
	}
	var global *Global
	for _, g := range c.display.globals {
		if g.name == name {
			global = g
			break
		}
	}
	switch {
	case global == nil:
		return protoErr(r, displayErrorInvalidObject, "invalid global %s (%d)", iface, name)
	case global.Interface != iface:
		return protoErr(r, displayErrorInvalidObject, "invalid interface for global %d: have %s, wanted %s", name, iface, global.Interface)
	case version == 0 || version > global.Version:
		return protoErr(r, displayErrorInvalidObject, "invalid version for global %s (%d): have %d, wanted %d", iface, name, version, global.Version)
	}
	return global.bind(c, id, version)
}

// sendCallbackDone fires a wl_callback and destroys it, as the protocol
// requires.
func sendCallbackDone(cb *Resource, data uint32) {
	cb.Post(cb.NewEvent(callbackEventDone).PutUint32(data))
	cb.Destroy()
}

// noRequests rejects every request; used for objects without requests.
var noRequests = HandlerFunc(func(r *Resource, opcode uint16, _ *wire.Decoder) error {
	return protoErr(r, displayErrorInvalidMethod, "%s has no requests", r.iface)
})
