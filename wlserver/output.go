package wlserver

import (
	"github.com/mstarongithub/wayembed/wire"
)

const (
	outputRequestRelease = 0

	outputEventGeometry    = 0
	outputEventMode        = 1
	outputEventDone        = 2
	outputEventScale       = 3
	outputEventName        = 4
	outputEventDescription = 5

	outputModeCurrent   = 1
	outputModePreferred = 2

	outputSubpixelUnknown = 0
	outputTransformNormal = 0
)

// Output is a wl_output global describing one virtual screen.
type Output struct {
	display     *Display
	global      *Global
	name        string
	description string
	width       int
	height      int
	refresh     int
	enabled     bool
	resources   []*Resource
}

// NewOutput advertises a wl_output. Its mode is sent once SetMode is
// called.
func NewOutput(d *Display, name, description string) *Output {
	o := &Output{display: d, name: name, description: description}
	o.global = d.AddGlobal("wl_output", 4, o.bind)
	d.outputs = append(d.outputs, o)
	return o
}

func (o *Output) Name() string { return o.name }

// Mode returns the current size and refresh rate in mHz.
func (o *Output) Mode() (width, height, refresh int) {
	return o.width, o.height, o.refresh
}

func (o *Output) Enabled() bool { return o.enabled }

func (o *Output) bind(c *Client, id, version uint32) error {
	r, err := c.NewResource(id, "wl_output", version, HandlerFunc(func(r *Resource, opcode uint16, _ *wire.Decoder) error {
		if opcode != outputRequestRelease {
			return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
		}
		r.Destroy()
		return nil
	}))
	if err != nil {
		return err
	}
	o.resources = append(o.resources, r)
	r.OnDestroy(func() {
		for i, other := range o.resources {
			if other == r {
				o.resources = append(o.resources[:i], o.resources[i+1:]...)
				break
			}
		}
	})
	o.sendState(r)
	return nil
}

func (o *Output) sendState(r *Resource) {
	r.Post(r.NewEvent(outputEventGeometry).
		PutInt32(0).PutInt32(0).
		PutInt32(0).PutInt32(0).
		PutInt32(outputSubpixelUnknown).
		PutString("wayembed").
		PutString(o.name).
		PutInt32(outputTransformNormal))
	if o.enabled {
		r.Post(r.NewEvent(outputEventMode).
			PutUint32(outputModeCurrent | outputModePreferred).
			PutInt32(int32(o.width)).
			PutInt32(int32(o.height)).
			PutInt32(int32(o.refresh)))
	}
	if r.version >= 2 {
		r.Post(r.NewEvent(outputEventScale).PutInt32(1))
	}
	if r.version >= 4 {
		r.Post(r.NewEvent(outputEventName).PutString(o.name))
		r.Post(r.NewEvent(outputEventDescription).PutString(o.description))
	}
	if r.version >= 2 {
		r.Post(r.NewEvent(outputEventDone))
	}
}

// SetMode enables the output at the given size and announces it to every
// bound client.
func (o *Output) SetMode(width, height, refreshMHz int) {
	if o.enabled && o.width == width && o.height == height && o.refresh == refreshMHz {
		return
	}
	o.enabled = true
	o.width, o.height, o.refresh = width, height, refreshMHz
	for _, r := range o.resources {
		o.sendState(r)
	}
}

func (o *Output) enter(s *Surface) {
	for _, r := range o.resources {
		if r.client == s.res.client {
			s.res.Post(s.res.NewEvent(surfaceEventEnter).PutObject(r.id))
		}
	}
}

// Destroy withdraws the global.
func (o *Output) Destroy() {
	o.display.RemoveGlobal(o.global)
	for i, other := range o.display.outputs {
		if other == o {
			o.display.outputs = append(o.display.outputs[:i], o.display.outputs[i+1:]...)
			break
		}
	}
}
