package wlserver

import (
	"github.com/mstarongithub/wayembed/wire"
)

const (
	dataDeviceManagerRequestCreateDataSource = 0
	dataDeviceManagerRequestGetDataDevice    = 1

	dataSourceRequestOffer      = 0
	dataSourceRequestDestroy    = 1
	dataSourceRequestSetActions = 2

	dataSourceEventCancelled = 2

	dataDeviceRequestStartDrag    = 0
	dataDeviceRequestSetSelection = 1
	dataDeviceRequestRelease      = 2
)

// DataSource is a client clipboard offer. The selection is only recorded;
// it is never offered to other clients.
type DataSource struct {
	res       *Resource
	mimeTypes []string
}

func (ds *DataSource) MimeTypes() []string { return ds.mimeTypes }
func (ds *DataSource) Client() *Client     { return ds.res.client }

type dataSourceHandler struct {
	ds *DataSource
}

func (h dataSourceHandler) HandleRequest(r *Resource, opcode uint16, d *wire.Decoder) error {
	switch opcode {
	case dataSourceRequestOffer:
		mime := d.String()
		if d.Err() == nil {
			h.ds.mimeTypes = append(h.ds.mimeTypes, mime)
		}
	case dataSourceRequestDestroy:
		r.Destroy()
	case dataSourceRequestSetActions:
		d.Uint32()
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}

// NewDataDeviceManager advertises wl_data_device_manager for seat.
func NewDataDeviceManager(d *Display, seat *Seat) *Global {
	return d.AddGlobal("wl_data_device_manager", 3, func(c *Client, id, version uint32) error {
		_, err := c.NewResource(id, "wl_data_device_manager", version, HandlerFunc(func(r *Resource, opcode uint16, dec *wire.Decoder) error {
			return seat.handleDataDeviceManager(r, opcode, dec)
		}))
		return err
	})
}

func (s *Seat) handleDataDeviceManager(r *Resource, opcode uint16, d *wire.Decoder) error {
	switch opcode {
	case dataDeviceManagerRequestCreateDataSource:
		id := d.NewID()
		if d.Err() != nil {
			return nil
		}
		ds := &DataSource{}
		res, err := r.client.NewResource(id, "wl_data_source", r.version, dataSourceHandler{ds: ds})
		if err != nil {
			return err
		}
		ds.res = res
		res.OnDestroy(func() {
			if s.selection == ds {
				s.selection = nil
			}
		})
	case dataDeviceManagerRequestGetDataDevice:
		id := d.NewID()
		d.Object()
		if d.Err() != nil {
			return nil
		}
		_, err := r.client.NewResource(id, "wl_data_device", r.version, HandlerFunc(s.handleDataDevice))
		return err
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}

func (s *Seat) handleDataDevice(r *Resource, opcode uint16, d *wire.Decoder) error {
	switch opcode {
	case dataDeviceRequestStartDrag:
		d.Object()
		d.Object()
		d.Object()
		d.Uint32()
		logf(LogImportanceDebug, "drag and drop is not supported")
	case dataDeviceRequestSetSelection:
		sourceID := d.Object()
		d.Uint32()
		if d.Err() != nil {
			return nil
		}
		var ds *DataSource
		if sourceID != 0 {
			ds = dataSourceFromResource(r.client.Object(sourceID))
			if ds == nil {
				return protoErr(r, displayErrorInvalidObject, "invalid data source %d", sourceID)
			}
		}
		s.setSelection(ds)
	case dataDeviceRequestRelease:
		r.Destroy()
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}

func dataSourceFromResource(r *Resource) *DataSource {
	if r == nil {
		return nil
	}
	if h, ok := r.handler.(dataSourceHandler); ok {
		return h.ds
	}
	return nil
}

func (s *Seat) setSelection(ds *DataSource) {
	if s.selection == ds {
		return
	}
	if old := s.selection; old != nil {
		old.res.Post(old.res.NewEvent(dataSourceEventCancelled))
	}
	s.selection = ds
	for _, fn := range s.selectionHandler {
		fn(ds)
	}
}
