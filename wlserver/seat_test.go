package wlserver

import (
	"testing"

	"github.com/mstarongithub/wayembed/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestKeyboardKeymapAndRepeat(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.seat.SetKeymap("de"))
	assert.Error(t, s.seat.SetKeymap(`us"};`))

	c := s.connect(t)
	seat := c.bind("wl_seat", 7)
	kb := c.newID()
	c.send(wire.NewMessage(seat, seatRequestGetKeyboard).PutObject(kb))
	c.roundtrip()

	caps := c.take(seat, seatEventCapabilities)
	require.Len(t, caps, 1)
	assert.Equal(t, SeatCapabilityPointer|SeatCapabilityKeyboard, caps[0].Uint32())
	names := c.take(seat, seatEventName)
	require.Len(t, names, 1)
	assert.Equal(t, "seat0", names[0].String())

	keymaps := c.take(kb, keyboardEventKeymap)
	require.Len(t, keymaps, 1)
	assert.Equal(t, uint32(keymapFormatXkbV1), keymaps[0].Uint32())
	fd := keymaps[0].Fd()
	size := keymaps[0].Uint32()
	require.NoError(t, keymaps[0].Err())
	defer unix.Close(fd)

	buf := make([]byte, size)
	n, err := unix.Pread(fd, buf, 0)
	require.NoError(t, err)
	require.Equal(t, int(size), n)
	assert.Contains(t, string(buf), `include "pc+de+inet(evdev)"`)
	assert.Equal(t, byte(0), buf[size-1], "the keymap is NUL terminated")

	repeat := c.take(kb, keyboardEventRepeatInfo)
	require.Len(t, repeat, 1)
	assert.Equal(t, int32(25), repeat[0].Int32())
	assert.Equal(t, int32(600), repeat[0].Int32())
}

func TestOutputMode(t *testing.T) {
	s := newTestServer(t)
	out := NewOutput(s.display, "wayembed", "Embedded screen")
	out.SetMode(800, 600, 60000)
	c := s.connect(t)
	id := c.bind("wl_output", 4)
	c.roundtrip()

	modes := c.take(id, outputEventMode)
	require.Len(t, modes, 1)
	modes[0].Uint32()
	assert.Equal(t, int32(800), modes[0].Int32())
	assert.Equal(t, int32(600), modes[0].Int32())
	assert.Equal(t, int32(60000), modes[0].Int32())
	names := c.take(id, outputEventName)
	require.Len(t, names, 1)
	assert.Equal(t, "wayembed", names[0].String())
	assert.Len(t, c.take(id, outputEventDone), 1)

	out.SetMode(800, 600, 60000)
	c.roundtrip()
	assert.Empty(t, c.take(id, outputEventMode), "an unchanged mode is not re-sent")

	out.SetMode(1024, 768, 60000)
	c.roundtrip()
	modes = c.take(id, outputEventMode)
	require.Len(t, modes, 1)
	modes[0].Uint32()
	assert.Equal(t, int32(1024), modes[0].Int32())
	assert.Equal(t, int32(768), modes[0].Int32())
	w, h, refresh := out.Mode()
	assert.Equal(t, []int{1024, 768, 60000}, []int{w, h, refresh})
}

func TestPingPong(t *testing.T) {
	s := newTestServer(t)
	f := newToplevel(t, s)
	c := f.client

	s.xdg.Ping(f.server.Surface().Client())
	c.roundtrip()
	pings := c.take(f.wm, wmBaseEventPing)
	require.Len(t, pings, 1)
	serial := pings[0].Uint32()

	c.send(wire.NewMessage(f.wm, wmBaseRequestPong).PutUint32(serial))
	c.roundtrip()
	_, code := c.protocolError()
	assert.Equal(t, -1, code)
}

func TestSelection(t *testing.T) {
	s := newTestServer(t)
	NewDataDeviceManager(s.display, s.seat)
	var changes []*DataSource
	s.seat.OnSetSelection(func(ds *DataSource) { changes = append(changes, ds) })

	c := s.connect(t)
	seat := c.bind("wl_seat", 7)
	manager := c.bind("wl_data_device_manager", 3)
	device := c.newID()
	c.send(wire.NewMessage(manager, dataDeviceManagerRequestGetDataDevice).PutObject(device).PutObject(seat))

	newSource := func(mime string) uint32 {
		id := c.newID()
		c.send(wire.NewMessage(manager, dataDeviceManagerRequestCreateDataSource).PutObject(id))
		c.send(wire.NewMessage(id, dataSourceRequestOffer).PutString(mime))
		return id
	}

	first := newSource("text/plain")
	c.send(wire.NewMessage(device, dataDeviceRequestSetSelection).PutObject(first).PutUint32(1))
	c.roundtrip()
	require.NotNil(t, s.seat.Selection())
	assert.Equal(t, []string{"text/plain"}, s.seat.Selection().MimeTypes())
	require.Len(t, changes, 1)

	second := newSource("image/png")
	c.send(wire.NewMessage(device, dataDeviceRequestSetSelection).PutObject(second).PutUint32(2))
	c.roundtrip()
	assert.Equal(t, []string{"image/png"}, s.seat.Selection().MimeTypes())
	assert.Len(t, c.take(first, dataSourceEventCancelled), 1, "the replaced source is cancelled")

	c.send(wire.NewMessage(device, dataDeviceRequestSetSelection).PutObject(0).PutUint32(3))
	c.roundtrip()
	assert.Nil(t, s.seat.Selection())
	assert.Len(t, changes, 3)
	assert.Nil(t, changes[2])

	_, code := c.protocolError()
	assert.Equal(t, -1, code)
}
