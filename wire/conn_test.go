package wire

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	a, err := NewConn(fds[0])
	require.NoError(t, err)
	b, err := NewConn(fds[1])
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestMessageArguments(t *testing.T) {
	a, b := socketPair(t)

	m := NewMessage(3, 7).
		PutUint32(42).
		PutInt32(-5).
		PutFixed(FixedFromFloat(1.5)).
		PutString("wl_compositor").
		PutArray([]byte{1, 2, 3}).
		PutString("")
	require.NoError(t, a.Queue(m))
	require.NoError(t, a.Flush())
	assert.False(t, a.Pending())

	_, err := b.ReadAvailable()
	require.NoError(t, err)
	d, err := b.Next()
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Equal(t, uint32(3), d.ObjectID)
	assert.Equal(t, uint16(7), d.Opcode)
	assert.Equal(t, uint32(42), d.Uint32())
	assert.Equal(t, int32(-5), d.Int32())
	assert.Equal(t, 1.5, d.Fixed().Float())
	assert.Equal(t, "wl_compositor", d.String())
	assert.Equal(t, []byte{1, 2, 3}, d.Array())
	assert.Equal(t, "", d.String())
	require.NoError(t, d.Err())

	next, err := b.Next()
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestDecoderShortMessage(t *testing.T) {
	d := NewDecoder(1, 0, []byte{1, 0}, nil)
	assert.Equal(t, uint32(0), d.Uint32())
	assert.ErrorIs(t, d.Err(), ErrShortMessage)
	// sticky
	assert.Equal(t, "", d.String())
	assert.ErrorIs(t, d.Err(), ErrShortMessage)
}

func TestDecoderMissingFd(t *testing.T) {
	var fds []int
	d := NewDecoder(1, 0, nil, &fds)
	assert.Equal(t, -1, d.Fd())
	assert.ErrorIs(t, d.Err(), ErrMissingFd)
}

func TestFdPassing(t *testing.T) {
	a, b := socketPair(t)

	f, err := os.CreateTemp(t.TempDir(), "fd")
	require.NoError(t, err)
	_, err = f.WriteString("keymap")
	require.NoError(t, err)
	dup, err := unix.Dup(int(f.Fd()))
	require.NoError(t, err)
	f.Close()

	require.NoError(t, a.Queue(NewMessage(9, 1).PutUint32(1).PutFd(dup).PutUint32(6)))
	require.NoError(t, a.Flush())

	_, err = b.ReadAvailable()
	require.NoError(t, err)
	d, err := b.Next()
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, uint32(1), d.Uint32())
	fd := d.Fd()
	require.NoError(t, d.Err())
	defer unix.Close(fd)

	buf := make([]byte, 6)
	n, err := unix.Pread(fd, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "keymap", string(buf[:n]))
}

func TestPartialMessage(t *testing.T) {
	_, b := socketPair(t)
	b.in = []byte{1, 0, 0, 0, 0, 0, 12, 0, 5, 0}
	d, err := b.Next()
	require.NoError(t, err)
	assert.Nil(t, d)

	b.in = append(b.in, 0, 0)
	d, err = b.Next()
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, uint32(5), d.Uint32())
}

func TestBadSize(t *testing.T) {
	_, b := socketPair(t)
	b.in = []byte{1, 0, 0, 0, 0, 0, 4, 0}
	_, err := b.Next()
	assert.ErrorIs(t, err, ErrShortMessage)
}

func TestPeerHangup(t *testing.T) {
	a, b := socketPair(t)
	require.NoError(t, a.Close())
	_, err := b.ReadAvailable()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFixed(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{10.75, 10},
		{-3.5, -3},
	}
	for _, tt := range tests {
		f := FixedFromFloat(tt.in)
		assert.Equal(t, tt.want, f.Int())
		assert.InDelta(t, tt.in, f.Float(), 1.0/256)
	}
	assert.Equal(t, 7.0, FixedFromInt(7).Float())
}
