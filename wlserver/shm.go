package wlserver

import (
	"fmt"
	"runtime/debug"

	"github.com/mstarongithub/wayembed/pixel"
	"github.com/mstarongithub/wayembed/wire"
	"golang.org/x/sys/unix"
)

const (
	shmRequestCreatePool = 0
	shmEventFormat       = 0

	shmErrorInvalidFormat = 0
	shmErrorInvalidStride = 1
	shmErrorInvalidFd     = 2

	poolRequestCreateBuffer = 0
	poolRequestDestroy      = 1
	poolRequestResize       = 2

	bufferRequestDestroy = 0
	bufferEventRelease   = 0
)

// shmPool is the server side of a wl_shm_pool. The mapping outlives the
// protocol object while buffers still reference it.
type shmPool struct {
	fd        int
	data      []byte
	refs      int
	destroyed bool
}

func (p *shmPool) ref() { p.refs++ }

func (p *shmPool) unref() {
	p.refs--
	if p.refs > 0 {
		return
	}
	if p.data != nil {
		unix.Munmap(p.data)
		p.data = nil
	}
	if p.fd >= 0 {
		unix.Close(p.fd)
		p.fd = -1
	}
}

// Buffer is a wl_buffer backed by shared memory.
type Buffer struct {
	res    *Resource
	pool   *shmPool
	offset int
	width  int
	height int
	stride int
	format pixel.Format
}

func (b *Buffer) Width() int           { return b.width }
func (b *Buffer) Height() int          { return b.height }
func (b *Buffer) Format() pixel.Format { return b.format }

// Release tells the client the server no longer reads the buffer.
func (b *Buffer) Release() {
	b.res.Post(b.res.NewEvent(bufferEventRelease))
}

// Snapshot copies the buffer contents. A client that shrank the backing
// file under us causes SIGBUS on access; that is turned into an error.
func (b *Buffer) Snapshot() (img *pixel.Image, err error) {
	if b.pool.data == nil {
		return nil, ErrBufferAccess
	}
	img = &pixel.Image{
		Format: b.format,
		Width:  b.width,
		Height: b.height,
		Stride: b.stride,
		Pix:    make([]byte, b.stride*b.height),
	}
	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("%w: %v", ErrBufferAccess, r)
		}
	}()
	copy(img.Pix, b.pool.data[b.offset:b.offset+b.stride*b.height])
	return img, nil
}

func bufferFromResource(r *Resource) *Buffer {
	if r == nil {
		return nil
	}
	if h, ok := r.handler.(*bufferHandler); ok {
		return h.buf
	}
	return nil
}

type bufferHandler struct {
	buf *Buffer
}

func (h *bufferHandler) HandleRequest(r *Resource, opcode uint16, _ *wire.Decoder) error {
	if opcode != bufferRequestDestroy {
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	r.Destroy()
	return nil
}

// Shm is the wl_shm global.
type Shm struct {
	global *Global
}

// NewShm advertises wl_shm with every format pixel can read.
func NewShm(d *Display) *Shm {
	s := &Shm{}
	s.global = d.AddGlobal("wl_shm", 1, func(c *Client, id, version uint32) error {
		r, err := c.NewResource(id, "wl_shm", version, HandlerFunc(s.handle))
		if err != nil {
			return err
		}
		for _, code := range pixel.ShmFormats {
			r.Post(r.NewEvent(shmEventFormat).PutUint32(code))
		}
		return nil
	})
	return s
}

func (s *Shm) handle(r *Resource, opcode uint16, d *wire.Decoder) error {
	if opcode != shmRequestCreatePool {
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	id := d.NewID()
	fd := d.Fd()
	size := d.Int32()
	if d.Err() != nil {
		if fd >= 0 {
			unix.Close(fd)
		}
		return nil
	}
	if size <= 0 {
		unix.Close(fd)
		return protoErr(r, shmErrorInvalidStride, "invalid size (%d)", size)
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return protoErr(r, shmErrorInvalidFd, "failed mmap fd %d: %v", fd, err)
	}
	pool := &shmPool{fd: fd, data: data, refs: 1}
	res, err := r.client.NewResource(id, "wl_shm_pool", r.version, HandlerFunc(func(pr *Resource, op uint16, pd *wire.Decoder) error {
		return handlePool(pool, pr, op, pd)
	}))
	if err != nil {
		pool.unref()
		return err
	}
	res.OnDestroy(func() {
		pool.destroyed = true
		pool.unref()
	})
	return nil
}

func handlePool(pool *shmPool, r *Resource, opcode uint16, d *wire.Decoder) error {
	switch opcode {
	case poolRequestCreateBuffer:
		id := d.NewID()
		offset := d.Int32()
		width := d.Int32()
		height := d.Int32()
		stride := d.Int32()
		code := d.Uint32()
		if d.Err() != nil {
			return nil
		}
		format, ok := pixel.FromShm(code)
		if !ok {
			return protoErr(r, shmErrorInvalidFormat, "invalid format 0x%x", code)
		}
		bpp := format.BitsPerPixel() / 8
		if offset < 0 || width <= 0 || height <= 0 || stride < width*int32(bpp) ||
			int64(offset)+int64(stride)*int64(height) > int64(len(pool.data)) {
			return protoErr(r, shmErrorInvalidStride, "invalid width, height or stride (%dx%d, %d)", width, height, stride)
		}
		buf := &Buffer{
			pool:   pool,
			offset: int(offset),
			width:  int(width),
			height: int(height),
			stride: int(stride),
			format: format,
		}
		res, err := r.client.NewResource(id, "wl_buffer", 1, &bufferHandler{buf: buf})
		if err != nil {
			return err
		}
		buf.res = res
		pool.ref()
		res.OnDestroy(pool.unref)
	case poolRequestDestroy:
		r.Destroy()
	case poolRequestResize:
		size := d.Int32()
		if d.Err() != nil {
			return nil
		}
		if int(size) < len(pool.data) {
			return protoErr(r, shmErrorInvalidStride, "shrinking pool invalid")
		}
		data, err := unix.Mmap(pool.fd, 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			return protoErr(r, shmErrorInvalidFd, "failed remap: %v", err)
		}
		unix.Munmap(pool.data)
		pool.data = data
	default:
		return protoErr(r, displayErrorInvalidMethod, "invalid opcode %d", opcode)
	}
	return nil
}
