// Package wire implements the Wayland wire format: message framing,
// argument encoding and fd passing over a unix socket.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// HeaderSize is the size of the object id + size/opcode header.
const HeaderSize = 8

// MaxMessageSize is the largest message the size field can describe.
const MaxMessageSize = 0xffff

var (
	ErrShortMessage = errors.New("wire: message too short")
	ErrMissingFd    = errors.New("wire: message references a file descriptor that was not received")
	ErrTooLarge     = errors.New("wire: message too large")
)

// Fixed is a signed 24.8 fixed-point number.
type Fixed int32

// FixedFromFloat rounds to the nearest 1/256.
func FixedFromFloat(f float64) Fixed {
	return Fixed(int32(math.Round(f * 256)))
}

func FixedFromInt(i int) Fixed {
	return Fixed(int32(i) << 8)
}

func (f Fixed) Float() float64 {
	return float64(f) / 256
}

func (f Fixed) Int() int {
	return int(int32(f) / 256)
}

// Message is an outgoing message under construction.
type Message struct {
	ObjectID uint32
	Opcode   uint16
	body     []byte
	fds      []int
}

// NewMessage starts a message for object id with the given opcode.
func NewMessage(id uint32, opcode uint16) *Message {
	return &Message{ObjectID: id, Opcode: opcode, body: make([]byte, 0, 32)}
}

func (m *Message) PutUint32(v uint32) *Message {
	m.body = binary.LittleEndian.AppendUint32(m.body, v)
	return m
}

func (m *Message) PutInt32(v int32) *Message {
	return m.PutUint32(uint32(v))
}

func (m *Message) PutFixed(v Fixed) *Message {
	return m.PutUint32(uint32(v))
}

// PutObject writes an object id, 0 meaning null.
func (m *Message) PutObject(id uint32) *Message {
	return m.PutUint32(id)
}

// PutString writes a NUL terminated, padded string.
func (m *Message) PutString(s string) *Message {
	m.PutUint32(uint32(len(s) + 1))
	m.body = append(m.body, s...)
	m.body = append(m.body, 0)
	m.pad()
	return m
}

// PutArray writes a length-prefixed, padded byte array.
func (m *Message) PutArray(b []byte) *Message {
	m.PutUint32(uint32(len(b)))
	m.body = append(m.body, b...)
	m.pad()
	return m
}

// PutFd queues fd to travel as ancillary data. Ownership passes to the
// message: the connection closes it once sent.
func (m *Message) PutFd(fd int) *Message {
	m.fds = append(m.fds, fd)
	return m
}

func (m *Message) pad() {
	for len(m.body)%4 != 0 {
		m.body = append(m.body, 0)
	}
}

// Size returns the encoded size including the header.
func (m *Message) Size() int {
	return HeaderSize + len(m.body)
}

// Fds returns the file descriptors attached to the message.
func (m *Message) Fds() []int {
	return m.fds
}

// Encode appends the framed message to dst.
func (m *Message) Encode(dst []byte) ([]byte, error) {
	size := m.Size()
	if size > MaxMessageSize {
		return dst, fmt.Errorf("%w: %d bytes for object %d opcode %d", ErrTooLarge, size, m.ObjectID, m.Opcode)
	}
	dst = binary.LittleEndian.AppendUint32(dst, m.ObjectID)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(size)<<16|uint32(m.Opcode))
	return append(dst, m.body...), nil
}

// Decoder reads the arguments of one incoming message. Errors are sticky:
// after the first failure every accessor returns the zero value and Err
// reports what went wrong.
type Decoder struct {
	ObjectID uint32
	Opcode   uint16
	body     []byte
	off      int
	fds      *[]int
	err      error
}

// NewDecoder wraps a message body. fds is the connection's queue of
// received descriptors; Fd consumes from its head.
func NewDecoder(id uint32, opcode uint16, body []byte, fds *[]int) *Decoder {
	return &Decoder{ObjectID: id, Opcode: opcode, body: body, fds: fds}
}

func (d *Decoder) Err() error {
	return d.err
}

func (d *Decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Decoder) Uint32() uint32 {
	if d.err != nil {
		return 0
	}
	if d.off+4 > len(d.body) {
		d.fail(fmt.Errorf("%w: object %d opcode %d", ErrShortMessage, d.ObjectID, d.Opcode))
		return 0
	}
	v := binary.LittleEndian.Uint32(d.body[d.off:])
	d.off += 4
	return v
}

func (d *Decoder) Int32() int32 {
	return int32(d.Uint32())
}

func (d *Decoder) Fixed() Fixed {
	return Fixed(d.Int32())
}

// Object reads an object id; 0 is a null reference.
func (d *Decoder) Object() uint32 {
	return d.Uint32()
}

// NewID reads the id of an object the client is creating.
func (d *Decoder) NewID() uint32 {
	return d.Uint32()
}

// String reads a string argument. A zero length is a null string and
// yields "".
func (d *Decoder) String() string {
	n := int(d.Uint32())
	if d.err != nil || n == 0 {
		return ""
	}
	padded := (n + 3) &^ 3
	if d.off+padded > len(d.body) {
		d.fail(fmt.Errorf("%w: string of %d bytes", ErrShortMessage, n))
		return ""
	}
	s := string(d.body[d.off : d.off+n-1])
	d.off += padded
	return s
}

func (d *Decoder) Array() []byte {
	n := int(d.Uint32())
	if d.err != nil {
		return nil
	}
	padded := (n + 3) &^ 3
	if d.off+padded > len(d.body) {
		d.fail(fmt.Errorf("%w: array of %d bytes", ErrShortMessage, n))
		return nil
	}
	b := make([]byte, n)
	copy(b, d.body[d.off:d.off+n])
	d.off += padded
	return b
}

// Fd takes ownership of the next received descriptor.
func (d *Decoder) Fd() int {
	if d.err != nil {
		return -1
	}
	if d.fds == nil || len(*d.fds) == 0 {
		d.fail(ErrMissingFd)
		return -1
	}
	fd := (*d.fds)[0]
	*d.fds = (*d.fds)[1:]
	return fd
}
