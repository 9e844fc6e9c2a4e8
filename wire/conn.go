package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// maxFdsPerSend mirrors libwayland's MAX_FDS_OUT.
const maxFdsPerSend = 28

const readChunk = 4096

// Conn is a non-blocking Wayland connection on a unix stream socket.
// It is not safe for concurrent use.
type Conn struct {
	fd     int
	in     []byte
	inFds  []int
	out    []byte
	outFds []int
	closed bool
}

// NewConn takes ownership of fd and puts it in non-blocking mode.
func NewConn(fd int) (*Conn, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("setting socket non-blocking: %w", err)
	}
	return &Conn{fd: fd}, nil
}

func (c *Conn) Fd() int {
	return c.fd
}

// ReadAvailable drains everything the socket has buffered. It returns
// io.EOF once the peer hung up and nothing was read.
func (c *Conn) ReadAvailable() (int, error) {
	if c.closed {
		return 0, io.EOF
	}
	total := 0
	buf := make([]byte, readChunk)
	oob := make([]byte, unix.CmsgSpace(maxFdsPerSend*4))
	for {
		n, oobn, _, _, err := unix.Recvmsg(c.fd, buf, oob, unix.MSG_DONTWAIT|unix.MSG_CMSG_CLOEXEC)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				return total, nil
			}
			return total, fmt.Errorf("recvmsg: %w", err)
		}
		if oobn > 0 {
			fds, err := parseRights(oob[:oobn])
			if err != nil {
				return total, err
			}
			c.inFds = append(c.inFds, fds...)
		}
		if n == 0 {
			if total == 0 {
				return 0, io.EOF
			}
			return total, nil
		}
		c.in = append(c.in, buf[:n]...)
		total += n
	}
}

func parseRights(oob []byte) ([]int, error) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("parsing control message: %w", err)
	}
	var fds []int
	for i := range msgs {
		rights, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			continue
		}
		fds = append(fds, rights...)
	}
	return fds, nil
}

// Next pops the next complete message, or returns nil when the buffer
// holds only a partial one.
func (c *Conn) Next() (*Decoder, error) {
	if len(c.in) < HeaderSize {
		return nil, nil
	}
	id := binary.LittleEndian.Uint32(c.in)
	word := binary.LittleEndian.Uint32(c.in[4:])
	size := int(word >> 16)
	opcode := uint16(word & 0xffff)
	if size < HeaderSize || size%4 != 0 {
		return nil, fmt.Errorf("%w: bad size %d for object %d", ErrShortMessage, size, id)
	}
	if len(c.in) < size {
		return nil, nil
	}
	body := make([]byte, size-HeaderSize)
	copy(body, c.in[HeaderSize:size])
	c.in = c.in[size:]
	return NewDecoder(id, opcode, body, &c.inFds), nil
}

// Queue appends m to the outgoing buffer. Nothing is written until Flush.
func (c *Conn) Queue(m *Message) error {
	if c.closed {
		closeFds(m.fds)
		return io.ErrClosedPipe
	}
	out, err := m.Encode(c.out)
	if err != nil {
		closeFds(m.fds)
		return err
	}
	c.out = out
	c.outFds = append(c.outFds, m.fds...)
	return nil
}

// Pending reports whether queued data is waiting to be flushed.
func (c *Conn) Pending() bool {
	return len(c.out) > 0
}

// Flush writes as much of the outgoing buffer as the socket accepts.
// A full socket buffer is not an error; the rest stays queued.
func (c *Conn) Flush() error {
	for len(c.out) > 0 && !c.closed {
		var oob []byte
		nfds := len(c.outFds)
		if nfds > maxFdsPerSend {
			nfds = maxFdsPerSend
		}
		if nfds > 0 {
			oob = unix.UnixRights(c.outFds[:nfds]...)
		}
		chunk := c.out
		if nfds > 0 && len(c.outFds) > nfds {
			// remaining fds ride along with the next write
			chunk = c.out[:min(len(c.out), readChunk)]
		}
		n, err := unix.SendmsgN(c.fd, chunk, oob, nil, unix.MSG_DONTWAIT|unix.MSG_NOSIGNAL)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				return nil
			}
			return fmt.Errorf("sendmsg: %w", err)
		}
		if nfds > 0 {
			closeFds(c.outFds[:nfds])
			c.outFds = c.outFds[nfds:]
		}
		c.out = c.out[n:]
	}
	return nil
}

// Close releases the socket and any descriptors still owned by the
// connection.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	closeFds(c.inFds)
	closeFds(c.outFds)
	c.inFds, c.outFds = nil, nil
	c.in, c.out = nil, nil
	return unix.Close(c.fd)
}

func closeFds(fds []int) {
	for _, fd := range fds {
		if fd >= 0 {
			unix.Close(fd)
		}
	}
}
