// Package wrappers shields shared streams like stdin and stdout from
// being closed by whoever they are handed to.
package wrappers

import (
	"errors"
	"io"
	"sync/atomic"
)

var ErrClosed = errors.New("closed")

// ReaderWrapper implements repl.ReadCloser. Close only detaches the
// wrapper, the wrapped reader stays open.
type ReaderWrapper struct {
	isClosed atomic.Bool
	wrapped  io.Reader
}

func NewReaderWrapper(wraps io.Reader) *ReaderWrapper {
	return &ReaderWrapper{wrapped: wraps}
}

func (r *ReaderWrapper) Close() error {
	r.isClosed.Store(true)
	return nil
}

func (r *ReaderWrapper) Read(p []byte) (int, error) {
	if r.isClosed.Load() {
		return 0, ErrClosed
	}
	return r.wrapped.Read(p)
}

// WriterWrapper is the io.WriteCloser counterpart of ReaderWrapper.
type WriterWrapper struct {
	isClosed atomic.Bool
	wrapped  io.Writer
}

func NewWriterWrapper(wraps io.Writer) *WriterWrapper {
	return &WriterWrapper{wrapped: wraps}
}

func (w *WriterWrapper) Close() error {
	w.isClosed.Store(true)
	return nil
}

func (w *WriterWrapper) Write(p []byte) (int, error) {
	if w.isClosed.Load() {
		return 0, ErrClosed
	}
	return w.wrapped.Write(p)
}
