package wrappers

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderWrapper(t *testing.T) {
	r := NewReaderWrapper(strings.NewReader("abc"))
	buf := make([]byte, 2)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(buf[:n]))

	require.NoError(t, r.Close())
	_, err = r.Read(buf)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWriterWrapper(t *testing.T) {
	var out bytes.Buffer
	w := NewWriterWrapper(&out)
	_, err := w.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	_, err = w.Write([]byte("more"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, "hi", out.String())
}
