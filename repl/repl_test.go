package repl

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func run(t *testing.T, input string, handler MessageHandler) (string, error) {
	var out bytes.Buffer
	r := NewRepl(io.NopCloser(strings.NewReader(input)), nopWriteCloser{&out})
	err := r.Run(handler)
	return out.String(), err
}

func TestRunEchoes(t *testing.T) {
	out, err := run(t, "a\nb\n", func(in string, _ *Repl) (string, error) {
		return strings.ToUpper(in), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "A\nB\n", out)
}

func TestRunQuit(t *testing.T) {
	out, err := run(t, "one\nquit\nnever\n", func(in string, _ *Repl) (string, error) {
		if in == "quit" {
			return "bye", ErrQuit
		}
		return in, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "one\nbye\n", out)
}

func TestRunReportsErrors(t *testing.T) {
	out, err := run(t, "x\ny\n", func(in string, _ *Repl) (string, error) {
		if in == "x" {
			return "", errors.New("bad x")
		}
		return in, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "error: bad x\ny\n", out)
}

func TestCommands(t *testing.T) {
	c := NewCommands()
	c.Register(Command{
		Name:    "add",
		Usage:   "a b",
		Help:    "Add two words",
		MinArgs: 2,
		Run: func(args []string, _ *Repl) (string, error) {
			return args[0] + "+" + args[1], nil
		},
	})

	res, err := c.Handle("  add 1   2 ", nil)
	require.NoError(t, err)
	assert.Equal(t, "1+2", res)

	_, err = c.Handle("add 1", nil)
	assert.EqualError(t, err, "usage: add a b")

	_, err = c.Handle("sub 1 2", nil)
	assert.ErrorContains(t, err, "unknown command")

	res, err = c.Handle("", nil)
	assert.NoError(t, err)
	assert.Empty(t, res)

	res, err = c.Handle("help", nil)
	require.NoError(t, err)
	lines := strings.Split(res, "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "add a b"))
	assert.True(t, strings.HasPrefix(lines[1], "help"))
}
