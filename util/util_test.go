package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnpack(t *testing.T) {
	var a, b, c string
	Unpack([]string{"x", "y"}, &a, &b, &c)
	assert.Equal(t, "x", a)
	assert.Equal(t, "y", b)
	assert.Empty(t, c)

	Unpack([]string{"1", "2", "3", "4"}, &a, &b)
	assert.Equal(t, "1", a)
	assert.Equal(t, "2", b)
}

func TestParseInts(t *testing.T) {
	got, err := ParseInts("1", "-20")
	require.NoError(t, err)
	assert.Equal(t, []int{1, -20}, got)

	_, err = ParseInts("1", "x")
	assert.EqualError(t, err, `argument 2: "x" is not a number`)
}

func TestParseFloats(t *testing.T) {
	got, err := ParseFloats("1.5", "-2")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2}, got)
	_, err = ParseFloats("")
	assert.Error(t, err)
}

func TestParseSwitch(t *testing.T) {
	for _, s := range []string{"on", "true", "yes", "1"} {
		v, err := ParseSwitch(s)
		require.NoError(t, err)
		assert.True(t, v, s)
	}
	v, err := ParseSwitch("off")
	require.NoError(t, err)
	assert.False(t, v)
	_, err = ParseSwitch("maybe")
	assert.Error(t, err)
}
