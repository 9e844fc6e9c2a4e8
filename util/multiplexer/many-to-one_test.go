package multiplexer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManyToOne(t *testing.T) {
	m := NewManyToOne[int](16)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, m.Send(i))
		}(i)
	}
	wg.Wait()
	m.Close()

	sum := 0
	for v := range m.Receiver() {
		sum += v
	}
	assert.Equal(t, 0+1+2+3, sum)
}

func TestManyToOneClosed(t *testing.T) {
	m := NewManyToOne[string](1)
	m.Close()
	m.Close()
	assert.ErrorIs(t, m.Send("x"), ErrClosed)
	_, err := m.TrySend("x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTrySendFull(t *testing.T) {
	m := NewManyToOne[int](1)
	ok, err := m.TrySend(1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.TrySend(2)
	require.NoError(t, err)
	assert.False(t, ok, "the queue is full")
	assert.Equal(t, 1, <-m.Receiver())
}

func TestCloseUnblocksSend(t *testing.T) {
	m := NewManyToOne[int](1)
	require.NoError(t, m.Send(1))

	sent := make(chan error, 1)
	go func() { sent <- m.Send(2) }()
	// Give the sender time to block on the full queue
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		m.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind a waiting Send")
	}
	select {
	case err := <-sent:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Send still blocked after Close")
	}

	var got []int
	for v := range m.Receiver() {
		got = append(got, v)
	}
	assert.Equal(t, []int{1}, got, "queued messages survive Close")
}
