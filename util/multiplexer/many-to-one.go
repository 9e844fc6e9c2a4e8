// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package multiplexer

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("multiplexer has been closed")

// A many to one multiplexer
// Any number of goroutines may Send, one receiver drains the channel.
// Sending after Close returns ErrClosed instead of panicking on the closed channel
type ManyToOne[T any] struct {
	lock     sync.RWMutex
	outbound chan T
	done     chan struct{}
	once     sync.Once
	closed   bool
}

// NewManyToOne creates a new ManyToOne multiplexer with room for size
// queued messages
func NewManyToOne[T any](size int) *ManyToOne[T] {
	return &ManyToOne[T]{
		outbound: make(chan T, size),
		done:     make(chan struct{}),
	}
}

// Receiver is the channel all messages arrive on. It is closed by Close
func (m *ManyToOne[T]) Receiver() <-chan T {
	return m.outbound
}

// Send a message to the receiver
// Blocks while the queue is full, a concurrent Close unblocks it with ErrClosed
func (m *ManyToOne[T]) Send(msg T) error {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.closed {
		return ErrClosed
	}
	select {
	case m.outbound <- msg:
		return nil
	case <-m.done:
		return ErrClosed
	}
}

// TrySend is Send without blocking. It reports whether the message was queued
func (m *ManyToOne[T]) TrySend(msg T) (bool, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	select {
	case m.outbound <- msg:
		return true, nil
	default:
		return false, nil
	}
}

// Closes the channel and marks the plexer as closed
// Closing twice is a no-op
func (m *ManyToOne[T]) Close() {
	// Wake blocked senders first so they give up the read lock
	m.once.Do(func() { close(m.done) })
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.outbound)
}
