package oi

import (
	"context"
	"sync"
)

// DefaultBufferSize is the capacity of the receive buffer of a Link.
const DefaultBufferSize = 128

// ByteBuffer is a bounded FIFO of bytes between one producer and one consumer.
// Push blocks while the buffer is full and Pop blocks while it's empty.
// After Close, bytes already queued can still be popped; once drained,
// Pop returns ErrChannelClosed.
type ByteBuffer struct {
	data  []byte
	head  int
	count int
	lock  sync.Mutex

	// notEmpty/notFull hold at most one pending wake-up.
	notEmpty chan struct{}
	notFull  chan struct{}
	closeCh  chan struct{}
	closed   bool
}

// NewByteBuffer creates a ByteBuffer with fixed capacity.
func NewByteBuffer(capacity int) *ByteBuffer {
	if capacity <= 0 {
		panic("oi: buffer capacity must be positive")
	}
	return &ByteBuffer{
		data:     make([]byte, capacity),
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
	}
}

// Cap returns the capacity.
func (b *ByteBuffer) Cap() int {
	return len(b.data)
}

// Len returns the number of queued bytes.
func (b *ByteBuffer) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.count
}

// Push appends one byte, blocking while the buffer is full.
func (b *ByteBuffer) Push(v byte) error {
	for {
		b.lock.Lock()
		if b.closed {
			b.lock.Unlock()
			return ErrChannelClosed
		}
		if b.count < len(b.data) {
			b.data[(b.head+b.count)%len(b.data)] = v
			b.count++
			b.lock.Unlock()
			wake(b.notEmpty)
			return nil
		}
		b.lock.Unlock()
		select {
		case <-b.notFull:
		case <-b.closeCh:
		}
	}
}

// PushAll appends a burst of bytes in order.
func (b *ByteBuffer) PushAll(p []byte) error {
	for _, v := range p {
		if err := b.Push(v); err != nil {
			return err
		}
	}
	return nil
}

// Pop removes the oldest byte, blocking until one is available,
// the buffer is closed or ctx is done.
func (b *ByteBuffer) Pop(ctx context.Context) (byte, error) {
	for {
		b.lock.Lock()
		if b.count > 0 {
			v := b.data[b.head]
			b.head = (b.head + 1) % len(b.data)
			b.count--
			b.lock.Unlock()
			wake(b.notFull)
			return v, nil
		}
		closed := b.closed
		b.lock.Unlock()
		if closed {
			return 0, ErrChannelClosed
		}
		select {
		case <-b.notEmpty:
		case <-b.closeCh:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Reset discards all queued bytes and returns how many were dropped.
func (b *ByteBuffer) Reset() int {
	b.lock.Lock()
	n := b.count
	b.head, b.count = 0, 0
	b.lock.Unlock()
	if n > 0 {
		wake(b.notFull)
	}
	return n
}

// Close wakes up all waiters. It's safe to call more than once.
func (b *ByteBuffer) Close() {
	b.lock.Lock()
	defer b.lock.Unlock()
	if !b.closed {
		b.closed = true
		close(b.closeCh)
	}
}

func wake(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
