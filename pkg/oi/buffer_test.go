package oi

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestByteBufferFIFO(t *testing.T) {
	const total = 4096
	buf := NewByteBuffer(8)
	expected := make([]byte, total)
	rnd := rand.New(rand.NewSource(1))
	rnd.Read(expected)

	errCh := make(chan error, 1)
	go func() {
		for pos := 0; pos < total; {
			n := 1 + rnd.Intn(20)
			if pos+n > total {
				n = total - pos
			}
			if err := buf.PushAll(expected[pos : pos+n]); err != nil {
				errCh <- err
				return
			}
			pos += n
		}
		errCh <- nil
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < total; i++ {
		b, err := buf.Pop(ctx)
		require.NoError(t, err)
		require.Equalf(t, expected[i], b, "byte[%d] mismatch", i)
		require.True(t, buf.Len() <= buf.Cap())
	}
	require.NoError(t, <-errCh)
	require.Equal(t, 0, buf.Len())
}

func TestByteBufferBlocksWhenFull(t *testing.T) {
	buf := NewByteBuffer(4)
	require.NoError(t, buf.PushAll([]byte{1, 2, 3, 4}))
	require.Equal(t, 4, buf.Len())

	pushed := make(chan error, 1)
	go func() {
		pushed <- buf.Push(5)
	}()
	select {
	case <-pushed:
		t.Fatal("push on full buffer should block")
	case <-time.After(50 * time.Millisecond):
	}
	require.Equal(t, 4, buf.Len())

	b, err := buf.Pop(context.Background())
	require.NoError(t, err)
	require.Equal(t, byte(1), b)
	select {
	case err := <-pushed:
		require.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("push not woken up")
	}
	for _, expected := range []byte{2, 3, 4, 5} {
		b, err := buf.Pop(context.Background())
		require.NoError(t, err)
		require.Equal(t, expected, b)
	}
}

func TestByteBufferCloseUnblocksPop(t *testing.T) {
	buf := NewByteBuffer(4)
	popped := make(chan error, 1)
	go func() {
		_, err := buf.Pop(context.Background())
		popped <- err
	}()
	select {
	case <-popped:
		t.Fatal("pop on empty buffer should block")
	case <-time.After(20 * time.Millisecond):
	}
	buf.Close()
	select {
	case err := <-popped:
		require.Equal(t, ErrChannelClosed, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("pop not woken up by close")
	}
	buf.Close()
}

func TestByteBufferCloseUnblocksPush(t *testing.T) {
	buf := NewByteBuffer(1)
	require.NoError(t, buf.Push(1))
	pushed := make(chan error, 1)
	go func() {
		pushed <- buf.Push(2)
	}()
	time.Sleep(20 * time.Millisecond)
	buf.Close()
	select {
	case err := <-pushed:
		require.Equal(t, ErrChannelClosed, err)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("push not woken up by close")
	}

	// accepted bytes are not lost.
	b, err := buf.Pop(context.Background())
	require.NoError(t, err)
	require.Equal(t, byte(1), b)
	_, err = buf.Pop(context.Background())
	require.Equal(t, ErrChannelClosed, err)
}

func TestByteBufferPopContext(t *testing.T) {
	buf := NewByteBuffer(4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := buf.Pop(ctx)
	require.Equal(t, context.DeadlineExceeded, err)
}

func TestByteBufferReset(t *testing.T) {
	buf := NewByteBuffer(4)
	require.NoError(t, buf.PushAll([]byte{1, 2, 3}))
	require.Equal(t, 3, buf.Reset())
	require.Equal(t, 0, buf.Len())
	require.NoError(t, buf.PushAll([]byte{4, 5, 6, 7}))
	b, err := buf.Pop(context.Background())
	require.NoError(t, err)
	require.Equal(t, byte(4), b)
}
