package serial

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/oilink/pkg/oi"
)

type fakePort struct {
	readCh  chan []byte
	timeout time.Duration
	written bytes.Buffer
	onWrite func(p []byte)
	drained int
	closed  bool
	lock    sync.Mutex
}

func newFakePort() *fakePort {
	return &fakePort{readCh: make(chan []byte, 4)}
}

func (p *fakePort) Read(buf []byte) (int, error) {
	select {
	case data, ok := <-p.readCh:
		if !ok {
			return 0, io.EOF
		}
		return copy(buf, data), nil
	case <-time.After(p.timeout):
		return 0, nil
	}
}

func (p *fakePort) Write(buf []byte) (int, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.onWrite != nil {
		p.onWrite(buf)
	}
	return p.written.Write(buf)
}

func (p *fakePort) Drain() error {
	p.lock.Lock()
	p.drained++
	p.lock.Unlock()
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func (p *fakePort) Close() error {
	p.lock.Lock()
	p.closed = true
	p.lock.Unlock()
	return nil
}

func TestTransportDeliversBursts(t *testing.T) {
	port := newFakePort()
	recvCh := make(chan []byte, 4)
	tr, err := NewTransport(port, func(p []byte) {
		recvCh <- append([]byte(nil), p...)
	}, 10*time.Millisecond)
	require.NoError(t, err)
	defer tr.Close()

	port.readCh <- []byte{1, 2, 3}
	port.readCh <- []byte{4}
	for _, expected := range [][]byte{{1, 2, 3}, {4}} {
		select {
		case p := <-recvCh:
			require.Equal(t, expected, p)
		case <-time.After(500 * time.Millisecond):
			t.Fatal("receive timeout")
		}
	}
}

func TestTransportWriteFlushClose(t *testing.T) {
	port := newFakePort()
	tr, err := NewTransport(port, func([]byte) {}, 10*time.Millisecond)
	require.NoError(t, err)

	n, err := tr.Write([]byte{128, 142, 35})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, tr.Flush())
	require.Equal(t, []byte{128, 142, 35}, port.written.Bytes())
	require.Equal(t, 1, port.drained)

	require.False(t, tr.IsClosed())
	require.NoError(t, tr.Close())
	require.True(t, tr.IsClosed())
	require.True(t, port.closed)
	require.NoError(t, tr.Close())

	_, err = tr.Write([]byte{1})
	require.Equal(t, oi.ErrClosed, err)
	require.Equal(t, oi.ErrClosed, tr.Flush())
}

func TestTransportStopsOnReadError(t *testing.T) {
	port := newFakePort()
	tr, err := NewTransport(port, func([]byte) {}, 10*time.Millisecond)
	require.NoError(t, err)
	close(port.readCh)
	select {
	case <-tr.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("reader not stopped")
	}
	require.Equal(t, io.EOF, tr.Err())
	require.NoError(t, tr.Close())
	require.Equal(t, io.EOF, tr.Err())
}

func TestTransportCloseIsNotAnError(t *testing.T) {
	port := newFakePort()
	tr, err := NewTransport(port, func([]byte) {}, 10*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	select {
	case <-tr.Done():
	default:
		t.Fatal("done not closed")
	}
	require.NoError(t, tr.Err())
}

func TestUnpluggedDeviceClosesLink(t *testing.T) {
	port := newFakePort()
	// the robot answers every mode query with passive mode.
	port.onWrite = func(p []byte) {
		if len(p) == 2 && p[0] == oi.CmdSensors {
			port.readCh <- []byte{oi.ModePassive}
		}
	}
	link := oi.NewLink(oi.OpenFunc(func(h oi.ReceiveHandler) (oi.Transport, error) {
		return NewTransport(port, h, 10*time.Millisecond)
	}))
	link.QueryInterval = time.Millisecond
	require.NoError(t, link.Connect(context.Background()))
	defer link.Close()

	close(port.readCh)
	errCh := make(chan error, 1)
	go func() {
		_, err := link.ReadUnsignedByte(context.Background())
		errCh <- err
	}()
	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("read blocked on a dead link")
	}
	require.Eventually(t, func() bool {
		return link.State() == oi.StateClosed
	}, time.Second, time.Millisecond)
	require.True(t, errors.Is(link.Err(), io.EOF))
	_, err := link.ReadUnsignedByte(context.Background())
	require.True(t, errors.Is(err, io.EOF))
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Config{Device: "/dev/oilink-does-not-exist"}.Open(func([]byte) {})
	require.Error(t, err)
	openErr, ok := err.(*oi.TransportOpenError)
	require.True(t, ok)
	require.Equal(t, "/dev/oilink-does-not-exist", openErr.Device)
}
