// Package serial provides the serial port transport of an oi.Link.
package serial

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	bugst "go.bug.st/serial"

	"github.com/robotalks/oilink/pkg/oi"
)

// DefaultDevice is the UART exposed on the Raspberry Pi GPIO header.
const DefaultDevice = "/dev/ttyAMA0"

// DefaultReadTimeout is how long a read on the port waits for bytes.
const DefaultReadTimeout = 100 * time.Millisecond

// Config defines the serial port settings.
// Data format is always 8 data bits, no parity, 1 stop bit and no flow control.
type Config struct {
	Device      string
	BaudRate    int
	ReadTimeout time.Duration
}

// Port is the subset of go.bug.st/serial.Port used by Transport.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Drain() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Transport implements oi.Transport over a serial port.
type Transport struct {
	port    Port
	handler oi.ReceiveHandler
	closed  int32
	doneCh  chan struct{}
	err     error
	lock    sync.Mutex
}

// ListPorts enumerates the serial ports on the host.
func ListPorts() ([]string, error) {
	return bugst.GetPortsList()
}

// Open implements oi.Opener.
func (c Config) Open(handler oi.ReceiveHandler) (oi.Transport, error) {
	device, baudRate := c.Device, c.BaudRate
	if device == "" {
		device = DefaultDevice
	}
	if baudRate == 0 {
		baudRate = oi.DefaultBaudRate
	}
	mode := &bugst.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	glog.V(1).Infof("open %s: %d 8N1", device, baudRate)
	port, err := bugst.Open(device, mode)
	if err != nil {
		return nil, &oi.TransportOpenError{Device: device, Err: err}
	}
	t, err := NewTransport(port, handler, c.ReadTimeout)
	if err != nil {
		port.Close()
		return nil, &oi.TransportOpenError{Device: device, Err: err}
	}
	return t, nil
}

// NewTransport wraps an open port and starts delivering received bytes
// to handler.
func NewTransport(port Port, handler oi.ReceiveHandler, readTimeout time.Duration) (*Transport, error) {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		return nil, err
	}
	t := &Transport{
		port:    port,
		handler: handler,
		doneCh:  make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// Write implements oi.Transport.
func (t *Transport) Write(p []byte) (int, error) {
	if t.IsClosed() {
		return 0, oi.ErrClosed
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.port.Write(p)
}

// Flush implements oi.Transport.
func (t *Transport) Flush() error {
	if t.IsClosed() {
		return oi.ErrClosed
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.port.Drain()
}

// IsClosed implements oi.Transport.
func (t *Transport) IsClosed() bool {
	return atomic.LoadInt32(&t.closed) != 0
}

// Done implements oi.Transport. It's closed when the reader stops.
func (t *Transport) Done() <-chan struct{} {
	return t.doneCh
}

// Err implements oi.Transport.
func (t *Transport) Err() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.err
}

// Close implements oi.Transport. It waits for the reader to stop.
func (t *Transport) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return nil
	}
	// the reader wakes up within the read timeout.
	<-t.doneCh
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.port.Close()
}

func (t *Transport) readLoop() {
	defer close(t.doneCh)
	buf := make([]byte, 64)
	for !t.IsClosed() {
		n, err := t.port.Read(buf)
		if n > 0 {
			t.handler(buf[:n])
		}
		if err != nil {
			if !t.IsClosed() {
				var portErr *bugst.PortError
				if errors.As(err, &portErr) && portErr.Code() == bugst.PortClosed {
					glog.Warning("serial port closed")
				} else {
					glog.Errorf("serial read error: %v", err)
				}
				t.lock.Lock()
				t.err = err
				t.lock.Unlock()
			}
			return
		}
	}
}
