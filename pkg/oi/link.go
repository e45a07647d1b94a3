package oi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/oilink/pkg/framework"
)

// Open Interface protocol constants.
const (
	// CmdStart starts the OI. It must be the first command sent.
	CmdStart byte = 128
	// CmdSensors requests a single sensor packet.
	CmdSensors byte = 142
	// SensorOIMode is the sensor packet ID of the OI mode.
	SensorOIMode byte = 35
	// ModePassive is the OI mode reported after CmdStart.
	ModePassive = 1
	// MaxCommandSize is the max number of bytes in a single command:
	// what can be sent in 15ms at 19200 baud.
	MaxCommandSize = 26
	// DefaultBaudRate is the baud rate of the serial link.
	DefaultBaudRate = 115200
)

// Defaults of connection timing.
const (
	DefaultQueryInterval = 100 * time.Millisecond
	DefaultRetryDelay    = 2500 * time.Millisecond
	DefaultMaxAttempts   = 2
)

// activeLinks is 1 while a Link holds the transport.
var activeLinks int32

// Stats are traffic counters of a Link.
type Stats struct {
	BytesSent     uint64 `json:"bytes_sent"`
	BytesReceived uint64 `json:"bytes_received"`
	Queries       uint64 `json:"queries"`
}

// Link is the connection to the robot's Open Interface.
// At most one Link can be connected in a process at a time.
type Link struct {
	// stats must stay first for 64-bit atomic alignment on 32-bit platforms.
	stats Stats

	Opener   Opener
	Notifier StateNotifier
	// QueryInterval is the delay between sending a mode query and
	// reading the reply during handshake.
	QueryInterval time.Duration
	// RetryDelay is the delay before another handshake attempt.
	RetryDelay time.Duration
	// MaxAttempts is the number of handshake attempts.
	MaxAttempts int
	// HandshakeTimeout bounds a single handshake attempt, 0 for no limit.
	HandshakeTimeout time.Duration

	debug     int32
	buf       *ByteBuffer
	transport Transport
	state     State
	err       error
	active    bool
	doneCh    chan struct{}
	lock      sync.RWMutex

	readLock  sync.Mutex
	writeLock sync.Mutex
	scratch   [MaxCommandSize]byte
}

// NewLink creates a Link which opens the transport using opener.
func NewLink(opener Opener) *Link {
	return &Link{
		Opener:        opener,
		QueryInterval: DefaultQueryInterval,
		RetryDelay:    DefaultRetryDelay,
		MaxAttempts:   DefaultMaxAttempts,
		buf:           NewByteBuffer(DefaultBufferSize),
		doneCh:        make(chan struct{}),
	}
}

// State gets the state.
func (l *Link) State() State {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.state
}

// Stats returns a snapshot of traffic counters.
func (l *Link) Stats() Stats {
	return Stats{
		BytesSent:     atomic.LoadUint64(&l.stats.BytesSent),
		BytesReceived: atomic.LoadUint64(&l.stats.BytesReceived),
		Queries:       atomic.LoadUint64(&l.stats.Queries),
	}
}

// Debug indicates whether trace lines are logged.
func (l *Link) Debug() bool {
	return atomic.LoadInt32(&l.debug) != 0
}

// SetDebug turns trace lines on or off.
func (l *Link) SetDebug(debug bool) {
	var v int32
	if debug {
		v = 1
	}
	atomic.StoreInt32(&l.debug, v)
}

// MaxCommandSize returns the max number of bytes WriteBytes accepts.
func (l *Link) MaxCommandSize() int {
	return MaxCommandSize
}

// Connect opens the transport and brings the robot into passive mode.
// Each handshake attempt polls the robot until it reports passive mode;
// use ctx or HandshakeTimeout to bound it.
func (l *Link) Connect(ctx context.Context) error {
	l.lock.Lock()
	switch l.state {
	case StateUnopened:
	case StateClosed:
		l.lock.Unlock()
		return ErrClosed
	default:
		state := l.state
		l.lock.Unlock()
		return fmt.Errorf("link already %s", state)
	}
	if !atomic.CompareAndSwapInt32(&activeLinks, 0, 1) {
		l.lock.Unlock()
		return ErrLinkActive
	}
	l.active = true
	l.state = StateOpening
	notifier := l.Notifier
	l.lock.Unlock()
	l.notify(ctx, notifier, StateOpening)

	transport, err := l.Opener.Open(l.receive)
	if err != nil {
		l.Close()
		var openErr *TransportOpenError
		if !errors.As(err, &openErr) {
			err = &TransportOpenError{Err: err}
		}
		return err
	}
	l.lock.Lock()
	if l.state == StateClosed {
		l.lock.Unlock()
		transport.Close()
		return &ConnectionFailedError{Err: ErrClosed}
	}
	l.transport = transport
	l.lock.Unlock()
	go l.watch(transport)

	if !l.transit(ctx, StateHandshaking) {
		return &ConnectionFailedError{Err: ErrClosed}
	}
	if err := l.connect(ctx); err != nil {
		l.Close()
		return err
	}
	if !l.transit(ctx, StateReady) {
		return &ConnectionFailedError{Err: ErrClosed}
	}
	glog.Info("connected to robot")
	return nil
}

func (l *Link) connect(ctx context.Context) error {
	attempts := l.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for n := 1; ; n++ {
		l.tracef("connecting, attempt %d/%d", n, attempts)
		err := l.handshake(ctx)
		if err == nil {
			return nil
		}
		if n >= attempts || ctx.Err() != nil || l.isDone() {
			return &ConnectionFailedError{Attempts: n, Err: err}
		}
		glog.Warningf("handshake attempt %d failed: %v, retry in %v (is the robot powered on?)", n, err, l.RetryDelay)
		l.sleep(ctx, l.RetryDelay)
		if err := ctx.Err(); err != nil {
			return &ConnectionFailedError{Attempts: n, Err: err}
		}
	}
}

// handshake sends the start command and polls the OI mode
// until the robot reports passive mode.
func (l *Link) handshake(ctx context.Context) error {
	if l.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.HandshakeTimeout)
		defer cancel()
	}
	if n := l.buf.Reset(); n > 0 {
		l.tracef("discarded %d stale bytes", n)
	}
	if err := l.send(CmdStart); err != nil {
		return err
	}
	l.tracef("waiting for the robot to get into passive mode")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.send(CmdSensors, SensorOIMode); err != nil {
			return err
		}
		atomic.AddUint64(&l.stats.Queries, 1)
		l.sleep(ctx, l.QueryInterval)
		var mode [1]byte
		if err := l.read(ctx, mode[:]); err != nil {
			return err
		}
		if mode[0] == ModePassive {
			return nil
		}
		l.tracef("OI mode %d, waiting", mode[0])
	}
}

// ReadSignedByte reads a byte in range -128 - 127.
func (l *Link) ReadSignedByte(ctx context.Context) (int8, error) {
	if err := l.checkReady(); err != nil {
		return 0, err
	}
	var p [1]byte
	if err := l.read(ctx, p[:]); err != nil {
		return 0, err
	}
	v := int8(p[0])
	l.tracef("read signed byte: %d", v)
	return v, nil
}

// ReadUnsignedByte reads a byte in range 0 - 255.
func (l *Link) ReadUnsignedByte(ctx context.Context) (uint8, error) {
	if err := l.checkReady(); err != nil {
		return 0, err
	}
	var p [1]byte
	if err := l.read(ctx, p[:]); err != nil {
		return 0, err
	}
	l.tracef("read unsigned byte: %d", p[0])
	return p[0], nil
}

// ReadSignedWord reads 2 bytes, high byte first, as a value in range -32768 - 32767.
func (l *Link) ReadSignedWord(ctx context.Context) (int16, error) {
	if err := l.checkReady(); err != nil {
		return 0, err
	}
	var p [2]byte
	if err := l.read(ctx, p[:]); err != nil {
		return 0, err
	}
	v := DecodeSignedWord(p[0], p[1])
	l.tracef("read signed word: %d", v)
	return v, nil
}

// ReadUnsignedWord reads 2 bytes, high byte first, as a value in range 0 - 65535.
func (l *Link) ReadUnsignedWord(ctx context.Context) (uint16, error) {
	if err := l.checkReady(); err != nil {
		return 0, err
	}
	var p [2]byte
	if err := l.read(ctx, p[:]); err != nil {
		return 0, err
	}
	v := DecodeUnsignedWord(p[0], p[1])
	l.tracef("read unsigned word: %d", v)
	return v, nil
}

// WriteByte sends a single byte.
func (l *Link) WriteByte(b byte) error {
	if err := l.checkReady(); err != nil {
		return err
	}
	l.tracef("sending byte: %d", b)
	return l.send(b)
}

// WriteBytes sends values[start:start+length] in a single write, each
// truncated to 8 bits. length must not exceed MaxCommandSize.
func (l *Link) WriteBytes(values []int, start, length int) error {
	if length > MaxCommandSize {
		return &InvalidArgumentError{
			Arg:    "length",
			Reason: fmt.Sprintf("%d exceeds max command size %d", length, MaxCommandSize),
		}
	}
	if length < 0 {
		return &InvalidArgumentError{
			Arg:    "length",
			Reason: fmt.Sprintf("%d is negative", length),
		}
	}
	if start < 0 || start+length > len(values) {
		return &InvalidArgumentError{
			Arg:    "start",
			Reason: fmt.Sprintf("[%d:%d] out of range of %d values", start, start+length, len(values)),
		}
	}
	if err := l.checkReady(); err != nil {
		return err
	}
	l.tracef("sending bytes: start = %d length = %d values = %v", start, length, values)
	l.writeLock.Lock()
	defer l.writeLock.Unlock()
	for i := 0; i < length; i++ {
		l.scratch[i] = byte(values[start+i])
	}
	return l.sendScratch(length)
}

// WriteSignedWord sends a value in range -32768 - 32767 as 2 bytes, high byte first.
func (l *Link) WriteSignedWord(v int16) error {
	if err := l.checkReady(); err != nil {
		return err
	}
	l.tracef("sending signed word: %d", v)
	return l.sendWord(uint16(v))
}

// WriteUnsignedWord sends a value in range 0 - 65535 as 2 bytes, high byte first.
func (l *Link) WriteUnsignedWord(v uint16) error {
	if err := l.checkReady(); err != nil {
		return err
	}
	l.tracef("sending unsigned word: %d", v)
	return l.sendWord(v)
}

// Err returns the transport failure which closed the link, if any.
func (l *Link) Err() error {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.err
}

// Close flushes and closes the transport and wakes up blocked readers.
// Closing a closed link is a no-op.
func (l *Link) Close() error {
	return l.closeWith(nil)
}

// closeWith closes the link, cause is the transport failure if not nil.
func (l *Link) closeWith(cause error) error {
	l.lock.Lock()
	if l.state == StateClosed {
		l.lock.Unlock()
		return nil
	}
	l.state = StateClosed
	if cause != nil {
		l.err = &TransportError{Err: cause}
	}
	transport, active, notifier := l.transport, l.active, l.Notifier
	l.transport, l.active = nil, false
	close(l.doneCh)
	l.lock.Unlock()

	l.tracef("closing link")
	l.buf.Close()
	var errs fx.AggregatedError
	if transport != nil {
		// in-flight writes complete before the transport goes away.
		l.writeLock.Lock()
		if !transport.IsClosed() {
			errs.Add(transport.Flush(), transport.Close())
		}
		l.writeLock.Unlock()
	}
	if active {
		atomic.StoreInt32(&activeLinks, 0)
	}
	l.notify(context.Background(), notifier, StateClosed)
	return errs.Aggregate()
}

// watch closes the link when the transport stops on its own.
func (l *Link) watch(t Transport) {
	select {
	case <-t.Done():
	case <-l.doneCh:
		return
	}
	err := t.Err()
	if err == nil {
		if l.isDone() {
			return
		}
		err = io.ErrUnexpectedEOF
	}
	glog.Errorf("link lost: %v", err)
	if cerr := l.closeWith(err); cerr != nil {
		glog.V(1).Infof("close lost link: %v", cerr)
	}
}

func (l *Link) receive(p []byte) {
	if len(p) == 0 {
		return
	}
	atomic.AddUint64(&l.stats.BytesReceived, uint64(len(p)))
	l.tracef("RX: %v", p)
	if err := l.buf.PushAll(p); err != nil {
		glog.V(2).Infof("dropped %d received bytes: %v", len(p), err)
	}
}

func (l *Link) read(ctx context.Context, p []byte) error {
	l.readLock.Lock()
	defer l.readLock.Unlock()
	for i := range p {
		b, err := l.buf.Pop(ctx)
		if err != nil {
			return err
		}
		p[i] = b
	}
	return nil
}

func (l *Link) send(p ...byte) error {
	l.writeLock.Lock()
	defer l.writeLock.Unlock()
	return l.sendScratch(copy(l.scratch[:], p))
}

func (l *Link) sendWord(v uint16) error {
	l.writeLock.Lock()
	defer l.writeLock.Unlock()
	PutWord(l.scratch[:2], v)
	return l.sendScratch(2)
}

// sendScratch writes the first n bytes of scratch, writeLock must be held.
func (l *Link) sendScratch(n int) error {
	l.lock.RLock()
	transport := l.transport
	l.lock.RUnlock()
	if transport == nil {
		return ErrClosed
	}
	written, err := transport.Write(l.scratch[:n])
	if written > 0 {
		atomic.AddUint64(&l.stats.BytesSent, uint64(written))
	}
	if err == nil && written < n {
		err = io.ErrShortWrite
	}
	return err
}

func (l *Link) checkReady() error {
	switch l.State() {
	case StateReady:
		return nil
	case StateClosed:
		if err := l.Err(); err != nil {
			return err
		}
		return ErrClosed
	}
	return ErrNotReady
}

// transit changes the state unless the link is closed.
func (l *Link) transit(ctx context.Context, state State) bool {
	l.lock.Lock()
	if l.state == StateClosed {
		l.lock.Unlock()
		return false
	}
	l.state = state
	notifier := l.Notifier
	l.lock.Unlock()
	l.notify(ctx, notifier, state)
	return true
}

func (l *Link) notify(ctx context.Context, notifier StateNotifier, state State) {
	l.tracef("link %s", state)
	if notifier != nil {
		notifier.StateChanged(ctx, l, state)
	}
}

func (l *Link) isDone() bool {
	select {
	case <-l.doneCh:
		return true
	default:
		return false
	}
}

// sleep waits for d. Cancellation only ends the wait early.
func (l *Link) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-l.doneCh:
	}
}

func (l *Link) tracef(format string, args ...interface{}) {
	if l.Debug() || bool(glog.V(4)) {
		glog.InfoDepth(1, fmt.Sprintf(format, args...))
	}
}
