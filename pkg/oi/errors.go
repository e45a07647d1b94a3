package oi

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelClosed indicates the buffer was closed while waiting.
	ErrChannelClosed = errors.New("channel closed")
	// ErrNotReady indicates the link hasn't completed the handshake.
	ErrNotReady = errors.New("not ready")
	// ErrClosed indicates the link is closed and can't be reopened.
	ErrClosed = errors.New("link closed")
	// ErrLinkActive indicates another link is already open in this process.
	ErrLinkActive = errors.New("another link is active")
)

// TransportOpenError indicates the transport device can't be opened.
type TransportOpenError struct {
	Device string
	Err    error
}

// Error implements error.
func (e *TransportOpenError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("open transport: %v", e.Err)
	}
	return fmt.Sprintf("open %s: %v", e.Device, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportOpenError) Unwrap() error {
	return e.Err
}

// TransportError indicates the transport failed while the link was open.
// The link is closed when this happens, so it matches ErrClosed.
type TransportError struct {
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrClosed) true.
func (e *TransportError) Is(target error) bool {
	return target == ErrClosed
}

// ConnectionFailedError indicates the handshake didn't succeed.
type ConnectionFailedError struct {
	Attempts int
	Err      error
}

// Error implements error.
func (e *ConnectionFailedError) Error() string {
	if e.Attempts == 0 {
		return fmt.Sprintf("connection failed: %v", e.Err)
	}
	return fmt.Sprintf("connection failed after %d attempt(s): %v", e.Attempts, e.Err)
}

// Unwrap returns the error of the last attempt.
func (e *ConnectionFailedError) Unwrap() error {
	return e.Err
}

// InvalidArgumentError indicates a caller error.
type InvalidArgumentError struct {
	Arg    string
	Reason string
}

// Error implements error.
func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Arg, e.Reason)
}
