package oi

// ReceiveHandler is called by a Transport with every burst of received bytes.
// The slice is only valid during the call.
type ReceiveHandler func(p []byte)

// Transport is an open byte stream to the robot.
// Write must not retain p after returning.
type Transport interface {
	Write(p []byte) (int, error)
	// Flush waits until pending outgoing bytes are transmitted.
	Flush() error
	Close() error
	IsClosed() bool
	// Done is closed when the transport stops receiving, either closed
	// or failed.
	Done() <-chan struct{}
	// Err returns the error which stopped the transport, nil if it was
	// closed normally.
	Err() error
}

// Opener opens a Transport and registers the handler for received bytes.
// The handler must be registered before any byte is delivered.
type Opener interface {
	Open(ReceiveHandler) (Transport, error)
}

// OpenFunc is func type of Opener.
type OpenFunc func(ReceiveHandler) (Transport, error)

// Open implements Opener.
func (f OpenFunc) Open(h ReceiveHandler) (Transport, error) {
	return f(h)
}
