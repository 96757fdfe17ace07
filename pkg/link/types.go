package link

import (
	"context"
)

// Transport is the wireless link boundary. Implementations own the
// radio plumbing; sessions only write bytes and consume the incoming
// streams. A Transport outlives a single protocol run.
type Transport interface {
	// Write sends bytes to the peer. When ack is true the write is
	// link-level acknowledged before returning.
	Write(ctx context.Context, data []byte, ack bool) error
	// Notifications is the NUS-style incoming byte stream.
	Notifications() <-chan []byte
	// Status is the control-characteristic incoming byte stream.
	Status() <-chan []byte
	// Disconnected is closed when the link goes down. It fires at most
	// once per session.
	Disconnected() <-chan struct{}
}

// SerialPort is the serial link boundary. There is no native event
// stream; callers poll ReadAvailable.
type SerialPort interface {
	// Write sends bytes and returns the count written.
	Write(data []byte) (int, error)
	// ReadAvailable returns whatever bytes have arrived, possibly none.
	// It never blocks waiting for data.
	ReadAvailable() ([]byte, error)
	// Close releases the port.
	Close() error
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// Reporter receives progress as operations complete. Implementations
// must not block; they are called from the session's control flow.
type Reporter interface {
	Report(done int)
}

// ReporterFunc is the func form of Reporter.
type ReporterFunc func(done int)

// Report implements Reporter.
func (f ReporterFunc) Report(done int) {
	f(done)
}

// Report invokes a Reporter if it is non-nil.
func Report(r Reporter, done int) {
	if r != nil {
		r.Report(done)
	}
}
