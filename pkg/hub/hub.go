// Package hub drives a wireless hub session: program upload over the
// notification channel with per-chunk checksum acknowledgement, status
// observation and run-completion monitoring.
package hub

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/golang/glog"

	"github.com/brickworks/hublink.go/pkg/lines"
	"github.com/brickworks/hublink.go/pkg/link"
)

// Hub is one wireless hub session. It owns its Demux and the single
// in-flight transfer; the Transport outlives the session.
type Hub struct {
	Transport link.Transport
	Demux     *lines.Demux
	// Kind selects the upload chunk size.
	Kind byte
	// Reporter receives upload progress in acknowledged bytes.
	Reporter link.Reporter

	status  *link.Cell[StatusFlags]
	running *link.Cell[bool]

	// errored is closed when the pump returns; runErr holds its
	// terminal error from then on. Waits race against errored rather
	// than the raw transport so a pump failure is never mistaken for
	// a quiet link.
	errored chan struct{}
	runErr  error

	lock    sync.Mutex
	loading bool
	ackCh   chan []byte
	broken  bool
}

// New creates a session over a connected transport.
func New(t link.Transport, kind byte) *Hub {
	return &Hub{
		Transport: t,
		Demux:     &lines.Demux{Echo: true},
		Kind:      kind,
		status:    link.NewCell(StatusFlags(0)),
		running:   link.NewCell(false),
		errored:   make(chan struct{}),
	}
}

// Status returns the latest-value status cell.
func (h *Hub) Status() *link.Cell[StatusFlags] {
	return h.status
}

// Run pumps incoming transport events into the session until the link
// drops, an event handler fails or the context ends. It implements
// link.Runnable and must be running for any hub operation to make
// progress. Run may be called at most once per session.
func (h *Hub) Run(ctx context.Context) error {
	err := h.pump(ctx)
	h.lock.Lock()
	h.runErr = err
	h.lock.Unlock()
	close(h.errored)
	return err
}

// Err returns the pump's terminal error once Run has returned, nil
// while it is still running.
func (h *Hub) Err() error {
	select {
	case <-h.errored:
	default:
		return nil
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.runErr
}

// failure maps a lost race on the errored channel to the pump's own
// error, so callers see why the pump stopped instead of a generic
// lost-link report.
func (h *Hub) failure(err error) error {
	if err != link.ErrLinkLost {
		return err
	}
	if perr := h.Err(); perr != nil {
		return perr
	}
	return err
}

func (h *Hub) pump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.Transport.Disconnected():
			return link.ErrLinkLost
		case data := <-h.Transport.Notifications():
			if err := h.handleNotification(data); err != nil {
				return err
			}
		case data := <-h.Transport.Status():
			h.handleStatus(data)
		}
	}
}

// handleNotification routes incoming bytes. During an upload they are
// checksum acknowledgements; otherwise they are console output.
func (h *Hub) handleNotification(data []byte) error {
	h.lock.Lock()
	loading, ackCh := h.loading, h.ackCh
	h.lock.Unlock()
	if loading {
		glog.V(4).Infof("upload ack: % x", data)
		select {
		case ackCh <- data:
		default:
			// the waiter gave up; a stale ack must not stall the pump
			glog.V(4).Info("dropping unconsumed ack")
		}
		return nil
	}
	glog.V(4).Infof("hub data: % x", data)
	return h.Demux.Feed(data)
}

func (h *Hub) handleStatus(data []byte) {
	// Only status reports feed the channel; other events are not ours.
	if len(data) < 5 || data[0] != EventStatusReport {
		return
	}
	flags := StatusFlags(binary.LittleEndian.Uint32(data[1:]))
	h.status.Set(flags)
	h.running.Set(flags.ProgramRunning())
}

// RunProgram uploads a compiled program and starts it. With wait set it
// blocks until the program stops, feeding captured output through the
// Demux as it arrives.
func (h *Hub) RunProgram(ctx context.Context, program []byte, wait bool) error {
	if err := h.Demux.Reset(); err != nil {
		return err
	}
	if err := h.Upload(ctx, program); err != nil {
		return err
	}
	if !wait {
		return nil
	}
	return h.WaitCompletion(ctx)
}
