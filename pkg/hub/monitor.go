package hub

import (
	"context"
	"time"

	"github.com/brickworks/hublink.go/pkg/link"
)

const (
	// StartGrace is how long to wait for the program-running flag to
	// come up before concluding the program already finished.
	StartGrace = 200 * time.Millisecond
	// OutputGrace is the settle time after the flag clears; the
	// firmware does not flush buffered output before clearing it.
	OutputGrace = 300 * time.Millisecond
)

// WaitCompletion watches the program-running status bit until the user
// program has started and stopped again. A program so short that its
// start was never observed within StartGrace counts as completed.
// A dead pump at any point aborts with its terminal error, ErrLinkLost
// on plain disconnection.
func (h *Hub) WaitCompletion(ctx context.Context) error {
	ch, cancel := h.running.Subscribe(16)
	defer cancel()

	// First value is the status as of entry; the program may have
	// started before we got here.
	running, err := link.Race(ctx, h.errored, ch)
	if err != nil {
		return h.failure(err)
	}

	if !running {
		running, err = link.RaceTimeout(ctx, h.errored, ch, StartGrace, "program start")
		if err != nil {
			if _, ok := err.(*link.TimeoutError); ok {
				// Missed the whole run of a very short program.
				return nil
			}
			return h.failure(err)
		}
	}

	// The program is running; the next transition must be it stopping.
	for running {
		running, err = link.Race(ctx, h.errored, ch)
		if err != nil {
			return h.failure(err)
		}
	}

	timer := time.NewTimer(OutputGrace)
	defer timer.Stop()
	select {
	case <-h.errored:
		return h.failure(link.ErrLinkLost)
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
