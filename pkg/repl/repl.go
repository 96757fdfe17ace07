// Package repl drives a MicroPython console over a serial link:
// interrupt and soft-reset, prompt-idle detection, paste-mode script
// injection with echo verification, and acknowledged file transfer.
//
// The serial boundary exposes no event stream, so every wait here is a
// poll at a fixed interval. The intervals are far below the 5 second
// device-side read timeout of the file receiver.
package repl

import (
	"bytes"
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/brickworks/hublink.go/pkg/lines"
	"github.com/brickworks/hublink.go/pkg/link"
)

// Console control bytes.
const (
	CtrlInterrupt  byte = 0x03 // Ctrl-C, cancel running code
	CtrlSoftReset  byte = 0x04 // Ctrl-D at the prompt, soft reboot
	CtrlPasteEnter byte = 0x05 // Ctrl-E, enter paste mode
	CtrlPasteExit  byte = 0x04 // Ctrl-D in paste mode, run the script
)

// Console prompts. Idle means the buffer tail matches one of these.
var (
	IdlePrompt  = []byte(">>> ")
	PastePrompt = []byte("=== ")
)

// Poll intervals.
const (
	EchoPoll = 50 * time.Millisecond
	IdlePoll = 100 * time.Millisecond
)

// REPL is one interactive console session. It owns its input buffer
// and Demux; the port outlives the session.
type REPL struct {
	Port  link.SerialPort
	Demux *lines.Demux

	buffer []byte
	broken bool
}

// New creates a session over an open port.
func New(port link.SerialPort) *REPL {
	return &REPL{
		Port:  port,
		Demux: &lines.Demux{Echo: true},
	}
}

// pollInput moves whatever arrived on the port into the buffer.
func (r *REPL) pollInput() error {
	data, err := r.Port.ReadAvailable()
	if err != nil {
		return err
	}
	if len(data) > 0 {
		glog.V(4).Infof("console data: %q", data)
		r.buffer = append(r.buffer, data...)
	}
	return nil
}

// isIdle checks whether the console shows the given prompt. Detection
// is pure buffer inspection, no blocking read.
func (r *REPL) isIdle(prompt []byte) (bool, error) {
	if err := r.pollInput(); err != nil {
		return false, err
	}
	return bytes.HasSuffix(r.buffer, prompt), nil
}

// waitIdle polls for the prompt, optionally nudging the console with a
// control byte between polls.
func (r *REPL) waitIdle(ctx context.Context, prompt []byte, nudge byte) error {
	for {
		idle, err := r.isIdle(prompt)
		if err != nil {
			return err
		}
		if idle {
			return nil
		}
		if nudge != 0 {
			if _, err := r.Port.Write([]byte{nudge}); err != nil {
				return err
			}
		}
		if err := sleep(ctx, IdlePoll); err != nil {
			return err
		}
	}
}

// resetBuffers clears the input buffer, the Demux state and whatever
// the port still holds. A log sink left open by the previous run
// surfaces here as a ProtocolError.
func (r *REPL) resetBuffers() error {
	r.buffer = nil
	if err := r.Demux.Reset(); err != nil {
		return err
	}
	data, err := r.Port.ReadAvailable()
	for err == nil && len(data) > 0 {
		data, err = r.Port.ReadAvailable()
	}
	return err
}

// Reset interrupts anything running, soft-reboots the console and
// injects the file receiver routine. It also clears the broken flag
// set by an earlier echo mismatch.
func (r *REPL) Reset(ctx context.Context) error {
	r.broken = false

	// Cancel whatever is running.
	for i := 0; i < 5; i++ {
		if _, err := r.Port.Write([]byte{CtrlInterrupt}); err != nil {
			return err
		}
		if err := sleep(ctx, 100*time.Millisecond); err != nil {
			return err
		}
	}

	// Soft reboot.
	if _, err := r.Port.Write([]byte{CtrlSoftReset}); err != nil {
		return err
	}
	if err := sleep(ctx, 500*time.Millisecond); err != nil {
		return err
	}

	// A startup routine may keep re-announcing itself; keep
	// interrupting until the prompt stays up.
	if err := r.waitIdle(ctx, IdlePrompt, CtrlInterrupt); err != nil {
		return err
	}

	if err := r.resetBuffers(); err != nil {
		return err
	}

	// Inject the receiver used by UploadFile, then drop its echo so it
	// is not mistaken for user output.
	if err := r.ExecPaste(ctx, receiverScript, true, false); err != nil {
		return err
	}
	if err := r.resetBuffers(); err != nil {
		return err
	}

	glog.Info("console is ready")
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
