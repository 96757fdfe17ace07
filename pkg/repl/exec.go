package repl

import (
	"bytes"
	"context"

	"github.com/brickworks/hublink.go/pkg/lines"
	"github.com/brickworks/hublink.go/pkg/link"
)

// PasteChunkSize bounds each paste-mode write so the console's input
// buffer is never overrun before the echo comes back.
const PasteChunkSize = 200

// ExecLine writes one line to the console and verifies its echo. With
// wait set it also polls until the console is idle again. An echo
// mismatch leaves the console state unknown; the session refuses
// further work until Reset.
func (r *REPL) ExecLine(ctx context.Context, line string, wait bool) error {
	if r.broken {
		return link.ErrSessionBroken
	}
	if err := r.resetBuffers(); err != nil {
		return err
	}
	start := len(r.buffer)
	echo := append([]byte(line), lines.EOL...)
	if _, err := r.Port.Write(echo); err != nil {
		return err
	}

	// Wait until at least the echo arrived.
	for len(r.buffer) < start+len(echo) {
		if err := sleep(ctx, EchoPoll); err != nil {
			return err
		}
		if err := r.pollInput(); err != nil {
			return err
		}
	}
	if !bytes.Contains(r.buffer[start:], echo) {
		r.broken = true
		return &link.EchoError{Expected: echo, Actual: r.buffer[start:]}
	}

	if !wait {
		return nil
	}
	return r.waitIdle(ctx, IdlePrompt, 0)
}

// ExecPaste runs a whole script through paste mode: enter the mode,
// stream the script in echo-verified pieces, then exit the mode which
// starts execution. With wait set it captures output lines through the
// Demux while the script runs, until the console is idle again.
func (r *REPL) ExecPaste(ctx context.Context, script string, wait, echoOutput bool) error {
	if r.broken {
		return link.ErrSessionBroken
	}
	if err := r.resetBuffers(); err != nil {
		return err
	}
	r.Demux.Echo = echoOutput

	// Enter paste mode.
	if _, err := r.Port.Write([]byte{CtrlPasteEnter}); err != nil {
		return err
	}
	if err := r.waitIdle(ctx, PastePrompt, 0); err != nil {
		return err
	}

	// Stream the script piece by piece, checking each echo before the
	// next write.
	start := len(r.buffer)
	echo := append([]byte(script), lines.EOL...)
	for _, piece := range chunkBytes(echo, PasteChunkSize) {
		if _, err := r.Port.Write(piece); err != nil {
			return err
		}
		for len(r.buffer) < start+len(piece) {
			if err := sleep(ctx, EchoPoll); err != nil {
				return err
			}
			if err := r.pollInput(); err != nil {
				return err
			}
		}
		if !bytes.Contains(r.buffer[start:], piece) {
			r.broken = true
			return &link.EchoError{Expected: piece, Actual: r.buffer[start:]}
		}
		start += len(piece)
	}

	// Everything before this point is echo, not output.
	lineIndex := len(r.buffer)

	// Exit paste mode; execution starts now.
	if _, err := r.Port.Write([]byte{CtrlPasteExit}); err != nil {
		return err
	}
	if !wait {
		return nil
	}

	// Interleave output capture with execution: scan newly arrived
	// bytes for complete lines past the last one already forwarded.
	for {
		idle, err := r.isIdle(IdlePrompt)
		if err != nil {
			return err
		}
		if lineIndex, err = r.forwardLines(lineIndex); err != nil {
			return err
		}
		if idle {
			return nil
		}
		if err := sleep(ctx, IdlePoll); err != nil {
			return err
		}
	}
}

// forwardLines feeds complete lines in buffer[from:] to the Demux and
// returns the new scan position.
func (r *REPL) forwardLines(from int) (int, error) {
	for {
		i := bytes.Index(r.buffer[from:], lines.EOL)
		if i < 0 {
			return from, nil
		}
		if err := r.Demux.FeedLine(r.buffer[from : from+i]); err != nil {
			return from, err
		}
		from += i + len(lines.EOL)
	}
}

func chunkBytes(data []byte, size int) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}
