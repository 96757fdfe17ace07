// Package lines splits an incoming byte stream into discrete lines and
// routes data-log control lines to a file sink. Shared by the wireless
// and serial hub sessions.
package lines

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/glog"

	"github.com/brickworks/hublink.go/pkg/link"
)

// EOL is the console line terminator.
var EOL = []byte("\r\n")

// Control markers recognized anywhere in a decoded line. Each marker
// has a legacy alias kept for older firmware.
var (
	beginMarkers = [][]byte{[]byte("PB_OF:"), []byte("_file_begin_ ")}
	endMarkers   = [][]byte{[]byte("PB_EOF"), []byte("_file_end_")}
)

// Demux accumulates raw bytes, emits complete lines and maintains the
// log sink opened and closed by the begin/end markers. It is purely
// synchronous; one Demux belongs to exactly one session.
type Demux struct {
	// Dir is the working directory log paths resolve against.
	Dir string
	// Echo surfaces ordinary lines to Sink as they arrive.
	Echo bool
	// Sink receives echoed lines. Defaults to os.Stdout.
	Sink io.Writer

	buf     []byte
	output  [][]byte
	logFile *os.File
}

// Feed appends newly arrived bytes and dispatches every complete line
// found. Partial lines stay buffered across calls.
func (d *Demux) Feed(data []byte) error {
	d.buf = append(d.buf, data...)
	for {
		i := bytes.Index(d.buf, EOL)
		if i < 0 {
			return nil
		}
		line := d.buf[:i]
		d.buf = d.buf[i+len(EOL):]
		if err := d.dispatch(line); err != nil {
			return err
		}
	}
}

func (d *Demux) dispatch(line []byte) error {
	if path, ok := matchBegin(line); ok {
		if d.logFile != nil {
			return &link.ProtocolError{Reason: "log file is already open"}
		}
		full := filepath.Join(d.Dir, path)
		if dir := filepath.Dir(full); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		f, err := os.Create(full)
		if err != nil {
			return err
		}
		glog.Infof("saving log to %s", full)
		d.logFile = f
		return nil
	}
	if matchEnd(line) {
		if d.logFile == nil {
			return &link.ProtocolError{Reason: "no log file is currently open"}
		}
		glog.Info("done saving log")
		err := d.logFile.Close()
		d.logFile = nil
		return err
	}
	if d.logFile != nil {
		_, err := d.logFile.Write(terminated(line))
		return err
	}
	// line may alias a live session buffer; never retain or grow it
	d.output = append(d.output, append([]byte(nil), line...))
	if d.Echo {
		w := d.Sink
		if w == nil {
			w = os.Stdout
		}
		w.Write(terminated(line))
	}
	return nil
}

// terminated returns a copy of line with the newline appended.
func terminated(line []byte) []byte {
	out := make([]byte, len(line)+1)
	copy(out, line)
	out[len(line)] = '\n'
	return out
}

func matchBegin(line []byte) (string, bool) {
	for _, m := range beginMarkers {
		if i := bytes.Index(line, m); i >= 0 {
			return string(line[i+len(m):]), true
		}
	}
	return "", false
}

func matchEnd(line []byte) bool {
	for _, m := range endMarkers {
		if bytes.Contains(line, m) {
			return true
		}
	}
	return false
}

// FeedLine dispatches one already-delimited line (no terminator).
func (d *Demux) FeedLine(line []byte) error {
	return d.dispatch(line)
}

// Output returns the ordinary lines captured so far.
func (d *Demux) Output() [][]byte {
	return d.output
}

// Pending returns the buffered partial line, if any.
func (d *Demux) Pending() []byte {
	return d.buf
}

// Reset discards buffered bytes and captured output for a new run.
// A sink left open by the previous run is closed and reported, not
// silently dropped.
func (d *Demux) Reset() error {
	d.buf = nil
	d.output = nil
	if d.logFile != nil {
		d.logFile.Close()
		d.logFile = nil
		return &link.ProtocolError{Reason: "log file left open by previous run"}
	}
	return nil
}

// Close verifies the sink was properly terminated at session end.
func (d *Demux) Close() error {
	if d.logFile != nil {
		d.logFile.Close()
		d.logFile = nil
		return &link.ProtocolError{Reason: "log file left open at session end"}
	}
	return nil
}
