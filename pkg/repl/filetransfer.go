package repl

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/brickworks/hublink.go/pkg/link"
)

// FilePacketSize is how many bytes go out between acknowledgements.
const FilePacketSize = 1024

// ackLiteral is what the receiver prints after writing each packet.
var ackLiteral = []byte("ACK\r\n")

// receiverScript is injected during Reset. It reads the file in
// FilePacketSize packets from stdin and acknowledges each one. A
// packet that takes more than 5 seconds to arrive aborts the receiver.
var receiverScript = fmt.Sprintf(`import sys
import micropython
import utime

PACKETSIZE = %d

def receive_file(filename, filesize):

    micropython.kbd_intr(-1)

    with open(filename, "wb") as f:

        done = 0
        buf = bytearray(PACKETSIZE)
        sys.stdin.buffer.read(1)

        while done < filesize:

            if filesize - done < PACKETSIZE:
                buf = bytearray(filesize - done)

            time_now = utime.ticks_ms()
            bytes_read = sys.stdin.buffer.readinto(buf)

            if utime.ticks_ms() - time_now > 5000:
                print("transfer timed out")
                return

            f.write(buf)
            done += bytes_read
            print("ACK")
`, FilePacketSize)

// UploadFile writes contents to the given path on the device using the
// pre-injected receiver. Each packet must be acknowledged by the ACK
// literal at the expected buffer offset before the next one goes out.
func (r *REPL) UploadFile(ctx context.Context, destination string, contents []byte, reporter link.Reporter) error {
	size := len(contents)
	glog.Infof("uploading %s (%d bytes)", destination, size)
	if err := r.resetBuffers(); err != nil {
		return err
	}

	// Start the receiver; it blocks reading packets, so do not wait
	// for the console to become idle.
	call := fmt.Sprintf("receive_file('%s', %d)", destination, size)
	if err := r.ExecLine(ctx, call, false); err != nil {
		return err
	}

	progress := 0
	for _, packet := range chunkBytes(contents, FilePacketSize) {
		bufNow := len(r.buffer)
		n, err := r.Port.Write(packet)
		if err != nil {
			return err
		}
		progress += n

		// The receiver's read times out after 5 seconds; poll well
		// below that.
		for len(r.buffer) < bufNow+len(ackLiteral) {
			if err := sleep(ctx, 10*time.Millisecond); err != nil {
				return err
			}
			if err := r.pollInput(); err != nil {
				return err
			}
		}
		if actual := r.buffer[bufNow : bufNow+len(ackLiteral)]; !bytes.Equal(actual, ackLiteral) {
			r.broken = true
			return &link.EchoError{Expected: ackLiteral, Actual: r.buffer[bufNow:]}
		}
		link.Report(reporter, progress)
	}

	// A no-op line confirms the console is back at a clean prompt.
	return r.ExecLine(ctx, "# file transfer complete", true)
}
