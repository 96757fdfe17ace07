package hub

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/golang/glog"

	"github.com/brickworks/hublink.go/pkg/link"
)

// AckTimeout bounds the wait for each chunk's checksum reply.
const AckTimeout = 500 * time.Millisecond

// Upload chunk sizes. The hub acknowledges each chunk with the XOR of
// its bytes; sending more before the acknowledgement overruns the
// receive buffer on the device.
const (
	ChunkSize            = 100
	ConstrainedChunkSize = 20
)

// XORBytes computes the xor of all bytes, the checksum the hub replies
// with for each chunk.
func XORBytes(data []byte) byte {
	var c byte
	for _, b := range data {
		c ^= b
	}
	return c
}

// ChunkPayload splits data into chunks of at most size bytes. Chunks
// reference the original slice.
func ChunkPayload(data []byte, size int) [][]byte {
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

func (h *Hub) chunkSize() int {
	if h.Kind == KindMoveHub {
		return ConstrainedChunkSize
	}
	return ChunkSize
}

// Upload pushes a program payload to the hub in strict lock-step:
// chunk N+1 is not written until chunk N's checksum came back. The
// payload length is sent first as its own 4-byte little-endian chunk.
func (h *Hub) Upload(ctx context.Context, payload []byte) (err error) {
	h.lock.Lock()
	if h.broken {
		h.lock.Unlock()
		return link.ErrSessionBroken
	}
	h.loading = true
	h.ackCh = make(chan []byte, 4)
	h.lock.Unlock()

	defer func() {
		h.lock.Lock()
		h.loading = false
		h.ackCh = nil
		// A failed transfer may leave an unconsumed acknowledgement in
		// flight; the session cannot tell it apart from the next
		// transfer's first reply.
		if err != nil && err != context.Canceled {
			h.broken = true
		}
		h.lock.Unlock()
	}()

	length := make([]byte, 4)
	binary.LittleEndian.PutUint32(length, uint32(len(payload)))
	if err = h.sendChunk(ctx, length); err != nil {
		return err
	}

	done := 0
	for _, c := range ChunkPayload(payload, h.chunkSize()) {
		if err = h.sendChunk(ctx, c); err != nil {
			return err
		}
		done += len(c)
		link.Report(h.Reporter, done)
	}
	glog.V(4).Infof("uploaded %d bytes", done)
	return nil
}

func (h *Hub) sendChunk(ctx context.Context, chunk []byte) error {
	if err := h.Transport.Write(ctx, chunk, false); err != nil {
		return err
	}
	msg, err := link.RaceTimeout(ctx, h.errored, h.ackCh, AckTimeout, "chunk acknowledgement")
	if err != nil {
		return h.failure(err)
	}
	if len(msg) == 0 {
		return &link.ReplyError{Expected: 1, Actual: msg}
	}
	if expected := XORBytes(chunk); msg[0] != expected {
		return &link.ChecksumError{Expected: expected, Actual: msg[0]}
	}
	return nil
}
