package bootloader

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/brickworks/hublink.go/pkg/link"
)

// Conn is one bootloader session over a wireless transport. At most
// one request is outstanding at a time.
type Conn struct {
	Transport link.Transport
	// WriteDelay paces consecutive writes; some hubs drop writes that
	// arrive back to back.
	WriteDelay time.Duration

	lock sync.Mutex
}

// NewConn creates a session over a connected transport.
func NewConn(t link.Transport) *Conn {
	return &Conn{Transport: t, WriteDelay: 5 * time.Millisecond}
}

// do sends one request and gathers its reply. The reply's leading byte
// must echo the command and its length is validated before any decode.
// A zero timeout waits until reply or disconnect.
func (c *Conn) do(ctx context.Context, req Request, payload []byte, timeout time.Duration) ([]byte, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	data := make([]byte, len(payload)+1)
	data[0] = req.Command
	copy(data[1:], payload)
	glog.V(4).Infof("request %s: % x", req.Name, data)

	if err := c.Transport.Write(ctx, data, false); err != nil {
		return nil, err
	}
	if c.WriteDelay > 0 {
		timer := time.NewTimer(c.WriteDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if req.ReplyLen == 0 {
		return nil, nil
	}

	// Replies may arrive split across notifications; gather until the
	// fixed length is reached.
	var reply []byte
	for len(reply) < req.ReplyLen {
		var (
			msg []byte
			err error
		)
		if timeout > 0 {
			msg, err = link.RaceTimeout(ctx, c.Transport.Disconnected(), c.Transport.Notifications(), timeout, req.Name+" reply")
		} else {
			msg, err = link.Race(ctx, c.Transport.Disconnected(), c.Transport.Notifications())
		}
		if err != nil {
			return nil, err
		}
		reply = append(reply, msg...)
	}
	glog.V(4).Infof("reply %s: % x", req.Name, reply)

	if len(reply) != req.ReplyLen || reply[0] != req.Command {
		return nil, &link.ReplyError{Command: req.Command, Expected: req.ReplyLen, Actual: reply}
	}
	return reply[1:], nil
}

// Info queries device information.
func (c *Conn) Info(ctx context.Context) (InfoReply, error) {
	reply, err := c.do(ctx, GetInfo, nil, 0)
	if err != nil {
		return InfoReply{}, err
	}
	return decodeInfo(reply), nil
}

// Erase erases the flash. The result byte is zero on success.
func (c *Conn) Erase(ctx context.Context) (byte, error) {
	reply, err := c.do(ctx, EraseFlash, nil, 0)
	if err != nil {
		return 0, err
	}
	return reply[0], nil
}

// Init tells the loader the total firmware size about to be written.
func (c *Conn) Init(ctx context.Context, size uint32) (byte, error) {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, size)
	reply, err := c.do(ctx, InitLoader, payload, 0)
	if err != nil {
		return 0, err
	}
	return reply[0], nil
}

// Checksum polls the device-side checksum with a short timeout; it
// doubles as a liveness probe during long flashes.
func (c *Conn) Checksum(ctx context.Context, timeout time.Duration) (byte, error) {
	reply, err := c.do(ctx, GetChecksum, nil, timeout)
	if err != nil {
		return 0, err
	}
	return reply[0], nil
}

// FlashState queries the flash protection level.
func (c *Conn) FlashState(ctx context.Context) (byte, error) {
	reply, err := c.do(ctx, GetFlashState, nil, 0)
	if err != nil {
		return 0, err
	}
	return reply[0], nil
}

// Start reboots into the freshly flashed application.
func (c *Conn) Start(ctx context.Context) error {
	_, err := c.do(ctx, StartApp, nil, 0)
	return err
}

// Disconnect asks the bootloader to drop the link.
func (c *Conn) Disconnect(ctx context.Context) error {
	_, err := c.do(ctx, Disconnect, nil, 0)
	return err
}

// flashWritePayload packs one flash-write request payload:
// <length byte><4-byte little-endian address><data>, where the length
// counts the address bytes too.
func flashWritePayload(address uint32, data []byte) []byte {
	payload := make([]byte, len(data)+5)
	payload[0] = byte(len(data) + 4)
	binary.LittleEndian.PutUint32(payload[1:], address)
	copy(payload[5:], data)
	return payload
}

// WriteChunk writes one payload chunk. Confirmed writes return the
// device checksum and byte count; bare writes return immediately.
func (c *Conn) WriteChunk(ctx context.Context, address uint32, data []byte, confirm bool) (FlashReply, error) {
	req := ProgramFlashBare
	if confirm {
		req = ProgramFlash
	}
	reply, err := c.do(ctx, req, flashWritePayload(address, data), 0)
	if err != nil {
		return FlashReply{}, err
	}
	if !confirm {
		return FlashReply{}, nil
	}
	return decodeFlash(reply), nil
}
