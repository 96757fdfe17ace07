package bootloader

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/brickworks/hublink.go/pkg/firmware"
	"github.com/brickworks/hublink.go/pkg/link"
)

const (
	// MaxPayloadSize bounds each flash-write chunk.
	MaxPayloadSize = 32
	// checksumInterval is how many chunks go out between liveness
	// probes.
	checksumInterval = 1000
	// checksumTimeout bounds each probe; a silent device here means
	// the link is stuck, not slow.
	checksumTimeout = 2 * time.Second
)

// Flash writes a complete firmware image: device check, erase, size
// init, then chunked writes with a confirmed final chunk. Every
// checksumInterval chunks a checksum probe with a short timeout runs;
// if it fails, the flash aborts with that error rather than silently
// reporting success on a truncated write.
func (c *Conn) Flash(ctx context.Context, image []byte, meta firmware.Metadata, reporter link.Reporter) error {
	glog.Info("getting device info")
	info, err := c.Info(ctx)
	if err != nil {
		return err
	}
	if info.TypeID != meta.DeviceID {
		glog.Errorf("firmware is for %s but connected to %s", HubName(meta.DeviceID), HubName(info.TypeID))
		c.Disconnect(ctx)
		return &link.DeviceMismatchError{Expected: meta.DeviceID, Actual: info.TypeID}
	}

	glog.Info("erasing flash")
	if _, err := c.Erase(ctx); err != nil {
		return err
	}

	glog.Info("validating size")
	if _, err := c.Init(ctx, uint32(len(image))); err != nil {
		return err
	}

	glog.Infof("flashing %d bytes", len(image))
	count := 0
	written := 0
	for written < len(image) {
		count++
		if count%checksumInterval == 0 {
			checksum, err := c.Checksum(ctx, checksumTimeout)
			if err != nil {
				return err
			}
			glog.V(4).Infof("checksum after %d chunks: %#02x", count, checksum)
		}

		n := MaxPayloadSize
		if n > len(image)-written {
			n = len(image) - written
		}
		chunk := image[written : written+n]
		address := info.StartAddr + uint32(written)
		last := written+n == len(image)

		if _, err := c.WriteChunk(ctx, address, chunk, last); err != nil {
			return err
		}
		written += n
		link.Report(reporter, written)
	}
	glog.Info("flashing done")
	return nil
}
