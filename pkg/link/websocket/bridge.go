// Package websocket bridges the wireless hub link over a websocket, for
// hubs reachable through a gateway process that owns the actual radio.
package websocket

import (
	"context"
	"net/url"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/brickworks/hublink.go/pkg/link"
	"github.com/brickworks/hublink.go/pkg/link/wire"
)

// Bridge implements link.Transport over a websocket connection. Every
// websocket message is one serialized wire.Frame.
type Bridge struct {
	conn         *websocket.Conn
	notification chan []byte
	status       chan []byte
	ack          chan struct{}
	disconnected chan struct{}
}

var _ link.Transport = (*Bridge)(nil)

// Dial connects to a gateway. A stable client id derived from the
// machine id is appended so the gateway can tell sessions apart.
func Dial(rawURL, origin string) (*Bridge, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if id, err := machineid.ID(); err == nil {
		q := u.Query()
		q.Set("client-id", id)
		u.RawQuery = q.Encode()
	}
	conn, err := websocket.Dial(u.String(), "", origin)
	if err != nil {
		return nil, err
	}
	return &Bridge{
		conn:         conn,
		notification: make(chan []byte, 16),
		status:       make(chan []byte, 16),
		ack:          make(chan struct{}, 1),
		disconnected: make(chan struct{}),
	}, nil
}

// Run demultiplexes incoming frames until the socket closes or the
// context ends. Disconnected() is closed on exit.
func (b *Bridge) Run(ctx context.Context) error {
	defer close(b.disconnected)
	go func() {
		<-ctx.Done()
		b.conn.Close()
	}()
	for {
		var msg []byte
		if err := websocket.Message.Receive(b.conn, &msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		frame, err := wire.Decode(msg)
		if err != nil {
			glog.Warningf("undecodable frame: %v", err)
			continue
		}
		switch frame.Type {
		case wire.TypeData:
			b.notification <- frame.Payload
		case wire.TypeStatus:
			b.status <- frame.Payload
		case wire.TypeAck:
			select {
			case b.ack <- struct{}{}:
			default:
			}
		default:
			glog.V(4).Infof("unknown frame type %d", frame.Type)
		}
	}
}

// Write implements link.Transport.
func (b *Bridge) Write(ctx context.Context, data []byte, ack bool) error {
	frameType := wire.TypeWrite
	if ack {
		frameType = wire.TypeWriteAck
	}
	msg, err := wire.Encode(frameType, data)
	if err != nil {
		return err
	}
	if err := websocket.Message.Send(b.conn, msg); err != nil {
		return err
	}
	if !ack {
		return nil
	}
	_, err = link.Race(ctx, b.disconnected, b.ack)
	return err
}

// Notifications implements link.Transport.
func (b *Bridge) Notifications() <-chan []byte {
	return b.notification
}

// Status implements link.Transport.
func (b *Bridge) Status() <-chan []byte {
	return b.status
}

// Disconnected implements link.Transport.
func (b *Bridge) Disconnected() <-chan struct{} {
	return b.disconnected
}

// Close shuts the socket down. Run returns afterwards.
func (b *Bridge) Close() error {
	return b.conn.Close()
}
