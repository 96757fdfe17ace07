package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/brickworks/hublink.go/pkg/link"
	"github.com/brickworks/hublink.go/pkg/link/wire"
)

// startGateway runs a scripted gateway: every write frame is answered
// by a data frame with the same payload, acked writes are acknowledged
// first, and a status frame follows any payload starting with 0xfe.
func startGateway(t *testing.T) *httptest.Server {
	t.Helper()
	send := func(ws *websocket.Conn, frameType uint32, payload []byte) {
		msg, err := wire.Encode(frameType, payload)
		require.NoError(t, err)
		websocket.Message.Send(ws, msg)
	}
	server := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		for {
			var msg []byte
			if err := websocket.Message.Receive(ws, &msg); err != nil {
				return
			}
			frame, err := wire.Decode(msg)
			require.NoError(t, err)
			if frame.Type == wire.TypeWriteAck {
				send(ws, wire.TypeAck, nil)
			}
			if len(frame.Payload) > 0 && frame.Payload[0] == 0xfe {
				send(ws, wire.TypeStatus, frame.Payload)
				continue
			}
			send(ws, wire.TypeData, frame.Payload)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func dialGateway(t *testing.T, server *httptest.Server) *Bridge {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	bridge, err := Dial(url, "http://localhost/")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go bridge.Run(ctx)
	return bridge
}

func TestBridgeRoutesDataFrames(t *testing.T) {
	bridge := dialGateway(t, startGateway(t))

	require.NoError(t, bridge.Write(context.Background(), []byte{1, 2, 3}, false))
	msg, err := link.RaceTimeout(context.Background(), bridge.Disconnected(), bridge.Notifications(), time.Second, "data frame")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, msg)
}

func TestBridgeRoutesStatusFrames(t *testing.T) {
	bridge := dialGateway(t, startGateway(t))

	require.NoError(t, bridge.Write(context.Background(), []byte{0xfe, 9}, false))
	msg, err := link.RaceTimeout(context.Background(), bridge.Disconnected(), bridge.Status(), time.Second, "status frame")
	require.NoError(t, err)
	require.Equal(t, []byte{0xfe, 9}, msg)

	// nothing leaked into the notification stream
	select {
	case m := <-bridge.Notifications():
		t.Fatalf("unexpected notification: %v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBridgeAckedWrite(t *testing.T) {
	bridge := dialGateway(t, startGateway(t))
	require.NoError(t, bridge.Write(context.Background(), []byte{7}, true))
}

func TestBridgeDisconnect(t *testing.T) {
	server := startGateway(t)
	bridge := dialGateway(t, server)

	server.CloseClientConnections()
	select {
	case <-bridge.Disconnected():
	case <-time.After(time.Second):
		t.Fatal("disconnect not observed")
	}
}
