// Package wire defines the serialized frames exchanged with a hub
// gateway, multiplexing the hub's byte streams over one connection.
// The schema lives in frame.proto; the message type is maintained by
// hand in the reflection form proto 1.3 marshals directly.
package wire

import (
	"github.com/golang/protobuf/proto"
)

// Frame types. Data, status and ack flow gateway to client; write and
// acknowledged write flow client to gateway.
const (
	TypeData     uint32 = 1
	TypeStatus   uint32 = 2
	TypeWrite    uint32 = 3
	TypeWriteAck uint32 = 4
	TypeAck      uint32 = 5
)

// Frame is one gateway message: a stream selector plus the raw bytes.
type Frame struct {
	Type    uint32 `protobuf:"varint,1,opt,name=type,proto3" json:"type,omitempty"`
	Payload []byte `protobuf:"bytes,2,opt,name=payload,proto3" json:"payload,omitempty"`
}

// Reset implements proto.Message.
func (m *Frame) Reset() { *m = Frame{} }

// String implements proto.Message.
func (m *Frame) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements proto.Message.
func (*Frame) ProtoMessage() {}

func init() {
	proto.RegisterType((*Frame)(nil), "hublink.wire.Frame")
}

// Encode serializes one frame.
func Encode(frameType uint32, payload []byte) ([]byte, error) {
	return proto.Marshal(&Frame{Type: frameType, Payload: payload})
}

// Decode deserializes one frame.
func Decode(data []byte) (*Frame, error) {
	var frame Frame
	if err := proto.Unmarshal(data, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}
