package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	data, err := Encode(TypeWriteAck, []byte{1, 2, 3})
	require.NoError(t, err)

	frame, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, TypeWriteAck, frame.Type)
	require.Equal(t, []byte{1, 2, 3}, frame.Payload)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)
}
