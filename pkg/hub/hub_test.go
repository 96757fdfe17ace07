package hub

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brickworks/hublink.go/pkg/link"
)

// fakeTransport is a scripted wireless link. onWrite runs for every
// write and typically injects the reply notification.
type fakeTransport struct {
	lock         sync.Mutex
	writes       [][]byte
	notification chan []byte
	status       chan []byte
	disconnected chan struct{}
	onWrite      func(data []byte)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		notification: make(chan []byte, 16),
		status:       make(chan []byte, 16),
		disconnected: make(chan struct{}),
	}
}

func (f *fakeTransport) Write(ctx context.Context, data []byte, ack bool) error {
	f.lock.Lock()
	f.writes = append(f.writes, append([]byte(nil), data...))
	f.lock.Unlock()
	if f.onWrite != nil {
		f.onWrite(data)
	}
	return nil
}

func (f *fakeTransport) Notifications() <-chan []byte { return f.notification }
func (f *fakeTransport) Status() <-chan []byte        { return f.status }
func (f *fakeTransport) Disconnected() <-chan struct{} {
	return f.disconnected
}

func (f *fakeTransport) sentWrites() [][]byte {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([][]byte(nil), f.writes...)
}

func (f *fakeTransport) sendStatus(flags StatusFlags) {
	payload := make([]byte, 5)
	payload[0] = EventStatusReport
	binary.LittleEndian.PutUint32(payload[1:], uint32(flags))
	f.status <- payload
}

func startHub(t *testing.T, transport *fakeTransport, kind byte) *Hub {
	t.Helper()
	h := New(transport, kind)
	h.Demux.Echo = false
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func TestChunkPayloadRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		size int
		data []byte
	}{
		{"empty", 100, nil},
		{"smaller than chunk", 100, []byte("abc")},
		{"exact multiple", 4, []byte("12345678")},
		{"remainder", 20, make([]byte, 50)},
		{"single byte chunks", 1, []byte("xyz")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			chunks := ChunkPayload(tc.data, tc.size)
			var joined []byte
			for _, c := range chunks {
				require.LessOrEqual(t, len(c), tc.size)
				require.NotEmpty(t, c)
				joined = append(joined, c...)
			}
			require.Equal(t, tc.data, joined)
		})
	}
}

func TestXORBytes(t *testing.T) {
	require.Equal(t, byte(0), XORBytes(nil))
	require.Equal(t, byte(0x01^0x02^0x03), XORBytes([]byte{1, 2, 3}))
}

func TestUploadLockStep(t *testing.T) {
	transport := newFakeTransport()
	transport.onWrite = func(data []byte) {
		transport.notification <- []byte{XORBytes(data)}
	}
	h := startHub(t, transport, KindTechHub)

	var progress []int
	h.Reporter = link.ReporterFunc(func(done int) {
		progress = append(progress, done)
	})

	payload := make([]byte, 250)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, h.Upload(context.Background(), payload))

	writes := transport.sentWrites()
	require.Len(t, writes, 4) // length chunk + 3 payload chunks

	length := make([]byte, 4)
	binary.LittleEndian.PutUint32(length, 250)
	require.Equal(t, length, writes[0])

	var joined []byte
	for _, w := range writes[1:] {
		require.LessOrEqual(t, len(w), ChunkSize)
		joined = append(joined, w...)
	}
	require.Equal(t, payload, joined)
	require.Equal(t, []int{100, 200, 250}, progress)
}

func TestUploadConstrainedChunkSize(t *testing.T) {
	transport := newFakeTransport()
	transport.onWrite = func(data []byte) {
		transport.notification <- []byte{XORBytes(data)}
	}
	h := startHub(t, transport, KindMoveHub)

	require.NoError(t, h.Upload(context.Background(), make([]byte, 50)))

	writes := transport.sentWrites()
	require.Len(t, writes, 4) // length + 20 + 20 + 10
	require.Len(t, writes[1], 20)
	require.Len(t, writes[3], 10)
}

func TestUploadChecksumMismatch(t *testing.T) {
	transport := newFakeTransport()
	transport.onWrite = func(data []byte) {
		transport.notification <- []byte{XORBytes(data) ^ 0xff}
	}
	h := startHub(t, transport, KindTechHub)

	err := h.Upload(context.Background(), []byte("payload"))
	var ce *link.ChecksumError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, ce.Expected^0xff, ce.Actual)

	// the session is unusable until reset
	require.Equal(t, link.ErrSessionBroken, h.Upload(context.Background(), []byte("again")))
}

func TestUploadAckTimeout(t *testing.T) {
	transport := newFakeTransport()
	h := startHub(t, transport, KindTechHub)

	err := h.Upload(context.Background(), []byte("payload"))
	var te *link.TimeoutError
	require.ErrorAs(t, err, &te)
}

func TestUploadDisconnect(t *testing.T) {
	transport := newFakeTransport()
	transport.onWrite = func(data []byte) {
		close(transport.disconnected)
	}
	h := startHub(t, transport, KindTechHub)

	err := h.Upload(context.Background(), []byte("payload"))
	require.Equal(t, link.ErrLinkLost, err)
}

func TestStatusDecode(t *testing.T) {
	transport := newFakeTransport()
	h := startHub(t, transport, KindTechHub)

	ch, cancel := h.Status().Subscribe(16)
	defer cancel()
	require.Equal(t, StatusFlags(0), <-ch)

	transport.sendStatus(FlagProgramRunning | FlagBLEAdvertising)
	flags := <-ch
	require.True(t, flags.ProgramRunning())
	require.Equal(t, FlagProgramRunning|FlagBLEAdvertising, flags)

	// non-status events are ignored
	transport.status <- []byte{0x99, 1, 2, 3, 4}
	transport.sendStatus(0)
	require.Equal(t, StatusFlags(0), <-ch)
}

func TestWaitCompletionNormalRun(t *testing.T) {
	transport := newFakeTransport()
	h := startHub(t, transport, KindTechHub)

	go func() {
		time.Sleep(50 * time.Millisecond)
		transport.sendStatus(FlagProgramRunning)
		time.Sleep(100 * time.Millisecond)
		transport.sendStatus(0)
	}()

	start := time.Now()
	require.NoError(t, h.WaitCompletion(context.Background()))
	// includes the output grace period after the stop transition
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond+OutputGrace)
}

func TestWaitCompletionShortProgram(t *testing.T) {
	transport := newFakeTransport()
	h := startHub(t, transport, KindTechHub)

	// no start transition at all within the grace window
	start := time.Now()
	require.NoError(t, h.WaitCompletion(context.Background()))
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, StartGrace)
	require.Less(t, elapsed, StartGrace+OutputGrace)
}

func TestWaitCompletionAlreadyRunning(t *testing.T) {
	transport := newFakeTransport()
	h := startHub(t, transport, KindTechHub)

	transport.sendStatus(FlagProgramRunning)
	// give the pump time to latch the running state
	time.Sleep(20 * time.Millisecond)

	go func() {
		time.Sleep(50 * time.Millisecond)
		transport.sendStatus(0)
	}()
	require.NoError(t, h.WaitCompletion(context.Background()))
}

func TestWaitCompletionPumpFailure(t *testing.T) {
	transport := newFakeTransport()
	h := startHub(t, transport, KindTechHub)

	transport.sendStatus(FlagProgramRunning)
	time.Sleep(20 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- h.WaitCompletion(context.Background()) }()

	// an end marker with no open log kills the pump; the completion
	// wait must observe that error instead of hanging
	transport.notification <- []byte("PB_EOF\r\n")

	select {
	case err := <-done:
		var pe *link.ProtocolError
		require.ErrorAs(t, err, &pe)
		require.ErrorAs(t, h.Err(), &pe)
	case <-time.After(time.Second):
		t.Fatal("completion wait did not observe the pump failure")
	}
}

func TestWaitCompletionDisconnect(t *testing.T) {
	transport := newFakeTransport()
	h := startHub(t, transport, KindTechHub)

	transport.sendStatus(FlagProgramRunning)
	time.Sleep(20 * time.Millisecond)

	go func() {
		time.Sleep(30 * time.Millisecond)
		close(transport.disconnected)
	}()
	require.Equal(t, link.ErrLinkLost, h.WaitCompletion(context.Background()))
}
