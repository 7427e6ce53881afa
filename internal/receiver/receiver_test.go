package receiver_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgreaves/driftlink/internal/device"
	"github.com/kgreaves/driftlink/internal/pump"
	"github.com/kgreaves/driftlink/internal/receiver"
	"github.com/kgreaves/driftlink/internal/wire"
)

const (
	testRingBytes    = 8192
	testSampleRate   = 44100
	testTargetLatSec = 0.01
	testMaxDrift     = 256
)

func newTestReceiver(t *testing.T, r *os.File, fake *device.Fake, now time.Time) *receiver.Receiver {
	t.Helper()
	rd, err := wire.NewReader(r)
	require.NoError(t, err)
	clock := func() time.Time { return now }
	return receiver.New(rd, fake, testRingBytes, testSampleRate, testTargetLatSec, testMaxDrift, 0.02, pump.Silent, clock)
}

// TestColdStartResyncsOnFirstPacket is spec S1: the ring starts wholly
// concealed and anchored at the sentinel offset, so the very first packet,
// whatever its position, must trigger a resync rather than being dropped as
// out of range.
func TestColdStartResyncsOnFirstPacket(t *testing.T) {
	pr, pw := mustPipe(t)
	defer pr.Close()

	fake := &device.Fake{Capacity: device.PeriodFrames}
	now := time.Unix(0, 10_000_000_000)
	rv := newTestReceiver(t, pr, fake, now)

	const senderPosition = 1_000_000
	payload := make([]byte, 256)
	writePacket(t, pw, wire.Packet{Position: senderPosition, Time: uint64(now.UnixNano()), Payload: payload})
	require.NoError(t, pw.Close())

	// The writer is already closed, so the tick that ingests the packet
	// also reports end of stream.
	events, eof := rv.Tick()
	require.True(t, eof)
	require.NotEmpty(t, events)
	assert.Equal(t, receiver.EventResync, events[len(events)-1].Kind)
	assert.Equal(t, uint64(1), rv.Snapshot().Resyncs)
	assert.Equal(t, uint64(1), rv.Snapshot().Placed)

	desired := int64(4 * float64(testSampleRate) * testTargetLatSec)
	desired -= desired % 4
	assert.Equal(t, uint64(senderPosition-desired), rv.SenderOffset())
}

// TestCleanEOFEndsTheLoop is spec S6: once the sender closes its end of the
// pipe, Tick must report eof without error so the caller can shut down.
func TestCleanEOFEndsTheLoop(t *testing.T) {
	pr, pw := mustPipe(t)
	require.NoError(t, pw.Close())
	defer pr.Close()

	fake := &device.Fake{Capacity: device.PeriodFrames}
	rv := newTestReceiver(t, pr, fake, time.Now())

	_, eof := rv.Tick()
	assert.True(t, eof)
}

// TestLatePacketIsDroppedNotPlaced is spec §4.3: a packet whose play-out
// deadline has already passed is dropped without perturbing ring or
// controller state.
func TestLatePacketIsDroppedNotPlaced(t *testing.T) {
	pr, pw := mustPipe(t)
	defer pr.Close()

	fake := &device.Fake{Capacity: device.PeriodFrames}
	now := time.Unix(0, 10_000_000_000)
	rv := newTestReceiver(t, pr, fake, now)

	// Establish a valid anchor first.
	writePacket(t, pw, wire.Packet{Position: 1_000_000, Time: uint64(now.UnixNano()), Payload: make([]byte, 64)})
	_, eof := rv.Tick()
	require.False(t, eof)
	require.Equal(t, uint64(1), rv.Snapshot().Placed)

	// A packet timestamped far enough in the past that its play deadline
	// has already elapsed relative to the target latency.
	ancientTime := uint64(now.Add(-10 * time.Second).UnixNano())
	writePacket(t, pw, wire.Packet{Position: 1_000_100, Time: ancientTime, Payload: make([]byte, 64)})
	require.NoError(t, pw.Close())

	events, eof := rv.Tick()
	require.True(t, eof)
	assert.Equal(t, uint64(1), rv.Snapshot().DroppedLate)
	found := false
	for _, e := range events {
		if e.Kind == receiver.EventLateDropped {
			found = true
		}
	}
	assert.True(t, found)
}

func mustPipe(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	return r, w
}

func writePacket(t *testing.T, w *os.File, p wire.Packet) {
	t.Helper()
	buf := wire.Encode(nil, p)
	_, err := w.Write(buf)
	require.NoError(t, err)
}
