package wire

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		position := rapid.Uint64().Draw(t, "position")
		when := rapid.Uint64().Draw(t, "time")
		frames := rapid.IntRange(0, 256).Draw(t, "frames")

		payload := make([]byte, frames*FrameBytes)
		for i := range payload {
			payload[i] = byte(i)
		}

		want := Packet{Position: position, Time: when, Payload: payload}

		wire := Encode(nil, want)
		got, consumed, ok, err := Decode(wire, StagingCapacity)

		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, len(wire), consumed)

		if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestDecodeNeedsMoreBytes(t *testing.T) {
	want := Packet{Position: 10, Time: 20, Payload: []byte{1, 2, 3, 4}}
	wire := Encode(nil, want)

	_, _, ok, err := Decode(wire[:len(wire)-1], StagingCapacity)
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, ok, err = Decode(wire[:4], StagingCapacity)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeRejectsUndersizedLength(t *testing.T) {
	var buf [HeaderBytes]byte
	buf[0] = 23 // length < HeaderBytes

	_, _, ok, err := Decode(buf[:], StagingCapacity)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestDecodeRejectsOversizedLength(t *testing.T) {
	var buf [HeaderBytes]byte
	buf[0] = 0xFF
	buf[1] = 0xFF
	buf[2] = 0x01 // length 0x1FFFF, above StagingCapacity

	_, _, ok, err := Decode(buf[:], StagingCapacity)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestDecodeRejectsMisalignedPayload(t *testing.T) {
	var buf [HeaderBytes + 3]byte
	buf[0] = HeaderBytes + 3 // 3 is not a multiple of FrameBytes

	_, _, ok, err := Decode(buf[:], StagingCapacity)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestDecodeDegeneratePacketIsNoOp(t *testing.T) {
	// S11: payload length 0 (length == HeaderBytes) is legal.
	want := Packet{Position: 5, Time: 6}
	wire := Encode(nil, want)

	got, consumed, ok, err := Decode(wire, StagingCapacity)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, HeaderBytes, consumed)
	assert.Empty(t, got.Payload)
}
