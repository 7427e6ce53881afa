// Package wire implements the framed byte-stream protocol that carries
// captured PCM audio from a sender to a receiver (spec §3, §6).
package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderBytes is the size of the fixed-width packet header: length,
// position, and time, each a 64-bit little-endian unsigned integer.
const HeaderBytes = 24

// FrameBytes is the size, in bytes, of one stereo S16LE frame: two
// interleaved 16-bit channels.
const FrameBytes = 4

// Packet is one DataPacket off the wire: a header plus a payload of
// interleaved S16LE stereo frames. Payload is always a multiple of
// FrameBytes in length.
type Packet struct {
	// Position is the sender's running byte counter at the first payload
	// byte.
	Position uint64
	// Time is the sender's wall-clock capture time of the first payload
	// byte, nanoseconds since the Unix epoch.
	Time uint64
	// Payload is a contiguous slice of interleaved S16LE stereo frames.
	Payload []byte
}

// Len returns the total wire length of p, including the header.
func (p Packet) Len() int {
	return HeaderBytes + len(p.Payload)
}

// Encode appends the wire representation of p to dst and returns the
// extended slice.
func Encode(dst []byte, p Packet) []byte {
	var hdr [HeaderBytes]byte
	binary.LittleEndian.PutUint64(hdr[0:8], uint64(p.Len()))
	binary.LittleEndian.PutUint64(hdr[8:16], p.Position)
	binary.LittleEndian.PutUint64(hdr[16:24], p.Time)
	dst = append(dst, hdr[:]...)
	dst = append(dst, p.Payload...)
	return dst
}

// Decode parses one packet from the front of buf. It returns the packet,
// the number of bytes consumed, and an error if buf's length field is
// invalid. Decode does not require buf to hold a complete packet; ok is
// false (with zero consumed) when more bytes are needed.
func Decode(buf []byte, maxLen int) (p Packet, consumed int, ok bool, err error) {
	if len(buf) < 8 {
		return Packet{}, 0, false, nil
	}

	length := binary.LittleEndian.Uint64(buf[0:8])

	if length < HeaderBytes {
		return Packet{}, 0, false, fmt.Errorf("wire: framing error, length %d below minimum header size %d", length, HeaderBytes)
	}
	if length > uint64(maxLen) {
		return Packet{}, 0, false, fmt.Errorf("wire: framing error, length %d exceeds staging capacity %d", length, maxLen)
	}
	if (length-HeaderBytes)%FrameBytes != 0 {
		return Packet{}, 0, false, fmt.Errorf("wire: framing error, payload length %d is not frame-aligned", length-HeaderBytes)
	}

	if uint64(len(buf)) < length {
		return Packet{}, 0, false, nil
	}

	p.Position = binary.LittleEndian.Uint64(buf[8:16])
	p.Time = binary.LittleEndian.Uint64(buf[16:24])
	payloadLen := int(length) - HeaderBytes
	if payloadLen > 0 {
		p.Payload = make([]byte, payloadLen)
		copy(p.Payload, buf[HeaderBytes:length])
	}

	return p, int(length), true, nil
}
