// Package ring implements the fixed-size linear byte arena that holds
// future samples keyed by sender position (spec §3, §4.2).
package ring

import "fmt"

// Concealer paints n bytes of filler into dst, using the byte
// immediately preceding dst (if any) as the reference sample. It is
// called whenever ring content is vacated, so every byte in the ring
// stays defined per the ring's never-uninitialised invariant (spec §4.2,
// §8 item 3).
type Concealer interface {
	Conceal(dst []byte, reference byte)
}

// Ring is a fixed-size, non-circular byte arena. Ring offset k always
// represents the sample at absolute sender position SenderOffset + k.
// Content physically shifts left (memmove) on every Consume, matching
// spec §3's deliberately non-circular ring.
type Ring struct {
	buf          []byte
	senderOffset uint64
	concealer    Concealer
}

// New allocates a ring of size bytes, wholly painted with concealment, and
// anchored at the sentinel offset described in spec §3's lifecycle note:
// an arbitrary large value that forces the first real packet to resync.
func New(size int, concealer Concealer) *Ring {
	if size <= 0 || size%4 != 0 {
		panic(fmt.Sprintf("ring: size %d must be a positive multiple of 4", size))
	}
	r := &Ring{
		buf:          make([]byte, size),
		senderOffset: sentinelOffset,
		concealer:    concealer,
	}
	r.concealer.Conceal(r.buf, 0)
	return r
}

// sentinelOffset is the initial senderOffset: large enough that any real
// first packet's position computes a negative localPosition and forces a
// resync (spec §3's lifecycle, S1).
const sentinelOffset uint64 = 1 << 62

// Size returns RING_BYTES, the ring's fixed capacity.
func (r *Ring) Size() int { return len(r.buf) }

// SenderOffset is the absolute sender position that currently maps to
// ring byte 0.
func (r *Ring) SenderOffset() uint64 { return r.senderOffset }

// Bytes exposes the ring's current content, offset 0 first. The returned
// slice aliases the ring's internal storage and must not be retained
// across a call to Consume or Resync.
func (r *Ring) Bytes() []byte { return r.buf }

// Place copies payload to ring offset position-senderOffset, provided the
// whole span lies within [0, Size()). It reports whether the placement
// succeeded; a false return means the caller must resync (spec §4.2).
// position and len(payload) must both be frame-aligned; Place panics
// otherwise, since frame alignment is a caller-maintained invariant
// (spec §3, §8 item 2).
func (r *Ring) Place(position uint64, payload []byte) bool {
	if len(payload)%4 != 0 {
		panic("ring: payload is not frame-aligned")
	}
	local := int64(position - r.senderOffset)
	if local%4 != 0 {
		panic("ring: position is not frame-aligned relative to senderOffset")
	}
	if local < 0 || local+int64(len(payload)) > int64(len(r.buf)) {
		return false
	}
	copy(r.buf[local:local+int64(len(payload))], payload)
	return true
}

// Consume shifts the ring left by n bytes, overwrites the vacated tail
// with concealment, and advances senderOffset by n (spec §4.2). n must be
// frame-aligned and within [0, Size()].
func (r *Ring) Consume(n int) {
	if n%4 != 0 {
		panic("ring: consume amount is not frame-aligned")
	}
	if n < 0 || n > len(r.buf) {
		panic(fmt.Sprintf("ring: consume amount %d out of range [0, %d]", n, len(r.buf)))
	}
	if n == 0 {
		return
	}

	// The reference sample is the byte that ends up immediately before the
	// new tail, i.e. the pre-shift buffer's last byte — not anything near
	// the discarded region's front. A full-buffer consume leaves no
	// preceding byte, so it falls back to the same offset-0 reference New
	// uses for the initial paint.
	var reference byte
	if n < len(r.buf) {
		reference = r.buf[len(r.buf)-1]
	}

	copy(r.buf, r.buf[n:])
	tail := r.buf[len(r.buf)-n:]
	r.concealer.Conceal(tail, reference)

	r.senderOffset += uint64(n)
}

// Resync re-anchors the ring at a newly computed senderOffset and wipes
// the entire buffer with concealment, per spec §4.3's resync procedure.
// The deliberate uint64 wraparound (spec §9) is preserved: callers compute
// newOffset with ordinary unsigned arithmetic and this method does not
// second-guess it.
func (r *Ring) Resync(newOffset uint64) {
	r.senderOffset = newOffset
	r.concealer.Conceal(r.buf, 0)
}
