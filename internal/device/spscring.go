package device

import "sync/atomic"

// spscRing is a lock-free single-producer/single-consumer byte ring used to
// hand frames from the cooperative event loop's Write call to a backend's
// audio callback running on its own thread. The head/tail atomic-counter
// shape is the same one used for float32 samples in
// agalue-sherpa-voice-assistant/internal/audio/playback.go's playbackRing,
// adapted here to raw interleaved S16LE bytes.
type spscRing struct {
	buf  []byte
	head atomic.Uint64 // producer: bytes written so far
	tail atomic.Uint64 // consumer: bytes read so far
}

func newSPSCRing(size int) *spscRing {
	return &spscRing{buf: make([]byte, size)}
}

// Free returns how many bytes can currently be pushed without overwriting
// unread data.
func (r *spscRing) Free() int {
	head := r.head.Load()
	tail := r.tail.Load()
	return len(r.buf) - int(head-tail)
}

// Push copies as much of data as fits and returns the number of bytes
// written.
func (r *spscRing) Push(data []byte) int {
	n := r.Free()
	if n > len(data) {
		n = len(data)
	}
	head := r.head.Load()
	for i := 0; i < n; i++ {
		r.buf[(int(head)+i)%len(r.buf)] = data[i]
	}
	r.head.Add(uint64(n))
	return n
}

// Pop fills dst from the ring, zero-filling (silence) whatever isn't
// available, and returns how many real bytes were copied.
func (r *spscRing) Pop(dst []byte) int {
	head := r.head.Load()
	tail := r.tail.Load()
	available := int(head - tail)
	n := available
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = r.buf[(int(tail)+i)%len(r.buf)]
	}
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	r.tail.Add(uint64(n))
	return n
}
