package wire

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// StagingCapacity is the size of the reader's staging buffer: enough for
// a header plus a generously large payload. It bounds the maximum packet
// length accepted off the wire (spec §4.1).
const StagingCapacity = 1 << 16

// Reader parses DataPackets out of a non-blocking byte stream, buffering
// partial packets across calls to Poll (spec §4.1).
type Reader struct {
	src     *os.File
	fd      int
	staging []byte
}

// ErrClosed is returned by Poll once the underlying stream has reached
// end of file: the sender closed its end of the pipe (spec §4.1, §5, S6).
var ErrClosed = errors.New("wire: input stream closed")

// NewReader wraps src, putting it into non-blocking mode. src is typically
// os.Stdin.
func NewReader(src *os.File) (*Reader, error) {
	fd := int(src.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("wire: set stdin non-blocking: %w", err)
	}
	return &Reader{
		src:     src,
		fd:      fd,
		staging: make([]byte, 0, StagingCapacity),
	}, nil
}

// Poll drains whatever bytes are currently available from the input
// source and returns every whole packet that can now be parsed out of the
// staging buffer, in arrival order. A framing error discards the staging
// buffer entirely (resync at the wire level) and is returned alongside
// any packets parsed before the bad header was encountered.
func (r *Reader) Poll() ([]Packet, error) {
	buf := make([]byte, 4096)
	for {
		// Read the raw fd: src.Read would park in the runtime poller on
		// EAGAIN instead of returning it.
		n, err := unix.Read(r.fd, buf)
		if n > 0 {
			r.staging = append(r.staging, buf[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return r.drain0AsEOF()
			}
			if isAgain(err) {
				break
			}
			// Transient read failure: log-worthy but not fatal per §7;
			// the caller decides how to surface it. Stop polling this tick.
			pkts, derr := r.drain()
			if derr != nil {
				return pkts, derr
			}
			return pkts, fmt.Errorf("wire: transient read error: %w", err)
		}
		if n == 0 {
			return r.drain0AsEOF()
		}
	}
	return r.drain()
}

// drain0AsEOF handles end of stream, seen either as a zero-byte, nil-error
// read or as an io.EOF error; on a pipe either means the writer has closed
// its end (spec §4.1: "if a read returns 0 bytes the
// sender has closed the stream").
func (r *Reader) drain0AsEOF() ([]Packet, error) {
	pkts, err := r.drain()
	if err != nil {
		return pkts, err
	}
	return pkts, ErrClosed
}

// drain parses as many whole packets as currently sit in staging.
func (r *Reader) drain() ([]Packet, error) {
	var pkts []Packet
	for {
		p, consumed, ok, err := Decode(r.staging, StagingCapacity)
		if err != nil {
			// Framing error: discard the staging buffer and resync,
			// per spec §4.1 edge cases.
			r.staging = r.staging[:0]
			return pkts, err
		}
		if !ok {
			break
		}
		pkts = append(pkts, p)
		r.staging = append(r.staging[:0], r.staging[consumed:]...)
	}
	return pkts, nil
}

func isAgain(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}
