// Package device defines the abstract playback/capture device interface
// (spec §4.4) and the concrete backends behind it.
package device

import "errors"

// ErrFatal wraps a device error that the caller must treat as fatal per
// spec §7: device open/config failure, an unrecoverable write error.
var ErrFatal = errors.New("device: fatal error")

// ErrAgain signals a transient, non-blocking "try again" condition (spec
// §7's "transient I/O" kind): the caller should yield this tick.
var ErrAgain = errors.New("device: EAGAIN")

// Device is the minimal abstraction the playback pump drives (spec §4.4).
// Implementations must never block the caller: Writable and Write are
// either genuinely non-blocking or backed by an internal buffer that makes
// them so.
type Device interface {
	// Writable reports how many S16LE stereo frames the device can
	// currently accept without blocking.
	Writable() (frames int, err error)
	// Write hands frames worth of interleaved S16LE stereo bytes to the
	// device and reports how many frames were actually accepted.
	// ErrAgain means none were accepted this tick; any other error is
	// treated as a recoverable-device condition unless wrapped in
	// ErrFatal.
	Write(data []byte, frames int) (accepted int, err error)
	// Recover attempts to bring the device back from an underrun or
	// suspended state. It reports whether the device is usable again; a
	// false return with an err wrapping ErrFatal is fatal (spec §7), while
	// any other err is reported and recovery is tried again on a later tick.
	Recover(cause error) (ok bool, err error)
	// Close releases the device under scoped acquisition (spec §5).
	Close() error
}

// PeriodFrames is the device-negotiated unit of writes per tick (spec
// glossary "Period"); backends may report a different actual size after
// opening, but 128 is the floor the spec names as typical.
const PeriodFrames = 256
