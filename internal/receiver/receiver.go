// Package receiver ties the wire reader, ring buffer, drift controller,
// and playback pump together into one cooperative event loop (spec §5,
// §9). All mutable per-run state lives on the Receiver value; there are
// no package-level globals, per spec §9's explicit design note.
package receiver

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/kgreaves/driftlink/internal/device"
	"github.com/kgreaves/driftlink/internal/drift"
	"github.com/kgreaves/driftlink/internal/pump"
	"github.com/kgreaves/driftlink/internal/ring"
	"github.com/kgreaves/driftlink/internal/wire"
)

// TickSleep is the fixed, short cooperative-loop sleep (spec §5: "on the
// order of 1-50us").
const TickSleep = 20 * time.Microsecond

// Stats is a point-in-time copy of the per-run counters surfaced by the
// --stats-interval reporter (SPEC_FULL supplemented feature 2). Obtain one
// via Receiver.Snapshot; the fields are plain values, not live counters.
type Stats struct {
	Placed      uint64
	DroppedLate uint64
	Resyncs     uint64
}

// Event is emitted by Receiver.Tick for the caller (typically the CLI's
// diagnostics layer) to log; Receiver itself never logs directly, keeping
// it decoupled from any particular logging library.
type Event struct {
	Kind    EventKind
	Err     error
	Message string
}

// EventKind classifies one Event.
type EventKind int

const (
	EventNone EventKind = iota
	EventLateDropped
	EventResync
	EventFramingError
	EventTransientIO
	EventDeviceRecovered
	EventFatal
)

// Clock abstracts wall-clock reads so tests can inject deterministic time.
type Clock func() time.Time

// Receiver owns every piece of mutable state for one run: the ring, the
// drift controller, the wire reader's staging buffer (inside Reader), and
// the pump (spec §9).
type Receiver struct {
	reader     *wire.Reader
	ring       *ring.Ring
	controller *drift.Controller
	pump       *pump.Pump
	clock      Clock

	targetLatencySeconds float64

	// Counters are read from Snapshot on a separate goroutine (the stats
	// reporter, see internal/diag) while Tick mutates them from the
	// cooperative loop, so they're atomic rather than plain uint64s.
	placed          atomic.Uint64
	droppedLate     atomic.Uint64
	resyncs         atomic.Uint64
	localPosAvgBits atomic.Uint64 // math.Float64bits of the controller's EWMA
}

// New builds a Receiver. ringBytes, targetLatencySeconds, and the device
// all come from the CLI (spec §6).
func New(r *wire.Reader, dev device.Device, ringBytes int, nominalSampleRate int, targetLatencySeconds float64, maximumDrift int64, blend float64, concealment pump.Concealment, clock Clock) *Receiver {
	if clock == nil {
		clock = time.Now
	}
	ringBuf := ring.New(ringBytes, pump.NewConcealer(concealment))
	desired := drift.DesiredLocalPosition(nominalSampleRate, targetLatencySeconds)
	controller := drift.New(desired, maximumDrift, blend)

	rv := &Receiver{
		reader:               r,
		ring:                 ringBuf,
		controller:           controller,
		pump:                 pump.New(dev, ringBuf, controller),
		clock:                clock,
		targetLatencySeconds: targetLatencySeconds,
	}
	rv.localPosAvgBits.Store(math.Float64bits(controller.LocalPositionAvg()))
	return rv
}

// Tick runs one full cooperative-loop iteration: pump, then wire reader,
// per spec §5's ordering ("it is safe to call even when idle... then the
// wire reader"). It returns the events worth logging this tick and
// whether the input stream has reached end of file (spec §5, S6).
func (rv *Receiver) Tick() (events []Event, eof bool) {
	now := rv.clock()

	if _, err := rv.pump.Tick(now); err != nil {
		if errors.Is(err, device.ErrFatal) {
			events = append(events, Event{Kind: EventFatal, Err: err})
			return events, false
		}
		events = append(events, Event{Kind: EventDeviceRecovered, Err: err})
	}

	packets, err := rv.reader.Poll()
	for _, p := range packets {
		events = append(events, rv.ingest(p, now)...)
	}
	if err != nil {
		if errors.Is(err, wire.ErrClosed) {
			return events, true
		}
		events = append(events, rv.classifyReadError(err))
	}

	return events, false
}

// Framing errors surface from wire.Reader wrapped with "framing error"
// text; anything else is a transient I/O condition (spec §7).
func (rv *Receiver) classifyReadError(err error) Event {
	if isFramingError(err) {
		return Event{Kind: EventFramingError, Err: err}
	}
	return Event{Kind: EventTransientIO, Err: err}
}

func isFramingError(err error) bool {
	return err != nil && len(err.Error()) > 0 && containsFramingMarker(err.Error())
}

func containsFramingMarker(s string) bool {
	const marker = "framing error"
	for i := 0; i+len(marker) <= len(s); i++ {
		if s[i:i+len(marker)] == marker {
			return true
		}
	}
	return false
}

// ingest classifies and, if warranted, places one packet, per spec §4.3.
func (rv *Receiver) ingest(p wire.Packet, now time.Time) []Event {
	packetToPlayIn := (float64(p.Time) + rv.targetLatencySeconds*1e9 - float64(now.UnixNano())) / 1e9
	localPosition := int64(p.Position - rv.ring.SenderOffset())

	var events []Event

	switch rv.controller.Classify(packetToPlayIn, localPosition, len(p.Payload), rv.ring.Size()) {
	case drift.Late:
		rv.droppedLate.Add(1)
		events = []Event{{Kind: EventLateDropped, Message: fmt.Sprintf("dropped late packet at position %d, %.3fs behind target", p.Position, -packetToPlayIn)}}

	case drift.Resync:
		anchor := rv.controller.ResyncAnchor(p.Position)
		rv.ring.Resync(anchor)
		rv.resyncs.Add(1)

		newLocal := int64(p.Position - anchor)
		rv.controller.Resync(newLocal)

		if rv.ring.Place(p.Position, p.Payload) {
			rv.placed.Add(1)
		}
		events = []Event{{Kind: EventResync, Message: fmt.Sprintf("resynced: new sender offset %d", anchor)}}

	default: // InWindow
		if rv.ring.Place(p.Position, p.Payload) {
			rv.placed.Add(1)
			rv.controller.Update(localPosition)
		}
	}

	rv.localPosAvgBits.Store(math.Float64bits(rv.controller.LocalPositionAvg()))
	return events
}

// Snapshot returns a point-in-time copy of the run's counters. Safe to call
// from a goroutine other than the one driving Tick (see internal/diag's
// StatsReporter).
func (rv *Receiver) Snapshot() Stats {
	return Stats{
		Placed:      rv.placed.Load(),
		DroppedLate: rv.droppedLate.Load(),
		Resyncs:     rv.resyncs.Load(),
	}
}

// Close releases the playback device.
func (rv *Receiver) Close() error {
	return rv.pump.Close()
}

// SenderOffset exposes the ring's current anchor, for diagnostics and tests.
func (rv *Receiver) SenderOffset() uint64 {
	return rv.ring.SenderOffset()
}

// LocalPositionAvg exposes the controller's current EWMA, for diagnostics.
// It reads the atomically published copy rather than the controller
// directly, since unlike Tick this may be called from another goroutine
// (see internal/diag's StatsReporter).
func (rv *Receiver) LocalPositionAvg() float64 {
	return math.Float64frombits(rv.localPosAvgBits.Load())
}
