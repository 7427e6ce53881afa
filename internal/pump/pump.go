// Package pump implements the playback pump (spec §4.4): it asks the
// device how many frames it can accept, writes one period's worth from
// the head of the ring, applies any staged drift correction by consuming
// more or fewer bytes than were played, and paints concealment over the
// vacated tail.
package pump

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/kgreaves/driftlink/internal/device"
	"github.com/kgreaves/driftlink/internal/drift"
	"github.com/kgreaves/driftlink/internal/ring"
)

// Outcome describes what one Tick call did, for diagnostics and tests.
type Outcome int

const (
	// Idle means the device had no writable room this tick, or Write
	// returned ErrAgain; nothing was consumed.
	Idle Outcome = iota
	// Recovered means the device faulted and Recover was invoked; the
	// ring was not consumed this tick (spec §4.4, §7).
	Recovered
	// Consumed means a period was written and the ring advanced.
	Consumed
)

// Pump drives one Device using one Ring and Controller.
type Pump struct {
	dev        device.Device
	ring       *ring.Ring
	controller *drift.Controller

	recoverBackoff backoff.ExponentialBackOff
	nextRecoverAt  time.Time
}

// New builds a Pump. Each Tick writes at most device.PeriodFrames frames
// (spec glossary "Period").
func New(dev device.Device, r *ring.Ring, controller *drift.Controller) *Pump {
	return &Pump{
		dev:        dev,
		ring:       r,
		controller: controller,
		recoverBackoff: backoff.ExponentialBackOff{
			InitialInterval:     2 * time.Millisecond,
			MaxInterval:         40 * time.Millisecond,
			Multiplier:          2,
			RandomizationFactor: 0.1,
		},
	}
}

// Tick performs one pump step (spec §4.4). now is the wall clock, used
// only to pace recovery backoff.
func (p *Pump) Tick(now time.Time) (Outcome, error) {
	writable, err := p.dev.Writable()
	if err != nil {
		return p.recover(now, err)
	}
	if writable <= 0 {
		return Idle, nil
	}

	period := device.PeriodFrames
	if writable < period {
		period = writable
	}
	periodBytes := period * 4

	head := p.ring.Bytes()
	if periodBytes > len(head) {
		periodBytes = len(head)
	}

	accepted, err := p.dev.Write(head[:periodBytes], periodBytes/4)
	if err != nil {
		if errors.Is(err, device.ErrAgain) {
			return Idle, nil
		}
		if errors.Is(err, device.ErrFatal) {
			return Idle, err
		}
		return p.recover(now, err)
	}
	if accepted == 0 {
		return Idle, nil
	}

	// The recovery backoff resets as soon as a write succeeds (spec's
	// design intent: backoff paces only a *failure* loop).
	p.recoverBackoff.Reset()
	p.nextRecoverAt = time.Time{}

	played := accepted * 4
	correction := p.controller.PendingCorrection()
	consume := played + int(correction)

	if consume < 0 {
		consume = 0
	}
	if consume > p.ring.Size() {
		consume = p.ring.Size()
	}
	consume -= consume % 4

	p.controller.ClearCorrection()
	p.ring.Consume(consume)

	return Consumed, nil
}

// recover invokes the device's recovery path, paced by an exponential
// backoff so a device stuck in a fault loop cannot spin the cooperative
// loop at its 1-50us tick rate (spec §7: invoke recovery, skip the tick;
// DESIGN.md documents the backoff pacing as an addition that does not
// change this policy).
func (p *Pump) recover(now time.Time, cause error) (Outcome, error) {
	if !p.nextRecoverAt.IsZero() && now.Before(p.nextRecoverAt) {
		return Idle, nil
	}

	ok, err := p.dev.Recover(cause)
	p.nextRecoverAt = now.Add(p.recoverBackoff.NextBackOff())

	if !ok {
		return Recovered, err
	}
	return Recovered, nil
}

// Close releases the underlying device.
func (p *Pump) Close() error {
	return p.dev.Close()
}
