// Package drift implements the clock-drift controller: it tracks where
// arriving packets land inside the ring relative to where they should
// land, and stages frame-level corrections to keep latency converged on
// the target (spec §4.3).
package drift

import "math"

// DefaultBlend is the default EWMA smoothing constant, alpha, used to
// absorb per-packet jitter while tracking long-term landing position
// (spec §4.3). Small by design: the original toggles between 0.05 and
// 0.0002 across revisions; spec.md leaves the exact value an open
// implementation choice (§9) and this keeps the slower, steadier value.
const DefaultBlend = 0.0002

// Classification is the outcome of classifying one packet against the
// controller's current state (spec §4.3's classification table).
type Classification int

const (
	// InWindow means the packet should be placed into the ring.
	InWindow Classification = iota
	// Late means packetToPlayIn < 0: drop the packet, no state change.
	Late
	// Resync means localPosition is out of the ring's bounds: the
	// controller must re-anchor senderOffset.
	Resync
)

// Controller holds the EWMA position estimate and pending correction for
// one receiver (spec §3's localPositionAvg and samplesTooMuch, §9's
// single-owning-value guidance: Controller is embedded in the receiver's
// state, never a package-level global).
type Controller struct {
	desiredLocalPosition int64
	maximumDrift         int64
	blend                float64

	localPositionAvg float64
	samplesTooMuch   int64
}

// New builds a Controller. desiredLocalPosition and maximumDrift are both
// in bytes and must be frame-aligned; blend is the EWMA alpha (spec §4.3).
func New(desiredLocalPosition, maximumDrift int64, blend float64) *Controller {
	return &Controller{
		desiredLocalPosition: FrameAlign(desiredLocalPosition),
		maximumDrift:         FrameAlign(maximumDrift),
		blend:                blend,
		localPositionAvg:     float64(FrameAlign(desiredLocalPosition)),
	}
}

// FrameAlign truncates n toward zero to a multiple of 4 bytes (spec §3:
// every externally observable boundary is frame-aligned).
func FrameAlign(n int64) int64 {
	return n - (n % 4)
}

// DesiredLocalPosition is 4 * nominalSampleRate * targetLatency,
// frame-aligned (spec §3).
func DesiredLocalPosition(nominalSampleRate int, targetLatency float64) int64 {
	return FrameAlign(int64(4 * float64(nominalSampleRate) * targetLatency))
}

// Classify evaluates one packet's headroom and ring landing position
// against the controller's current state, per spec §4.3's table.
// packetToPlayInSeconds is (packet.time + targetLatency*1e9 - now) / 1e9;
// localPosition is packet.position - senderOffset, both already computed
// by the caller (the receiver owns senderOffset, not the controller).
func (c *Controller) Classify(packetToPlayInSeconds float64, localPosition int64, payloadLen int, ringSize int) Classification {
	if packetToPlayInSeconds < 0 {
		return Late
	}
	if localPosition < 0 {
		return Resync
	}
	if localPosition+int64(payloadLen) > int64(ringSize) {
		return Resync
	}
	return InWindow
}

// ResyncAnchor computes the new senderOffset for a resync: the sender
// position that makes this packet land exactly at desiredLocalPosition
// (spec §4.3's resync procedure). The subtraction is ordinary uint64
// arithmetic and is allowed to wrap (spec §9, S5).
func (c *Controller) ResyncAnchor(packetPosition uint64) uint64 {
	return packetPosition - uint64(c.desiredLocalPosition)
}

// Resync resets the EWMA to the freshly computed post-resync
// localPosition, which by construction equals desiredLocalPosition, and
// clears any pending correction (spec §4.3).
func (c *Controller) Resync(localPosition int64) {
	c.localPositionAvg = float64(localPosition)
	c.samplesTooMuch = 0
}

// Update folds one in-window packet's localPosition into the EWMA and
// decides whether to stage a correction (spec §4.3's averaging and
// correction-decision rules).
func (c *Controller) Update(localPosition int64) {
	c.localPositionAvg = (1-c.blend)*c.localPositionAvg + c.blend*float64(localPosition)

	target := float64(c.desiredLocalPosition)
	band := float64(c.maximumDrift)

	switch {
	case c.localPositionAvg > target+band:
		c.samplesTooMuch = FrameAlign(int64(math.Round(c.localPositionAvg - target)))
		c.localPositionAvg = 0.1*target + 0.9*c.localPositionAvg
	case c.localPositionAvg < target-band:
		c.samplesTooMuch = -FrameAlign(int64(math.Round(target - c.localPositionAvg)))
		c.localPositionAvg = 0.1*target + 0.9*c.localPositionAvg
	}
}

// PendingCorrection returns the currently staged samplesTooMuch, positive
// to skip ahead, negative to duplicate, without clearing it.
func (c *Controller) PendingCorrection() int64 {
	return c.samplesTooMuch
}

// ClearCorrection is called by the pump once a correction has been
// physically realised at the next device write (spec §4.3's idempotence
// note: the pump clears the counter on apply).
func (c *Controller) ClearCorrection() {
	c.samplesTooMuch = 0
}

// LocalPositionAvg exposes the current EWMA, primarily for diagnostics and
// tests.
func (c *Controller) LocalPositionAvg() float64 {
	return c.localPositionAvg
}

// DesiredLocalPosition exposes the configured desired local position.
func (c *Controller) DesiredLocalPosition() int64 {
	return c.desiredLocalPosition
}

// MaximumDrift exposes the configured hysteresis band.
func (c *Controller) MaximumDrift() int64 {
	return c.maximumDrift
}
