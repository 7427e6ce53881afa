package pump

// Concealment selects the filler strategy painted over vacated ring bytes
// and during a resync (spec §4.4).
type Concealment int

const (
	// Silent fills with the exact preceding byte value: an audible hold
	// rather than a click. This is the default.
	Silent Concealment = iota
	// Beep alternates every fourth byte by +/-4 units, producing a
	// low-amplitude square tone audible but not painful. Useful for
	// debugging. Spec §9 notes this mode's mathematical form is carried
	// over unverified for every possible reference byte value.
	Beep
)

// String renders the concealment mode the way it is named on the CLI.
func (c Concealment) String() string {
	switch c {
	case Beep:
		return "beep"
	default:
		return "silent"
	}
}

// ParseConcealment parses a CLI/config value into a Concealment, defaulting
// to Silent for anything unrecognised.
func ParseConcealment(s string) Concealment {
	if s == "beep" {
		return Beep
	}
	return Silent
}

// concealer adapts a Concealment mode to the ring.Concealer interface.
type concealer struct {
	mode Concealment
}

// NewConcealer builds a ring.Concealer for the given mode.
func NewConcealer(mode Concealment) *concealer {
	return &concealer{mode: mode}
}

// Conceal paints dst in place, per spec §4.4: silent mode repeats
// reference; beep mode perturbs the low byte of every left-channel sample
// (every fourth byte, starting at offset 0) by +/-4, the direction chosen
// by treating reference as a signed byte, mirroring the original
// failureSound's `reference > 0` branch exactly (spec §9).
func (c *concealer) Conceal(dst []byte, reference byte) {
	switch c.mode {
	case Beep:
		concealBeep(dst, reference)
	default:
		concealSilent(dst, reference)
	}
}

func concealSilent(dst []byte, reference byte) {
	for i := range dst {
		dst[i] = reference
	}
}

func concealBeep(dst []byte, reference byte) {
	signedRef := int8(reference)
	delta := int16(4)
	if signedRef > 0 {
		delta = -4
	}
	for i := range dst {
		if i%4 == 0 {
			dst[i] = byte(int16(signedRef) + delta)
		} else {
			dst[i] = reference
		}
	}
}
