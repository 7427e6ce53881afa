package device

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

const malgoBackendRingBytes = 64 * 1024

// Malgo is a Device backed by github.com/gen2brain/malgo (a miniaudio
// binding), following the same InitContext/DefaultDeviceConfig/InitDevice
// shape agalue-sherpa-voice-assistant/internal/audio/playback.go uses for
// TTS playback, adapted from mono float32 to stereo S16LE.
type Malgo struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	ring   *spscRing
}

// OpenMalgo opens the named playback device (empty string selects the
// miniaudio default) for two-channel S16LE output at sampleRate.
func OpenMalgo(deviceName string, sampleRate uint32) (*Malgo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: malgo init context: %v", ErrFatal, err)
	}

	m := &Malgo{ctx: ctx, ring: newSPSCRing(malgoBackendRingBytes)}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 2
	cfg.SampleRate = sampleRate
	cfg.PeriodSizeInFrames = PeriodFrames
	if deviceName != "" {
		if id, ok := findMalgoPlaybackDevice(ctx, deviceName); ok {
			cfg.Playback.DeviceID = id
		}
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			m.ring.Pop(out[:int(frameCount)*4])
		},
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("%w: malgo init device: %v", ErrFatal, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("%w: malgo start device: %v", ErrFatal, err)
	}

	m.device = dev
	return m, nil
}

func findMalgoPlaybackDevice(ctx *malgo.AllocatedContext, name string) (*malgo.DeviceID, bool) {
	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, false
	}
	for i := range infos {
		if infos[i].Name() == name {
			return &infos[i].ID, true
		}
	}
	return nil, false
}

// Writable reports free ring space in frames.
func (m *Malgo) Writable() (int, error) {
	return m.ring.Free() / 4, nil
}

// Write pushes frames worth of S16LE bytes into the adapter ring.
func (m *Malgo) Write(data []byte, frames int) (int, error) {
	want := frames * 4
	if want > len(data) {
		want = len(data)
	}
	n := m.ring.Push(data[:want])
	return n / 4, nil
}

// Recover confirms the miniaudio device is still running; like the
// PortAudio backend, the underlying device keeps pulling silence under
// starvation rather than entering an explicit fault state.
func (m *Malgo) Recover(cause error) (bool, error) {
	if m.device == nil {
		return false, fmt.Errorf("%w: no device to recover", ErrFatal)
	}
	return true, nil
}

// Close stops and releases the device and context.
func (m *Malgo) Close() error {
	if m.device != nil {
		m.device.Stop()
		m.device.Uninit()
	}
	if m.ctx != nil {
		m.ctx.Uninit()
		m.ctx.Free()
	}
	return nil
}
