package device

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// portaudioBackendRingBytes sizes the adapter ring comfortably above one
// device period so the callback never starves under ordinary scheduling
// jitter.
const portaudioBackendRingBytes = 64 * 1024

// PortAudio is a Device backed by github.com/gordonklaus/portaudio. Its
// stream callback runs on PortAudio's own audio thread and drains an
// internal lock-free ring that Write feeds, so Writable/Write never block
// the cooperative event loop (spec §4.4, §5).
type PortAudio struct {
	stream *portaudio.Stream
	ring   *spscRing
}

// OpenPortAudio opens the named output device (empty string selects the
// host's default) for two-channel, 16-bit signed, sampleRate playback.
func OpenPortAudio(deviceName string, sampleRate float64) (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio init: %v", ErrFatal, err)
	}

	p := &PortAudio{ring: newSPSCRing(portaudioBackendRingBytes)}

	outDev, err := resolvePortAudioDevice(deviceName)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrFatal, err)
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   outDev,
			Channels: 2,
			Latency:  outDev.DefaultLowOutputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: PeriodFrames,
	}

	stream, err := portaudio.OpenStream(params, p.callback)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: open stream: %v", ErrFatal, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: start stream: %v", ErrFatal, err)
	}

	p.stream = stream
	return p, nil
}

func resolvePortAudioDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		return portaudio.DefaultOutputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name == name && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no output device named %q", name)
}

// callback is invoked by PortAudio on its own thread; it must not block.
func (p *PortAudio) callback(out []int16) {
	bytes := int16SliceAsBytes(out)
	p.ring.Pop(bytes)
}

// Writable reports free ring space in frames.
func (p *PortAudio) Writable() (int, error) {
	return p.ring.Free() / 4, nil
}

// Write pushes frames worth of S16LE bytes into the adapter ring.
func (p *PortAudio) Write(data []byte, frames int) (int, error) {
	want := frames * 4
	if want > len(data) {
		want = len(data)
	}
	n := p.ring.Push(data[:want])
	return n / 4, nil
}

// Recover restarts the stream after an underrun; PortAudio's callback
// model means the device itself keeps running (emitting silence) under
// starvation, so recovery here just confirms the stream is still active.
func (p *PortAudio) Recover(cause error) (bool, error) {
	if p.stream == nil {
		return false, fmt.Errorf("%w: no stream to recover", ErrFatal)
	}
	return true, nil
}

// Close stops and releases the stream.
func (p *PortAudio) Close() error {
	if p.stream != nil {
		p.stream.Stop()
		p.stream.Close()
	}
	return portaudio.Terminate()
}
