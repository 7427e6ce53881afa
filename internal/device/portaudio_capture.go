package device

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

const portaudioCaptureRingBytes = 64 * 1024

// PortAudioCapture is a Capture backed by github.com/gordonklaus/portaudio,
// mirroring PortAudio's ring-adapter shape on the input side: the stream
// callback runs on PortAudio's own thread and fills the ring that Read
// drains.
type PortAudioCapture struct {
	stream *portaudio.Stream
	ring   *spscRing
}

// OpenPortAudioCapture opens the named input device (empty string selects
// the host's default) for two-channel, 16-bit signed capture at sampleRate.
func OpenPortAudioCapture(deviceName string, sampleRate float64) (*PortAudioCapture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio init: %v", ErrFatal, err)
	}

	c := &PortAudioCapture{ring: newSPSCRing(portaudioCaptureRingBytes)}

	inDev, err := resolvePortAudioInputDevice(deviceName)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrFatal, err)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   inDev,
			Channels: 2,
			Latency:  inDev.DefaultLowInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: PeriodFrames,
	}

	stream, err := portaudio.OpenStream(params, c.callback)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: open stream: %v", ErrFatal, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: start stream: %v", ErrFatal, err)
	}

	c.stream = stream
	return c, nil
}

func resolvePortAudioInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input device named %q", name)
}

// callback is invoked by PortAudio on its own thread; it must not block.
func (c *PortAudioCapture) callback(in []int16) {
	c.ring.Push(int16SliceAsBytes(in))
}

// Read drains whatever captured bytes are currently buffered.
func (c *PortAudioCapture) Read(dst []byte) (int, error) {
	return c.ring.Pop(dst), nil
}

// Close stops and releases the stream.
func (c *PortAudioCapture) Close() error {
	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	return portaudio.Terminate()
}
