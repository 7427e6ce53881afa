package device

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

const malgoCaptureRingBytes = 64 * 1024

// MalgoCapture is a Capture backed by github.com/gen2brain/malgo, the
// input-side counterpart to Malgo.
type MalgoCapture struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	ring   *spscRing
}

// OpenMalgoCapture opens the named capture device (empty string selects
// the miniaudio default) for two-channel S16LE input at sampleRate.
func OpenMalgoCapture(deviceName string, sampleRate uint32) (*MalgoCapture, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: malgo init context: %v", ErrFatal, err)
	}

	c := &MalgoCapture{ctx: ctx, ring: newSPSCRing(malgoCaptureRingBytes)}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 2
	cfg.SampleRate = sampleRate
	cfg.PeriodSizeInFrames = PeriodFrames
	if deviceName != "" {
		if id, ok := findMalgoCaptureDevice(ctx, deviceName); ok {
			cfg.Capture.DeviceID = id
		}
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, frameCount uint32) {
			c.ring.Push(in[:int(frameCount)*4])
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

	c.device = dev
	return c, nil
}

func findMalgoCaptureDevice(ctx *malgo.AllocatedContext, name string) (*malgo.DeviceID, bool) {
	infos, err := ctx.Devices(malgo.Capture)
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

// Read drains whatever captured bytes are currently buffered.
func (c *MalgoCapture) Read(dst []byte) (int, error) {
	return c.ring.Pop(dst), nil
}

// Close stops and releases the device and context.
func (c *MalgoCapture) Close() error {
	if c.device != nil {
		c.device.Stop()
		c.device.Uninit()
	}
	if c.ctx != nil {
		c.ctx.Uninit()
		c.ctx.Free()
	}
	return nil
}
