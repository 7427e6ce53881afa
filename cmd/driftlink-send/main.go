// Command driftlink-send captures PCM audio from a local input device and
// writes a driftlink wire stream to stdout: a thin adapter that tags each
// captured chunk with a monotonic byte position and a wall-clock
// nanosecond timestamp (spec.md §6's wire contract is this command's
// entire specification).
package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kgreaves/driftlink/internal/device"
	"github.com/kgreaves/driftlink/internal/diag"
	"github.com/kgreaves/driftlink/internal/wire"
)

const (
	defaultSampleRate = 44100
	chunkFrames       = device.PeriodFrames * 4
	pollSleep         = 5 * time.Millisecond
)

func main() {
	var (
		backendName  = pflag.StringP("backend", "b", "portaudio", "audio backend: portaudio or malgo")
		sampleRate   = pflag.Int("sample-rate", defaultSampleRate, "nominal sample rate in Hz")
		timestampFmt = pflag.StringP("timestamp-format", "T", "", "strftime format for log line timestamps (default: charmbracelet/log's own)")
		help         = pflag.BoolP("help", "h", false, "display help text")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - jitter-buffered PCM audio relay sender\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] [DEVICE_NAME]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "DEVICE_NAME, if given, names the capture device; otherwise the host\n")
		fmt.Fprintf(os.Stderr, "default input is used. Output is a driftlink wire stream on stdout.\n")
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}
	if len(pflag.Args()) > 1 {
		fmt.Fprintf(os.Stderr, "At most one positional argument (DEVICE_NAME) - got %v\n", pflag.Args())
		os.Exit(1)
	}

	deviceName := ""
	if len(pflag.Args()) == 1 {
		deviceName = pflag.Arg(0)
	}

	logger := diag.NewLogger(deviceName, *timestampFmt)

	capDev, err := openCaptureDevice(*backendName, deviceName, *sampleRate)
	if err != nil {
		logger.Error("opening capture device", "backend", *backendName, "device", deviceName, "err", err)
		os.Exit(1)
	}
	defer capDev.Close()

	out := bufio.NewWriterSize(os.Stdout, 1<<16)
	defer out.Flush()

	logger.Info("sender starting", "backend", *backendName, "device", deviceName, "sample_rate", *sampleRate)

	if err := run(capDev, out); err != nil {
		logger.Error("sender exiting on error", "err", err)
		os.Exit(1)
	}
}

// run polls the capture device in a tight, non-blocking loop and frames
// whatever it reads, respecting the wire contract's strictly-monotone,
// no-gap position invariant (spec.md §6): each packet's position is the
// previous packet's position plus its payload length.
func run(capDev device.Capture, out *bufio.Writer) error {
	var position uint64
	buf := make([]byte, chunkFrames)
	var encoded []byte

	for {
		n, err := capDev.Read(buf)
		if err != nil {
			return fmt.Errorf("capture read: %w", err)
		}

		// The ring's atomic head/tail counters only guarantee frame
		// alignment across a push; a drain can still land mid-frame, so
		// round down to preserve the wire's frame-alignment invariant.
		usable := n - n%wire.FrameBytes
		if usable == 0 {
			time.Sleep(pollSleep)
			continue
		}

		packet := wire.Packet{
			Position: position,
			Time:     uint64(time.Now().UnixNano()),
			Payload:  buf[:usable],
		}
		encoded = wire.Encode(encoded[:0], packet)
		if _, err := out.Write(encoded); err != nil {
			return fmt.Errorf("writing wire stream: %w", err)
		}
		if err := out.Flush(); err != nil {
			return fmt.Errorf("flushing wire stream: %w", err)
		}

		position += uint64(usable)
		time.Sleep(pollSleep)
	}
}

func openCaptureDevice(backend, deviceName string, sampleRate int) (device.Capture, error) {
	switch backend {
	case "portaudio":
		return device.OpenPortAudioCapture(deviceName, float64(sampleRate))
	case "malgo":
		return device.OpenMalgoCapture(deviceName, uint32(sampleRate))
	default:
		return nil, fmt.Errorf("unknown backend %q: want portaudio or malgo", backend)
	}
}
