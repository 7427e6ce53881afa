// Command driftlink-recv reads a driftlink wire stream from stdin and
// plays it back through a local audio device, converging effective
// one-way latency on a target the operator names on the command line
// (spec.md §6).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/pflag"

	"github.com/kgreaves/driftlink/internal/config"
	"github.com/kgreaves/driftlink/internal/device"
	"github.com/kgreaves/driftlink/internal/diag"
	"github.com/kgreaves/driftlink/internal/pump"
	"github.com/kgreaves/driftlink/internal/receiver"
	"github.com/kgreaves/driftlink/internal/wire"
)

const (
	defaultMaximumDrift  = 2048
	defaultSampleRate    = 44100
	defaultStatsInterval = 5 * time.Second
)

func main() {
	var (
		backendName   = pflag.StringP("backend", "b", "portaudio", "audio backend: portaudio or malgo")
		concealName   = pflag.StringP("conceal", "c", "silent", "concealment strategy on underrun/reset: silent or beep")
		ringSizeFlag  = pflag.StringP("ring-size", "r", "64KB", "jitter ring capacity, e.g. 64KB, 96000B")
		profilesPath  = pflag.StringP("profiles", "p", "", "optional YAML file mapping device aliases to backend/device pairs")
		timestampFmt  = pflag.StringP("timestamp-format", "T", "", "strftime format for log line timestamps (default: charmbracelet/log's own)")
		statsInterval = pflag.Duration("stats-interval", defaultStatsInterval, "interval between stderr stats summaries (0 disables)")
		maximumDrift  = pflag.Int64("max-drift", defaultMaximumDrift, "hysteresis band, in bytes, before a correction is staged")
		sampleRate    = pflag.Int("sample-rate", defaultSampleRate, "nominal sample rate in Hz")
		help          = pflag.BoolP("help", "h", false, "display help text")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - jitter-buffered PCM audio relay receiver\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] TARGET_LATENCY_SECONDS [DEVICE_NAME]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "TARGET_LATENCY_SECONDS is the effective one-way latency to converge on.\n")
		fmt.Fprintf(os.Stderr, "DEVICE_NAME, if given, is used only in diagnostic logging and, when\n")
		fmt.Fprintf(os.Stderr, "--profiles is set, as a lookup key for the backend/device pair.\n")
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	if len(pflag.Args()) < 1 || len(pflag.Args()) > 2 {
		fmt.Fprintf(os.Stderr, "Exactly one or two positional arguments required (TARGET_LATENCY_SECONDS [DEVICE_NAME]) - got %v\n", pflag.Args())
		os.Exit(1)
	}

	var targetLatency float64
	if _, err := fmt.Sscanf(pflag.Arg(0), "%g", &targetLatency); err != nil || targetLatency <= 0 {
		fmt.Fprintf(os.Stderr, "Invalid target latency %q: must be a positive number of seconds\n", pflag.Arg(0))
		os.Exit(1)
	}

	deviceName := ""
	if len(pflag.Args()) == 2 {
		deviceName = pflag.Arg(1)
	}

	logger := diag.NewLogger(deviceName, *timestampFmt)

	var ringSize datasize.ByteSize
	if err := ringSize.UnmarshalText([]byte(*ringSizeFlag)); err != nil {
		logger.Error("invalid --ring-size", "value", *ringSizeFlag, "err", err)
		os.Exit(1)
	}

	backend := *backendName
	resolvedDevice := deviceName
	if *profilesPath != "" {
		profiles, err := config.LoadProfiles(*profilesPath)
		if err != nil {
			logger.Error("loading profiles", "err", err)
			os.Exit(1)
		}
		backend, resolvedDevice = profiles.Resolve(deviceName, *backendName)
	}

	concealment := pump.ParseConcealment(*concealName)

	dev, err := openPlaybackDevice(backend, resolvedDevice, *sampleRate)
	if err != nil {
		logger.Error("opening playback device", "backend", backend, "device", resolvedDevice, "err", err)
		os.Exit(1)
	}

	rd, err := wire.NewReader(os.Stdin)
	if err != nil {
		logger.Error("setting up wire reader", "err", err)
		os.Exit(1)
	}

	rv := receiver.New(rd, dev, int(ringSize.Bytes()), *sampleRate, targetLatency, *maximumDrift, 0.0002, concealment, nil)

	warner := diag.NewThrottledWarner(logger, 10, 20)
	sampler := diag.NewLoopLagSampler(logger, 5*time.Millisecond, time.Second)

	var reporter *diag.StatsReporter
	if *statsInterval > 0 {
		reporter = diag.NewStatsReporter(logger, *statsInterval, func() diag.StatsSnapshot {
			return diag.StatsSnapshot{Stats: rv.Snapshot(), LocalPositionAvg: rv.LocalPositionAvg()}
		})
		reporter.Start()
	}

	logger.Info("receiver starting", "backend", backend, "device", resolvedDevice, "target_latency_s", targetLatency, "ring_bytes", ringSize.Bytes())

	runErr := runLoop(rv, warner, sampler)

	if reporter != nil {
		reporter.Stop()
	}
	if closeErr := rv.Close(); closeErr != nil {
		logger.Error("closing device", "err", closeErr)
	}

	if runErr != nil {
		logger.Error("fatal device error", "err", runErr)
		os.Exit(1)
	}
	logger.Info("receiver exiting cleanly on end of stream")
}

// runLoop drives the receiver's cooperative event loop (spec §5), timing
// each tick so the loop-lag sampler observes actual tick cost rather than
// event-handler cost.
func runLoop(rv *receiver.Receiver, warner *diag.ThrottledWarner, sampler *diag.LoopLagSampler) error {
	for {
		tickStart := time.Now()
		events, eof := rv.Tick()
		sampler.Observe(time.Since(tickStart), tickStart)

		for _, e := range events {
			handleEvent(warner, e)
			if e.Kind == receiver.EventFatal {
				return e.Err
			}
		}
		if eof {
			return nil
		}
		time.Sleep(receiver.TickSleep)
	}
}

func handleEvent(warner *diag.ThrottledWarner, e receiver.Event) {
	switch e.Kind {
	case receiver.EventLateDropped:
		warner.Warn(e.Message)
	case receiver.EventResync:
		warner.Warn(e.Message)
	case receiver.EventFramingError:
		warner.Warn("wire framing error", "err", e.Err)
	case receiver.EventTransientIO:
		warner.Warn("transient read error", "err", e.Err)
	case receiver.EventDeviceRecovered:
		warner.Warn("device recovery invoked", "err", e.Err)
	}
}

func openPlaybackDevice(backend, deviceName string, sampleRate int) (device.Device, error) {
	switch backend {
	case "portaudio":
		return device.OpenPortAudio(deviceName, float64(sampleRate))
	case "malgo":
		return device.OpenMalgo(deviceName, uint32(sampleRate))
	default:
		return nil, fmt.Errorf("unknown backend %q: want portaudio or malgo", backend)
	}
}
