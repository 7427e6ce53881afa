package diag

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// LoopLagSampler watches the cooperative event loop's own tick duration
// and, once a second, cross-references it against the process's CPU
// percentage: a soft-real-time loop that is silently falling behind the
// host scheduler is the failure mode operators most need surfaced (spec
// §2's "soft-real-time" framing).
type LoopLagSampler struct {
	logger    *Logger
	threshold time.Duration
	proc      *process.Process

	windowStart   time.Time
	worstTick     time.Duration
	samplePeriod  time.Duration
	lastSampledAt time.Time
}

// NewLoopLagSampler builds a sampler that warns when a single tick exceeds
// threshold, checking the process's CPU usage at most once per
// samplePeriod. If the process handle cannot be obtained, CPU percentage
// is simply omitted from the log line rather than treated as fatal.
func NewLoopLagSampler(logger *Logger, threshold, samplePeriod time.Duration) *LoopLagSampler {
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &LoopLagSampler{
		logger:       logger,
		threshold:    threshold,
		proc:         proc,
		samplePeriod: samplePeriod,
	}
}

// Observe records one tick's wall-clock duration, logging a warning (with
// CPU percentage, if available) the first time in a sample window that a
// tick exceeds the configured threshold.
func (s *LoopLagSampler) Observe(tickDuration time.Duration, now time.Time) {
	if tickDuration <= s.threshold {
		return
	}
	if now.Sub(s.lastSampledAt) < s.samplePeriod {
		return
	}
	s.lastSampledAt = now

	var cpuPercent float64
	if s.proc != nil {
		if pct, err := s.proc.CPUPercent(); err == nil {
			cpuPercent = pct
		}
	}

	s.logger.Warn("event loop tick exceeded threshold",
		"tick_duration", tickDuration,
		"threshold", s.threshold,
		"process_cpu_percent", cpuPercent,
	)
}
