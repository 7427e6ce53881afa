package diag

import (
	"time"

	"github.com/kgreaves/driftlink/internal/receiver"
)

// StatsSnapshot is a point-in-time copy of receiver.Stats plus the
// latency metrics a --stats-interval line reports (SPEC_FULL supplemented
// feature 2).
type StatsSnapshot struct {
	receiver.Stats
	LocalPositionAvg float64
}

// StatsReporter logs one summary line every interval, via the given
// logger, until Stop is called.
type StatsReporter struct {
	logger   *Logger
	interval time.Duration
	snapshot func() StatsSnapshot

	lastPlaced  uint64
	lastDropped uint64
	lastResyncs uint64
	lastTick    time.Time
	ticker      *time.Ticker
	done        chan struct{}
}

// NewStatsReporter builds a reporter that calls snapshot on each tick.
func NewStatsReporter(logger *Logger, interval time.Duration, snapshot func() StatsSnapshot) *StatsReporter {
	return &StatsReporter{
		logger:   logger,
		interval: interval,
		snapshot: snapshot,
		lastTick: time.Now(),
		done:     make(chan struct{}),
	}
}

// Start runs the periodic reporting loop in its own goroutine. This is the
// one place in the module a goroutine is appropriate: it is purely an
// observability side channel, not part of the cooperative event loop (spec
// §5's single-threaded loop owns the audio path; this owns stderr lines).
func (s *StatsReporter) Start() {
	s.ticker = time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.report()
			case <-s.done:
				return
			}
		}
	}()
}

func (s *StatsReporter) report() {
	snap := s.snapshot()
	elapsed := time.Since(s.lastTick).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}

	placedRate := float64(snap.Placed-s.lastPlaced) / elapsed
	droppedRate := float64(snap.DroppedLate-s.lastDropped) / elapsed
	resyncDelta := snap.Resyncs - s.lastResyncs

	s.logger.Info("stats",
		"placed_per_sec", placedRate,
		"dropped_late_per_sec", droppedRate,
		"resyncs", resyncDelta,
		"local_position_avg", snap.LocalPositionAvg,
	)

	s.lastPlaced = snap.Placed
	s.lastDropped = snap.DroppedLate
	s.lastResyncs = snap.Resyncs
	s.lastTick = time.Now()
}

// Stop halts the reporting loop.
func (s *StatsReporter) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.done)
}
