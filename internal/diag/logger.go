// Package diag provides the structured logger, rate-limited warning path,
// periodic stats reporter, and loop-lag sampler a running receiver or
// sender reports through (spec §7's diagnostics, SPEC_FULL's ambient and
// domain stack additions). Everything here writes to stderr only; stdout
// is reserved for the wire stream (spec §7).
package diag

import (
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	"golang.org/x/time/rate"
)

// Logger wraps charmbracelet/log with an optional operator-chosen
// timestamp format. charmbracelet/log's own TimeFormat only accepts a Go
// reference-time layout, so an explicit --timestamp-format (src/kissutil.go's
// -T flag) is rendered ahead of time with strftime.Format and passed
// through as a field, the same way src/xmit.go and src/tq.go call
// strftime.Format directly rather than time.Format for the identical
// timestamp-format option.
type Logger struct {
	base  *charmlog.Logger
	tsFmt string
}

// NewLogger builds the process logger. prefix is typically the optional
// second CLI positional argument (spec §6), used to tell multiple
// concurrent instances apart in shared log output; an empty prefix is
// fine and simply omits the field. An empty timestampFormat keeps
// charmbracelet's own millisecond-precision timestamp; otherwise
// timestampFormat is a strftime pattern rendered fresh on every line.
func NewLogger(prefix, timestampFormat string) *Logger {
	base := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: timestampFormat == "",
		TimeFormat:      time.StampMilli,
	})
	if prefix != "" {
		base = base.With("instance", prefix)
	}
	return &Logger{base: base, tsFmt: timestampFormat}
}

// withTimestamp prepends a freshly rendered "time" field when the operator
// chose a strftime format; a pattern error is swallowed and the line is
// logged without it rather than losing the diagnostic entirely.
func (l *Logger) withTimestamp(keyvals []interface{}) []interface{} {
	if l.tsFmt == "" {
		return keyvals
	}
	ts, err := strftime.Format(l.tsFmt, time.Now())
	if err != nil {
		return keyvals
	}
	return append([]interface{}{"time", ts}, keyvals...)
}

// Info logs at info level.
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.base.Info(msg, l.withTimestamp(keyvals)...)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.base.Warn(msg, l.withTimestamp(keyvals)...)
}

// Error logs at error level.
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.base.Error(msg, l.withTimestamp(keyvals)...)
}

// ThrottledWarner rate-limits a noisy diagnostic path — late-packet drops
// and resyncs can fire many times a second on a bad link, and logging
// every one of them would itself cost latency (SPEC_FULL's "diagnostic log
// throttling" domain-stack entry). Excess events are counted and folded
// into the next line that does get through.
type ThrottledWarner struct {
	logger  *Logger
	limiter *rate.Limiter
	dropped int
}

// NewThrottledWarner allows at most ratePerSecond log lines per second,
// bursting up to burst at once.
func NewThrottledWarner(logger *Logger, ratePerSecond float64, burst int) *ThrottledWarner {
	return &ThrottledWarner{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Warn logs msg at Warn level if the rate budget allows it; otherwise it
// silently counts the suppression so the next successful call can report
// how many were dropped.
func (w *ThrottledWarner) Warn(msg string, keyvals ...interface{}) {
	if !w.limiter.Allow() {
		w.dropped++
		return
	}
	if w.dropped > 0 {
		keyvals = append(keyvals, "suppressed_since_last", w.dropped)
		w.dropped = 0
	}
	w.logger.Warn(msg, keyvals...)
}
