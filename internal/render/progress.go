package render

import (
	"regexp"
	"strconv"
)

// Progress checkpoints for one render job. The transcoder's own reported
// elapsed time is remapped into the window between ProgressStart and
// progressCeiling; the first 20% is reserved for startup and the final
// slice for finalization.
const (
	ProgressStart    = 0.20
	progressCeiling  = 0.95
	ProgressFinalize = 0.99
)

// ProgressFunc receives fractional progress events in [0,1] with a short
// status message.
type ProgressFunc func(progress float64, message string)

// timePattern matches the elapsed-time token ffmpeg embeds in its periodic
// stderr status lines, e.g. "... time=00:01:23.45 bitrate=...".
var timePattern = regexp.MustCompile(`time=(\d{2}):(\d{2}):(\d{2})\.(\d+)`)

// ParseElapsed extracts the elapsed seconds from one transcoder stderr
// line. It reports false for lines without a recognizable time token.
func ParseElapsed(line string) (float64, bool) {
	m := timePattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}

	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	ss, _ := strconv.Atoi(m[3])
	frac, err := strconv.ParseFloat("0."+m[4], 64)
	if err != nil {
		frac = 0
	}

	return float64(hh)*3600 + float64(mm)*60 + float64(ss) + frac, true
}

// Monitor derives fractional completion for a single transcoder run from
// its stderr stream. One Monitor per run; its only state is the total
// duration of the base media.
type Monitor struct {
	duration float64
}

// NewMonitor returns a Monitor for a run over media of the given total
// duration in seconds. A zero or negative duration means the duration is
// unknown: Observe then never produces events, which degrades progress
// granularity but is not a failure.
func NewMonitor(duration float64) *Monitor {
	return &Monitor{duration: duration}
}

// Observe scans one stderr line and, when it carries a time token and the
// duration is known, returns the job progress mapped into the
// [ProgressStart, progressCeiling] window.
func (m *Monitor) Observe(line string) (float64, bool) {
	if m.duration <= 0 {
		return 0, false
	}

	elapsed, ok := ParseElapsed(line)
	if !ok {
		return 0, false
	}

	ratio := elapsed / m.duration
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}

	return ProgressStart + ratio*(progressCeiling-ProgressStart), true
}
