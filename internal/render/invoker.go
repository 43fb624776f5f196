package render

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"driplink/internal/overlay"
	"driplink/internal/pkg/errors"
	"driplink/internal/pkg/logger"
)

// Invoker runs the external ffmpeg/ffprobe binaries. It owns the process
// contract: argument layout, duration probing, and streaming the stderr
// diagnostic channel into a progress Monitor.
type Invoker struct {
	ffmpeg  string
	ffprobe string
	log     *logger.Logger
}

// NewInvoker creates an Invoker for the given binaries. Empty binary paths
// default to "ffmpeg" and "ffprobe" on PATH.
func NewInvoker(ffmpeg, ffprobe string, log *logger.Logger) *Invoker {
	if strings.TrimSpace(ffmpeg) == "" {
		ffmpeg = "ffmpeg"
	}
	if strings.TrimSpace(ffprobe) == "" {
		ffprobe = "ffprobe"
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Invoker{
		ffmpeg:  ffmpeg,
		ffprobe: ffprobe,
		log:     log.WithComponent("render"),
	}
}

// Check verifies both external binaries are resolvable. Used by the health
// endpoint.
func (inv *Invoker) Check() error {
	if _, err := exec.LookPath(inv.ffmpeg); err != nil {
		return errors.Wrap(err, "render.check", "ffmpeg binary not found")
	}
	if _, err := exec.LookPath(inv.ffprobe); err != nil {
		return errors.Wrap(err, "render.check", "ffprobe binary not found")
	}
	return nil
}

// BuildArgs constructs the ffmpeg argument slice for a compiled graph. With
// a filter graph present the final video label is mapped explicitly along
// with a best-effort audio stream from input 0, and -shortest truncates to
// the shortest mapped stream. Without one (no overlays survived
// compilation) the base video is re-encoded directly. Output is always
// re-encoded with a fixed quality policy; overlay compositing rules out
// stream copy.
func BuildArgs(g Graph, outputPath string) []string {
	args := []string{"-y"}
	for _, in := range g.Inputs {
		args = append(args, "-i", in)
	}

	if g.FilterComplex != "" {
		args = append(args,
			"-filter_complex", g.FilterComplex,
			"-map", g.OutputLabel,
			"-map", "0:a?",
			"-c:v", "libx264",
			"-preset", "medium",
			"-crf", "23",
			"-c:a", "aac",
			"-shortest",
		)
	} else {
		args = append(args,
			"-c:v", "libx264",
			"-preset", "medium",
			"-crf", "23",
			"-c:a", "aac",
		)
	}

	return append(args, outputPath)
}

// ProbeDuration queries the media's duration in seconds. ffprobe may
// report one value per stream plus the container's; the maximum wins.
func (inv *Invoker) ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, inv.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration:stream=duration",
		"-of", "default=nokey=1:noprint_wrappers=1",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %q: %w", path, err)
	}

	var duration float64
	found := false
	for _, line := range strings.Split(string(out), "\n") {
		v, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
		if err != nil {
			continue
		}
		if !found || v > duration {
			duration = v
			found = true
		}
	}
	if !found {
		return 0, fmt.Errorf("ffprobe %q: no parsable duration", path)
	}
	return duration, nil
}

// Render compiles the overlay list and runs the transcoder. It satisfies
// the renderer contract the job manager depends on.
func (inv *Invoker) Render(ctx context.Context, inputPath string, overlays []overlay.Overlay, assets map[string]string, outputPath string, sink ProgressFunc) error {
	g := Compile(inputPath, overlays, assets)
	return inv.Run(ctx, g, outputPath, sink)
}

// Run executes a compiled graph. It probes the base input's duration
// (tolerating failure), emits the fixed start marker, launches ffmpeg,
// streams stderr line-by-line into a Monitor forwarding events to sink,
// and blocks until exit. A non-zero exit is a generic failure: stderr has
// already been consumed for progress parsing, so no diagnostic detail is
// recaptured.
func (inv *Invoker) Run(ctx context.Context, g Graph, outputPath string, sink ProgressFunc) error {
	if len(g.Inputs) == 0 {
		return errors.Internal("graph has no inputs")
	}
	if sink == nil {
		sink = func(float64, string) {}
	}

	sink(ProgressStart, "Invoking ffmpeg")

	duration, err := inv.ProbeDuration(ctx, g.Inputs[0])
	if err != nil {
		// Unknown duration only coarsens progress reporting.
		inv.log.Warn("duration probe failed, progress will be coarse",
			"input", g.Inputs[0],
			"error", err.Error(),
		)
		duration = 0
	}

	args := BuildArgs(g, outputPath)
	inv.log.Debug("launching ffmpeg", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, inv.ffmpeg, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "render.run", "open stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "render.run", "start ffmpeg")
	}

	monitor := NewMonitor(duration)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	// ffmpeg terminates its periodic status updates with \r, not \n.
	scanner.Split(scanStatusLines)
	for scanner.Scan() {
		if p, ok := monitor.Observe(scanner.Text()); ok {
			sink(p, "Rendering")
		}
	}
	if err := scanner.Err(); err != nil {
		// An oversized line aborts the scan; keep draining so ffmpeg
		// cannot block on a full stderr pipe before Wait.
		inv.log.Warn("stderr scan aborted, progress stops updating", "error", err.Error())
		_, _ = io.Copy(io.Discard, stderr)
	}

	if err := cmd.Wait(); err != nil {
		return errors.Wrap(err, "render.run", "ffmpeg failed (see server logs for details)")
	}

	sink(ProgressFinalize, "Finalizing")
	return nil
}

// scanStatusLines is a bufio.SplitFunc treating both \n and \r as line
// terminators.
func scanStatusLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
