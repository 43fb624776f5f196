package render

import (
	"bufio"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"driplink/internal/pkg/logger"
)

func TestBuildArgsWithGraph(t *testing.T) {
	g := Graph{
		Inputs:        []string{"/data/in.mp4", "/data/logo.png"},
		FilterComplex: "[1:v][0:v]scale2ref=w=main_w*0.25:h=main_h*0.25:flags=bilinear[scaled0][base0];[base0][scaled0]overlay=x=main_w*0.05:y=main_h*0.05:enable='between(t,0,10)'[v1]",
		OutputLabel:   "[v1]",
	}

	got := BuildArgs(g, "/data/out.mp4")
	want := []string{
		"-y",
		"-i", "/data/in.mp4",
		"-i", "/data/logo.png",
		"-filter_complex", g.FilterComplex,
		"-map", "[v1]",
		"-map", "0:a?",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "aac",
		"-shortest",
		"/data/out.mp4",
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("args mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestBuildArgsWithoutGraph(t *testing.T) {
	g := Graph{Inputs: []string{"/data/in.mp4"}}

	got := BuildArgs(g, "/data/out.mp4")
	want := []string{
		"-y",
		"-i", "/data/in.mp4",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "aac",
		"/data/out.mp4",
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("args mismatch:\n got %v\nwant %v", got, want)
	}

	for _, flag := range []string{"-filter_complex", "-map", "-shortest"} {
		for _, a := range got {
			if a == flag {
				t.Errorf("flag %s must be absent without a filter graph", flag)
			}
		}
	}
}

func TestBuildArgsOutputLast(t *testing.T) {
	g := Graph{Inputs: []string{"a.mp4", "b.png", "c.mp4"}, FilterComplex: "x", OutputLabel: "[v1]"}
	args := BuildArgs(g, "final.mp4")
	if args[len(args)-1] != "final.mp4" {
		t.Errorf("output path must be the last argument, got %v", args)
	}
}

func TestScanStatusLines(t *testing.T) {
	// ffmpeg writes header lines with \n and periodic status lines with \r.
	input := "Stream mapping:\n  Stream #0:0 -> #0:0\ntime=00:00:01.00 speed=1x\rtime=00:00:02.00 speed=1x\rtail"

	s := bufio.NewScanner(strings.NewReader(input))
	s.Split(scanStatusLines)

	var lines []string
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	if err := s.Err(); err != nil {
		t.Fatalf("scan error: %v", err)
	}

	want := []string{
		"Stream mapping:",
		"  Stream #0:0 -> #0:0",
		"time=00:00:01.00 speed=1x",
		"time=00:00:02.00 speed=1x",
		"tail",
	}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("lines mismatch:\n got %q\nwant %q", lines, want)
	}
}

func TestNewInvokerDefaults(t *testing.T) {
	inv := NewInvoker("", "", nil)
	if inv.ffmpeg != "ffmpeg" || inv.ffprobe != "ffprobe" {
		t.Errorf("expected PATH defaults, got %q / %q", inv.ffmpeg, inv.ffprobe)
	}

	inv = NewInvoker("/opt/ffmpeg/bin/ffmpeg", "/opt/ffmpeg/bin/ffprobe", nil)
	if inv.ffmpeg != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("explicit binary path not kept: %q", inv.ffmpeg)
	}
}

func TestInvokerCheckMissingBinary(t *testing.T) {
	inv := NewInvoker("definitely-not-a-real-transcoder-binary", "also-not-real", nil)
	if err := inv.Check(); err == nil {
		t.Error("expected an error for unresolvable binaries")
	}
}

// writeStub drops an executable shell script standing in for a transcoder
// binary.
func writeStub(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func stubInvoker(t *testing.T, ffmpegScript, ffprobeScript string) *Invoker {
	t.Helper()
	dir := t.TempDir()
	ffmpeg := writeStub(t, dir, "ffmpeg", ffmpegScript)
	ffprobe := writeStub(t, dir, "ffprobe", ffprobeScript)
	log := logger.New(logger.Config{Level: "error", Format: "json", Output: io.Discard})
	return NewInvoker(ffmpeg, ffprobe, log)
}

type progressEvent struct {
	progress float64
	message  string
}

func collectRun(t *testing.T, inv *Invoker, g Graph) ([]progressEvent, error) {
	t.Helper()
	var events []progressEvent
	sink := func(p float64, msg string) {
		events = append(events, progressEvent{p, msg})
	}
	err := inv.Run(context.Background(), g, filepath.Join(t.TempDir(), "out.mp4"), sink)
	return events, err
}

func TestRunUnknownDurationEmitsOnlyMarkers(t *testing.T) {
	inv := stubInvoker(t,
		`echo "time=00:00:01.00 speed=1x" >&2`,
		`exit 1`,
	)

	events, err := collectRun(t, inv, Graph{Inputs: []string{"in.mp4"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []progressEvent{
		{ProgressStart, "Invoking ffmpeg"},
		{ProgressFinalize, "Finalizing"},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want exactly %v", events, want)
	}
}

func TestRunKnownDurationForwardsProgress(t *testing.T) {
	inv := stubInvoker(t,
		`echo "time=00:00:05.00 speed=1x" >&2`,
		`echo "10.0"`,
	)

	events, err := collectRun(t, inv, Graph{Inputs: []string{"in.mp4"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("expected start, render, finalize events, got %v", events)
	}
	if events[0].progress != ProgressStart || events[2].progress != ProgressFinalize {
		t.Errorf("markers wrong: %v", events)
	}
	mid := events[1]
	if mid.message != "Rendering" || math.Abs(mid.progress-0.575) > 1e-9 {
		t.Errorf("mid event = %v, want 0.575 Rendering", mid)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	inv := stubInvoker(t,
		`echo "broken pipe somewhere" >&2
exit 1`,
		`echo "10.0"`,
	)

	events, err := collectRun(t, inv, Graph{Inputs: []string{"in.mp4"}})
	if err == nil {
		t.Fatal("expected an error for a non-zero exit")
	}
	if !strings.Contains(err.Error(), "ffmpeg failed") {
		t.Errorf("error = %v, should describe the transcoder failure", err)
	}
	for _, e := range events {
		if e.progress == ProgressFinalize {
			t.Errorf("finalize marker must not fire on failure: %v", events)
		}
	}
}

func TestRunSurvivesOversizedStderrLine(t *testing.T) {
	// A single stderr line over the scanner cap stops progress parsing;
	// the run must still drain the pipe and finish cleanly.
	inv := stubInvoker(t,
		`head -c 2097152 /dev/zero | tr '\0' 'a' >&2
echo >&2
exit 0`,
		`echo "10.0"`,
	)

	events, err := collectRun(t, inv, Graph{Inputs: []string{"in.mp4"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) == 0 || events[len(events)-1].progress != ProgressFinalize {
		t.Errorf("run should finalize after an aborted scan, got %v", events)
	}
}

func TestProbeDurationTakesMaximum(t *testing.T) {
	inv := stubInvoker(t, `exit 0`, `printf '10.0\n12.5\nN/A\n'`)

	d, err := inv.ProbeDuration(context.Background(), "in.mp4")
	if err != nil {
		t.Fatalf("ProbeDuration: %v", err)
	}
	if d != 12.5 {
		t.Errorf("duration = %v, want 12.5", d)
	}
}

func TestProbeDurationNoParsableValue(t *testing.T) {
	inv := stubInvoker(t, `exit 0`, `echo "N/A"`)

	if _, err := inv.ProbeDuration(context.Background(), "in.mp4"); err == nil {
		t.Error("expected an error when no duration parses")
	}
}
