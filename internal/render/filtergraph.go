// Package render compiles overlay metadata into an ffmpeg filter graph and
// supervises the transcoder process that executes it.
package render

import (
	"fmt"
	"strconv"
	"strings"

	"driplink/internal/overlay"
)

// Graph is the compiled transcoder invocation plan for one render: the
// ordered input files (base video always first), the filter_complex
// expression threading every overlay stage, and the label of the final
// video stream. FilterComplex and OutputLabel are empty when no overlay
// produced a stage; the invoker then falls back to a direct re-encode.
type Graph struct {
	Inputs        []string
	FilterComplex string
	OutputLabel   string
}

// Compile translates an ordered overlay list into a Graph. It is pure:
// same inputs, same graph. Overlay order is compositing order; each stage
// consumes the current stream label and produces the next one, so overlays
// are layered strictly sequentially.
//
// Image and video overlays name their source file through the assets map
// (uploaded filename -> stored path); an unmapped content value is used as
// a path verbatim. Overlays of unknown type, and image/video overlays whose
// id gained no input slot, are skipped without error so partially
// unsupported metadata still renders.
func Compile(inputPath string, overlays []overlay.Overlay, assets map[string]string) Graph {
	inputs := []string{inputPath}

	// Every image/video overlay contributes one input, in list order.
	// Input 0 is the base video, so overlay inputs start at 1. On duplicate
	// ids the first occurrence wins the id -> input mapping.
	inputIndex := make(map[string]int)
	for _, ov := range overlays {
		if !ov.Type.NeedsInput() {
			continue
		}
		path := ov.Content
		if resolved, ok := assets[ov.Content]; ok {
			path = resolved
		}
		inputs = append(inputs, path)
		if _, seen := inputIndex[ov.ID]; !seen {
			inputIndex[ov.ID] = len(inputs) - 1
		}
	}

	var parts []string
	last := "[0:v]"
	chain := 0

	nextLabel := func() string {
		chain++
		return fmt.Sprintf("[v%d]", chain)
	}

	for _, ov := range overlays {
		// Positions and sizes arrive as percentages of the base video and
		// are emitted as main_w/main_h expressions, so one graph works for
		// any input resolution.
		xExpr := "main_w*" + num(ov.Position.X/100)
		yExpr := "main_h*" + num(ov.Position.Y/100)
		enable := fmt.Sprintf("enable='between(t,%s,%s)'", num(ov.Timing.Start), num(ov.Timing.End))

		switch ov.Type {
		case overlay.TypeText, overlay.TypeSticker:
			// Sticker content is emoji glyphs; drawtext renders both.
			stage := fmt.Sprintf(
				"%sdrawtext=text='%s':fontsize=main_h*%s*0.8:fontcolor=white:borderw=2:bordercolor=black@0.8:x=%s:y=%s:%s",
				last, EscapeText(ov.Content), num(ov.Size.Height/100), xExpr, yExpr, enable,
			)
			label := nextLabel()
			parts = append(parts, stage+label)
			last = label

		case overlay.TypeImage, overlay.TypeVideo:
			idx, ok := inputIndex[ov.ID]
			if !ok {
				continue
			}
			src := fmt.Sprintf("[%d:v]", idx)

			// Video overlays may carry trimmed timestamps; rebase to zero
			// so the enable window lines up with the base timeline.
			if ov.Type == overlay.TypeVideo {
				pts := fmt.Sprintf("[pts%d]", chain)
				parts = append(parts, src+"setpts=PTS-STARTPTS"+pts)
				src = pts
			}

			// scale2ref gives the filter access to the base stream's real
			// dimensions. The requested width/height are exact; aspect
			// ratio is intentionally not preserved.
			scaled := fmt.Sprintf("[scaled%d]", chain)
			baseRef := fmt.Sprintf("[base%d]", chain)
			parts = append(parts, fmt.Sprintf(
				"%s%sscale2ref=w=main_w*%s:h=main_h*%s:flags=bilinear%s%s",
				src, last, num(ov.Size.Width/100), num(ov.Size.Height/100), scaled, baseRef,
			))

			label := nextLabel()
			parts = append(parts, fmt.Sprintf(
				"%s%soverlay=x=%s:y=%s:%s%s",
				baseRef, scaled, xExpr, yExpr, enable, label,
			))
			last = label

		default:
			// Unknown overlay type: skip, don't fail.
		}
	}

	if len(parts) == 0 {
		return Graph{Inputs: inputs}
	}

	return Graph{
		Inputs:        inputs,
		FilterComplex: strings.Join(parts, ";"),
		OutputLabel:   last,
	}
}

// EscapeText escapes drawtext content for the filter graph description
// language: backslash, single quote, colon and percent are each significant
// there.
func EscapeText(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return r.Replace(s)
}

// num formats a float the way the graph language expects: shortest exact
// decimal form, no trailing zeros (1 not 1.0, 0.1 not 0.10).
func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
