// Package overlay defines the timed compositing elements a client layers
// onto a base video, and the decoding of the metadata document that carries
// them.
package overlay

import (
	"encoding/json"
	"strings"

	"driplink/internal/pkg/errors"
)

// Type identifies how an overlay is rendered. Unknown values are tolerated
// by the compiler (the overlay is skipped), so new kinds can appear in
// client metadata without breaking older servers.
type Type string

const (
	TypeText    Type = "text"
	TypeSticker Type = "sticker"
	TypeImage   Type = "image"
	TypeVideo   Type = "video"
)

// NeedsInput reports whether this overlay type contributes its own
// transcoder input (image and video overlays are read from a file; text and
// sticker overlays are drawn directly).
func (t Type) NeedsInput() bool {
	return t == TypeImage || t == TypeVideo
}

// Position is the top-left anchor of an overlay, in percent (0-100) of the
// base video's width and height.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is the overlay's extent, in percent (0-100) of the base video's
// width and height. Text overlays only use Height, which drives font scale.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Timing is the visibility window on the base video's timeline, in seconds.
type Timing struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Overlay is one compositing element.
type Overlay struct {
	ID       string   `json:"id"`
	Type     Type     `json:"type"`
	Content  string   `json:"content"`
	Position Position `json:"position"`
	Size     Size     `json:"size"`
	Timing   Timing   `json:"timing"`
}

// Metadata is the ordered overlay list attached to an upload. List order is
// compositing order: later entries render on top.
type Metadata struct {
	Overlays []Overlay `json:"overlays"`
}

// DecodeMetadata parses and validates the metadata JSON document supplied
// with an upload. Validation is structural: every overlay needs an id and a
// type, and text content must be present for text/sticker overlays. Range
// checks on position/size/timing are deliberately not performed here; the
// compiler treats those values as expressions, not pixel counts.
func DecodeMetadata(raw []byte) (Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, errors.WrapWithCode(err, errors.CodeValidation, "overlay.decode", "invalid metadata JSON")
	}

	for i, ov := range meta.Overlays {
		if strings.TrimSpace(ov.ID) == "" {
			return Metadata{}, errors.Validationf("overlays[%d]: id is required", i)
		}
		if strings.TrimSpace(string(ov.Type)) == "" {
			return Metadata{}, errors.Validationf("overlays[%d]: type is required", i)
		}
		if ov.Type.NeedsInput() && strings.TrimSpace(ov.Content) == "" {
			return Metadata{}, errors.Validationf("overlays[%d]: content is required for %s overlays", i, ov.Type)
		}
	}

	return meta, nil
}
