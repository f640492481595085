package analyzer

import (
	"fmt"
	"image"

	"github.com/ivlev/manhwa2video/internal/config"
)

// NewDetector creates a detector based on the specified variant
func NewDetector(variant string, params config.SegmentParams) (Detector, error) {
	switch variant {
	case "contrast", "":
		return NewContrastDetector(params), nil
	case "fullpage":
		return FullPageDetector{}, nil
	default:
		return nil, fmt.Errorf("unknown detector variant: %s", variant)
	}
}

// FullPageDetector never proposes panels, so every page falls back to a
// single full-page panel. Useful for webtoon strips without borders.
type FullPageDetector struct{}

func (FullPageDetector) Detect(image.Image) ([]Block, error) {
	return nil, nil
}
