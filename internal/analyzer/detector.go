package analyzer

import "image"

// Block represents a candidate panel region in page coordinates
type Block struct {
	Rect image.Rectangle
}

// Detector finds candidate panel regions, sorted top-to-bottom
type Detector interface {
	Detect(img image.Image) ([]Block, error)
}
