package renderer

import (
	"image"
	"math"
)

// MinCropSide is the smallest usable crop; anything thinner is treated as
// contour or rounding noise and the full panel is used.
const MinCropSide = 10

// FullCrop selects the whole panel.
var FullCrop = [4]int{0, 0, 1000, 1000}

// CropRect converts a promille rectangle (x1, y1, x2, y2 in [0, 1000]) into
// pixel coordinates of bounds. Degenerate or tiny results select all of bounds.
func CropRect(bounds image.Rectangle, promille [4]int) image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()
	px := func(v, dim int) int {
		if v < 0 {
			v = 0
		}
		if v > 1000 {
			v = 1000
		}
		return int(math.Round(float64(v) / 1000 * float64(dim)))
	}

	x1, y1 := px(promille[0], w), px(promille[1], h)
	x2, y2 := px(promille[2], w), px(promille[3], h)
	if x1 >= x2 || y1 >= y2 {
		return bounds
	}

	r := image.Rect(x1, y1, x2, y2).Add(bounds.Min)
	if r.Dx() < MinCropSide || r.Dy() < MinCropSide {
		return bounds
	}
	return r
}
