package analyzer

import (
	"image"
	"math"
	"sort"

	"github.com/ivlev/manhwa2video/internal/config"
	"github.com/ivlev/manhwa2video/internal/imaging"
)

// ContrastDetector finds panel borders with blur, Sobel edges and dilation,
// then takes the bounding boxes of the outermost connected regions.
type ContrastDetector struct {
	AnalysisWidth int     // pages are analysed at most this wide
	EdgeThreshold float64 // Gradient magnitude threshold
	KernelSize    int     // dilation kernel side
	Iterations    int     // dilation passes
	MinBlockArea  int     // specks below this (analysis pixels²) are ignored
}

// NewContrastDetector creates a detector from segmenter parameters
func NewContrastDetector(p config.SegmentParams) *ContrastDetector {
	d := &ContrastDetector{
		AnalysisWidth: p.AnalysisWidth,
		EdgeThreshold: p.EdgeThreshold,
		KernelSize:    p.DilateKernel,
		Iterations:    p.DilateIters,
		MinBlockArea:  500,
	}
	if d.EdgeThreshold <= 0 {
		d.EdgeThreshold = 60
	}
	if d.KernelSize <= 0 {
		d.KernelSize = 15
	}
	if d.Iterations <= 0 {
		d.Iterations = 2
	}
	return d
}

// Detect returns candidate regions in reading order (top-to-bottom)
func (d *ContrastDetector) Detect(img image.Image) ([]Block, error) {
	bounds := img.Bounds()
	small, scale := imaging.Downscale(img, d.AnalysisWidth)

	gray := imaging.GaussianBlur(imaging.ToGray(small))
	edges := sobelEdgeDetection(gray, d.EdgeThreshold)
	dilated := dilate(edges, d.KernelSize, d.Iterations)
	contours := outermost(findContours(dilated, d.MinBlockArea))

	sort.SliceStable(contours, func(i, j int) bool {
		if contours[i].Min.Y != contours[j].Min.Y {
			return contours[i].Min.Y < contours[j].Min.Y
		}
		return contours[i].Min.X < contours[j].Min.X
	})

	blocks := make([]Block, 0, len(contours))
	for _, r := range contours {
		rect := image.Rect(
			int(math.Floor(float64(r.Min.X)/scale)),
			int(math.Floor(float64(r.Min.Y)/scale)),
			int(math.Ceil(float64(r.Max.X)/scale)),
			int(math.Ceil(float64(r.Max.Y)/scale)),
		).Add(bounds.Min).Intersect(bounds)
		blocks = append(blocks, Block{Rect: rect})
	}
	return blocks, nil
}

// sobelEdgeDetection marks pixels whose gradient magnitude exceeds threshold
func sobelEdgeDetection(gray *image.Gray, threshold float64) *image.Gray {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	edges := image.NewGray(image.Rect(0, 0, w, h))
	px := func(x, y int) float64 { return float64(gray.Pix[y*gray.Stride+x]) }

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			sumX := -px(x-1, y-1) + px(x+1, y-1) - 2*px(x-1, y) + 2*px(x+1, y) - px(x-1, y+1) + px(x+1, y+1)
			sumY := -px(x-1, y-1) - 2*px(x, y-1) - px(x+1, y-1) + px(x-1, y+1) + 2*px(x, y+1) + px(x+1, y+1)

			if math.Sqrt(sumX*sumX+sumY*sumY) > threshold {
				edges.Pix[y*edges.Stride+x] = 255
			}
		}
	}
	return edges
}

// dilate applies a square max filter, split into a horizontal and a
// vertical pass per iteration.
func dilate(img *image.Gray, kernelSize, iterations int) *image.Gray {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	half := kernelSize / 2
	cur := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		copy(cur[y*w:(y+1)*w], img.Pix[y*img.Stride:])
	}
	tmp := make([]uint8, w*h)

	for iter := 0; iter < iterations; iter++ {
		for y := 0; y < h; y++ {
			row := cur[y*w : (y+1)*w]
			for x := 0; x < w; x++ {
				var m uint8
				for k := max(0, x-half); k <= min(w-1, x+half); k++ {
					if row[k] > m {
						m = row[k]
					}
				}
				tmp[y*w+x] = m
			}
		}
		for x := 0; x < w; x++ {
			for y := 0; y < h; y++ {
				var m uint8
				for k := max(0, y-half); k <= min(h-1, y+half); k++ {
					if tmp[k*w+x] > m {
						m = tmp[k*w+x]
					}
				}
				cur[y*w+x] = m
			}
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	copy(out.Pix, cur)
	return out
}

// findContours returns bounding rectangles of connected white regions
// whose box area reaches minArea
func findContours(img *image.Gray, minArea int) []image.Rectangle {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	visited := make([]bool, w*h)
	contours := []image.Rectangle{}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if img.Pix[y*img.Stride+x] > 128 && !visited[y*w+x] {
				rect := floodFill(img, visited, x, y)
				if rect.Dx()*rect.Dy() >= minArea {
					contours = append(contours, rect)
				}
			}
		}
	}
	return contours
}

// floodFill marks one 4-connected component and returns its bounding rectangle
func floodFill(img *image.Gray, visited []bool, startX, startY int) image.Rectangle {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	minX, minY := startX, startY
	maxX, maxY := startX, startY

	stack := []image.Point{{X: startX, Y: startY}}
	visited[startY*w+startX] = true

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)

		for _, n := range [4]image.Point{{p.X + 1, p.Y}, {p.X - 1, p.Y}, {p.X, p.Y + 1}, {p.X, p.Y - 1}} {
			if n.X < 0 || n.X >= w || n.Y < 0 || n.Y >= h {
				continue
			}
			if visited[n.Y*w+n.X] || img.Pix[n.Y*img.Stride+n.X] <= 128 {
				continue
			}
			visited[n.Y*w+n.X] = true
			stack = append(stack, n)
		}
	}

	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// outermost drops regions lying entirely inside a larger one, leaving only
// external contours.
func outermost(rects []image.Rectangle) []image.Rectangle {
	sort.SliceStable(rects, func(i, j int) bool {
		return rects[i].Dx()*rects[i].Dy() > rects[j].Dx()*rects[j].Dy()
	})
	var kept []image.Rectangle
	for _, r := range rects {
		inside := false
		for _, k := range kept {
			if r.In(k) {
				inside = true
				break
			}
		}
		if !inside {
			kept = append(kept, r)
		}
	}
	return kept
}
