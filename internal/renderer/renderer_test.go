package renderer

import (
	"errors"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"github.com/ivlev/manhwa2video/internal/effects"
	"github.com/ivlev/manhwa2video/internal/imaging"
)

var canvas = image.Pt(108, 192)

func panel(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	imaging.Fill(img, c)
	return img
}

func TestCropRect(t *testing.T) {
	bounds := image.Rect(0, 0, 800, 1200)

	tests := []struct {
		name     string
		promille [4]int
		expected image.Rectangle
	}{
		{"full panel", FullCrop, bounds},
		{"upper half", [4]int{0, 0, 1000, 500}, image.Rect(0, 0, 800, 600)},
		{"rounded", [4]int{333, 333, 667, 667}, image.Rect(266, 400, 534, 800)},
		{"degenerate x", [4]int{500, 500, 100, 100}, bounds},
		{"degenerate y", [4]int{100, 600, 900, 600}, bounds},
		{"out of range clamped", [4]int{-50, 0, 1500, 1000}, bounds},
		{"too small", [4]int{500, 500, 505, 900}, bounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CropRect(bounds, tt.promille); got != tt.expected {
				t.Errorf("CropRect(%v) = %v, want %v", tt.promille, got, tt.expected)
			}
		})
	}
}

func TestComposeFullCropKeepsPanel(t *testing.T) {
	img := panel(200, 100, color.RGBA{255, 255, 255, 255})

	clip := ComposeImage(img, FullCrop, 3, effects.StaticZoom, canvas)
	if clip.Crop != img.Bounds() {
		t.Errorf("Expected full panel crop, got %v", clip.Crop)
	}
	if clip.Fitted().Bounds().Dx() != canvas.X {
		t.Errorf("Expected panel fitted to canvas width, got %v", clip.Fitted().Bounds())
	}
}

func TestComposeDurationFloor(t *testing.T) {
	img := panel(50, 50, color.RGBA{255, 0, 0, 255})
	for _, d := range []float64{0, -2} {
		if clip := ComposeImage(img, FullCrop, d, effects.StaticZoom, canvas); clip.Duration != MinDuration {
			t.Errorf("Duration %f: expected floor %f, got %f", d, MinDuration, clip.Duration)
		}
	}
}

func TestComposeMissingAsset(t *testing.T) {
	_, err := Compose(filepath.Join(t.TempDir(), "nope.jpg"), FullCrop, 2, effects.StaticZoom, canvas)
	if !errors.Is(err, ErrAssetMissing) {
		t.Errorf("Expected ErrAssetMissing, got %v", err)
	}
}

func TestClipWindow(t *testing.T) {
	clip := ComposeImage(panel(50, 50, color.RGBA{}), FullCrop, 2, effects.StaticZoom, canvas).At(3)

	tests := []struct {
		t      float64
		active bool
	}{
		{2.9, false},
		{3, true},
		{4.99, true},
		{5, false},
	}
	for _, tt := range tests {
		if got := clip.Active(tt.t); got != tt.active {
			t.Errorf("Active(%.2f) = %v, want %v", tt.t, got, tt.active)
		}
	}
}

func TestStaticZoomCentered(t *testing.T) {
	white := color.RGBA{255, 255, 255, 255}
	clip := ComposeImage(panel(200, 100, white), FullCrop, 4, effects.StaticZoom, canvas)

	start := clip.StateAt(0)
	if math.Abs(start.Zoom-1.05) > 1e-9 {
		t.Errorf("Expected zoom 1.05 at start, got %f", start.Zoom)
	}

	end := clip.StateAt(4)
	if end.Zoom != 1 {
		t.Errorf("Expected zoom 1 at end, got %f", end.Zoom)
	}

	// fitted size 108x54, centered vertically at y=69
	dst := panel(canvas.X, canvas.Y, color.RGBA{0, 0, 0, 255})
	clip.Draw(dst, 4)

	if got := dst.RGBAAt(54, 10); got.R != 0 {
		t.Errorf("Expected black letterbox above panel, got %v", got)
	}
	if got := dst.RGBAAt(54, 96); got.R != 255 {
		t.Errorf("Expected panel at canvas center, got %v", got)
	}
	if got := dst.RGBAAt(54, 180); got.R != 0 {
		t.Errorf("Expected black letterbox below panel, got %v", got)
	}
}

func TestPanDownScrollsTallPanel(t *testing.T) {
	img := panel(50, 200, color.RGBA{255, 255, 255, 255})
	// red band along the bottom of the panel
	for y := 190; y < 200; y++ {
		for x := 0; x < 50; x++ {
			img.SetRGBA(x, y, color.RGBA{255, 0, 0, 255})
		}
	}

	clip := ComposeImage(img, FullCrop, 2, effects.PanDown, canvas)
	fh := clip.Fitted().Bounds().Dy() // 432

	if s := clip.StateAt(0); s.Y != 0 {
		t.Errorf("Expected top edge at 0, got %f", s.Y)
	}
	if s := clip.StateAt(2); s.Y != float64(canvas.Y-fh) {
		t.Errorf("Expected top edge at %d, got %f", canvas.Y-fh, s.Y)
	}

	dst := panel(canvas.X, canvas.Y, color.RGBA{0, 0, 0, 255})
	clip.Draw(dst, 1.999)
	if got := dst.RGBAAt(54, canvas.Y-5); got.R != 255 || got.G > 40 {
		t.Errorf("Expected bottom band visible at the end of the pan, got %v", got)
	}
}

func TestPanDownMeasuresFittedCrop(t *testing.T) {
	// taller than the canvas as cropped, but only 81px once fitted to 108 wide
	clip := ComposeImage(panel(400, 300, color.RGBA{255, 255, 255, 255}), FullCrop, 2, effects.PanDown, canvas)
	if fh := clip.Fitted().Bounds().Dy(); fh != 81 {
		t.Fatalf("Expected fitted height 81, got %d", fh)
	}

	want := float64(canvas.Y-81) / 2
	for _, at := range []float64{0, 1, 2} {
		if s := clip.StateAt(at); s.Y != want || s.Zoom != 1 {
			t.Errorf("StateAt(%.0f) = %+v, want centered at y=%.1f without scroll", at, s, want)
		}
	}
}
