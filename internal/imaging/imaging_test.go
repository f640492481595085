package imaging

import (
	"image"
	"image/color"
	"testing"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	Fill(img, c)
	return img
}

func TestAutoContrastStretchesRange(t *testing.T) {
	// left half dark gray, right half light gray
	img := image.NewRGBA(image.Rect(0, 0, 100, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 100; x++ {
			v := uint8(100)
			if x >= 50 {
				v = 150
			}
			img.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}

	out := AutoContrast(img, 2)

	if got := out.RGBAAt(10, 5).R; got != 0 {
		t.Errorf("Expected dark side mapped to 0, got %d", got)
	}
	if got := out.RGBAAt(90, 5).R; got != 255 {
		t.Errorf("Expected light side mapped to 255, got %d", got)
	}
}

func TestAutoContrastUniformImage(t *testing.T) {
	img := solid(20, 20, color.RGBA{128, 128, 128, 255})
	out := AutoContrast(img, 3)
	if got := out.RGBAAt(5, 5).R; got != 128 {
		t.Errorf("Uniform image should be unchanged, got %d", got)
	}
}

func TestSharpenKeepsFlatRegions(t *testing.T) {
	img := solid(16, 16, color.RGBA{90, 90, 90, 255})
	out := Sharpen(img)
	if out.Bounds() != img.Bounds() {
		t.Fatalf("Bounds changed: %v", out.Bounds())
	}
	if got := out.RGBAAt(8, 8).R; got != 90 {
		t.Errorf("Flat region should be unchanged, got %d", got)
	}
}

func TestGaussianBlurSoftensEdge(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 10; x < 20; x++ {
			gray.SetGray(x, y, color.Gray{Y: 255})
		}
	}

	blurred := GaussianBlur(gray)

	v := blurred.GrayAt(10, 10).Y
	if v == 0 || v == 255 {
		t.Errorf("Expected an intermediate value at the edge, got %d", v)
	}
	if blurred.GrayAt(0, 10).Y != 0 || blurred.GrayAt(19, 10).Y != 255 {
		t.Error("Far regions should keep their values")
	}
}

func TestDownscale(t *testing.T) {
	img := solid(1600, 2400, color.RGBA{255, 255, 255, 255})

	small, scale := Downscale(img, 800)
	if scale != 0.5 {
		t.Errorf("Expected scale 0.5, got %f", scale)
	}
	if small.Bounds().Dx() != 800 || small.Bounds().Dy() != 1200 {
		t.Errorf("Unexpected size: %v", small.Bounds())
	}

	same, scale := Downscale(img, 2000)
	if scale != 1 || same != image.Image(img) {
		t.Error("Small images should pass through untouched")
	}
}

func TestCropAndScaleToWidth(t *testing.T) {
	img := solid(400, 200, color.RGBA{10, 20, 30, 255})

	c := Crop(img, image.Rect(100, 50, 300, 150))
	if c.Bounds() != image.Rect(0, 0, 200, 100) {
		t.Errorf("Unexpected crop bounds: %v", c.Bounds())
	}

	s := ScaleToWidth(c, 100)
	if s.Bounds().Dx() != 100 || s.Bounds().Dy() != 50 {
		t.Errorf("Unexpected scaled size: %v", s.Bounds())
	}
}

func TestEncodeJPEG(t *testing.T) {
	data, err := EncodeJPEG(solid(32, 32, color.RGBA{200, 0, 0, 255}), 75)
	if err != nil {
		t.Fatalf("EncodeJPEG failed: %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Error("Output is not a JPEG stream")
	}
}
