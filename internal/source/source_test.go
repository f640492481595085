package source

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x % 256), 120, 200, 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestRasterizeImageFolder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"page_03.png", "page_01.png", "page_02.png"} {
		writePNG(t, filepath.Join(dir, name), 60, 90)
	}
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0644)

	src, err := NewImageSource(dir)
	if err != nil {
		t.Fatalf("NewImageSource failed: %v", err)
	}
	defer src.Close()

	if src.PageCount() != 3 {
		t.Fatalf("Expected 3 pages, got %d", src.PageCount())
	}

	pages, err := Rasterize(src, Options{DPI: 150, MaxPages: 2, Cutoff: 2})
	if err != nil {
		t.Fatalf("Rasterize failed: %v", err)
	}

	if len(pages) != 2 {
		t.Fatalf("Expected truncation to 2 pages, got %d", len(pages))
	}
	for i, p := range pages {
		if p.Index != i {
			t.Errorf("Page %d has index %d", i, p.Index)
		}
		if p.Width() != 60 || p.Height() != 90 {
			t.Errorf("Page %d has size %dx%d", i, p.Width(), p.Height())
		}
	}
}

func TestRasterizeEmptyFolder(t *testing.T) {
	src, err := NewImageSource(t.TempDir())
	if err != nil {
		t.Fatalf("NewImageSource failed: %v", err)
	}

	_, err = Rasterize(src, Options{DPI: 150})
	if !errors.Is(err, ErrExtraction) {
		t.Errorf("Expected ErrExtraction, got %v", err)
	}
}

func TestNewFitzPDFSourceRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not a pdf", []byte("definitely not a pdf document")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFitzPDFSource(tt.data)
			if !errors.Is(err, ErrExtraction) {
				t.Errorf("Expected ErrExtraction, got %v", err)
			}
		})
	}
}

func TestEstimatePixelsImageFolder(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 40, 50)
	writePNG(t, filepath.Join(dir, "b.png"), 80, 100)

	src, _ := NewImageSource(dir)
	px, err := EstimatePixels(src, 300, 0)
	if err != nil {
		t.Fatalf("EstimatePixels failed: %v", err)
	}
	if px != 8000 {
		t.Errorf("Expected largest page 8000 px, got %d", px)
	}
}
