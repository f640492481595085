package renderer

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"golang.org/x/image/draw"

	"github.com/ivlev/manhwa2video/internal/effects"
	"github.com/ivlev/manhwa2video/internal/imaging"
)

// MinDuration is the floor applied to non-positive clip durations.
const MinDuration = 0.1

// ErrAssetMissing reports a panel or audio file absent at render time.
var ErrAssetMissing = errors.New("asset missing")

// CameraState is where the fitted panel sits on the canvas at one moment.
type CameraState struct {
	X, Y float64 // top-left corner on the canvas
	Zoom float64 // 1.0 = panel fitted to canvas width
}

// Clip is one animated panel occupying [Start, Start+Duration) on the
// shared timeline. The crop is fitted to the canvas width before any motion
// is applied, so pan_down scrolls over the fitted height and a crop shorter
// than the canvas is letterboxed rather than filled.
type Clip struct {
	Start    float64
	Duration float64
	Mode     effects.Mode
	Crop     image.Rectangle // region of the source panel shown

	effect effects.Effect
	fitted *image.RGBA
	canvas image.Point
}

// Compose loads a panel from disk and builds its clip.
func Compose(path string, crop [4]int, duration float64, mode effects.Mode, canvas image.Point) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrAssetMissing, path)
		}
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode panel %s: %w", path, err)
	}
	return ComposeImage(img, crop, duration, mode, canvas), nil
}

// ComposeImage crops img and fits it to the canvas width.
func ComposeImage(img image.Image, crop [4]int, duration float64, mode effects.Mode, canvas image.Point) *Clip {
	if duration <= 0 {
		duration = MinDuration
	}
	r := CropRect(img.Bounds(), crop)
	cropped := imaging.Crop(img, r)

	return &Clip{
		Duration: duration,
		Mode:     mode,
		Crop:     r,
		effect:   effects.New(mode),
		fitted:   imaging.ScaleToWidth(cropped, canvas.X),
		canvas:   canvas,
	}
}

// At positions the clip on the timeline.
func (c *Clip) At(start float64) *Clip {
	c.Start = start
	return c
}

// End is the first instant after the clip.
func (c *Clip) End() float64 {
	return c.Start + c.Duration
}

// Active reports whether the clip is visible at timeline time t.
func (c *Clip) Active(t float64) bool {
	return t >= c.Start && t < c.End()
}

// StateAt returns the camera state at timeline time t.
func (c *Clip) StateAt(t float64) CameraState {
	fw, fh := c.fitted.Rect.Dx(), c.fitted.Rect.Dy()
	pl := c.effect.Place(effects.Progress(t-c.Start, c.Duration), fh, c.canvas.Y)

	w, h := float64(fw)*pl.Scale, float64(fh)*pl.Scale
	state := CameraState{
		X:    (float64(c.canvas.X) - w) / 2,
		Y:    (float64(c.canvas.Y) - h) / 2,
		Zoom: pl.Scale,
	}
	if pl.Pan {
		state.Y = pl.OffsetY
	}
	return state
}

// Draw paints the clip onto dst as it appears at timeline time t. The
// caller provides the black background.
func (c *Clip) Draw(dst *image.RGBA, t float64) {
	s := c.StateAt(t)
	fb := c.fitted.Bounds()
	x0, y0 := int(math.Round(s.X)), int(math.Round(s.Y))

	if s.Zoom == 1 {
		draw.Draw(dst, fb.Add(image.Pt(x0, y0)), c.fitted, fb.Min, draw.Src)
		return
	}
	w := int(math.Round(float64(fb.Dx()) * s.Zoom))
	h := int(math.Round(float64(fb.Dy()) * s.Zoom))
	draw.ApproxBiLinear.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), c.fitted, fb, draw.Src, nil)
}

// Fitted exposes the panel as scaled to the canvas width.
func (c *Clip) Fitted() *image.RGBA {
	return c.fitted
}
