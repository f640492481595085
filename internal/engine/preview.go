package engine

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"

	"github.com/ivlev/manhwa2video/internal/effects"
	"github.com/ivlev/manhwa2video/internal/imaging"
	"github.com/ivlev/manhwa2video/internal/renderer"
	"github.com/ivlev/manhwa2video/internal/video"
)

var placeholderGray = color.RGBA{20, 20, 20, 255}

// PreviewSize is the portrait preview canvas for a given width.
func PreviewSize(width int) image.Point {
	h := int(math.Round(float64(width) * 16 / 9))
	if h%2 != 0 {
		h++
	}
	return image.Pt(width, h)
}

// PreviewPlan lays out the preview: the first few images, each shown for
// max(0.5, length/n) seconds.
func PreviewPlan(paths []string, maxImages int, length float64) []ClipSpec {
	if len(paths) > maxImages {
		paths = paths[:maxImages]
	}
	if len(paths) == 0 {
		return nil
	}
	per := math.Max(0.5, length/float64(len(paths)))
	specs := make([]ClipSpec, len(paths))
	for i, p := range paths {
		specs[i] = ClipSpec{Path: p, Crop: renderer.FullCrop, Start: float64(i) * per, Duration: per, Mode: effects.StaticZoom}
	}
	return specs
}

// Placeholder draws a dark card with a QR code of label, used when no
// preview image could be sourced.
func Placeholder(label string) image.Image {
	card := image.NewRGBA(image.Rect(0, 0, 480, 270))
	imaging.Fill(card, placeholderGray)

	qr, err := qrcode.New(label, qrcode.Medium)
	if err != nil {
		return card
	}
	qr.BackgroundColor = placeholderGray
	qr.ForegroundColor = color.RGBA{200, 200, 200, 255}
	code := qr.Image(200)
	at := image.Pt((480-200)/2, (270-200)/2)
	draw.Draw(card, image.Rectangle{Min: at, Max: at.Add(code.Bounds().Size())}, code, code.Bounds().Min, draw.Src)
	return card
}

// Preview renders a short low-fidelity video from the first panels and the
// leading slice of the master audio. Missing images or audio degrade to a
// placeholder card or a silent preview.
func (a *Assembler) Preview(ctx context.Context, panelPaths []string, audioPath, output, label string) (Report, error) {
	var usable []string
	for _, p := range panelPaths {
		if len(usable) == a.Render.PreviewImages {
			break
		}
		if _, err := os.Stat(p); err != nil {
			log.Warn().Err(err).Str("panel", p).Msg("preview image unavailable")
			continue
		}
		usable = append(usable, p)
	}

	specs := PreviewPlan(usable, a.Render.PreviewImages, a.Render.PreviewLength)
	if len(specs) == 0 {
		log.Warn().Msg("no preview images, using placeholder")
		specs = []ClipSpec{{Image: Placeholder(label), Crop: renderer.FullCrop, Duration: a.Render.PreviewLength, Mode: effects.StaticZoom}}
	}
	duration := specs[len(specs)-1].end()

	if audioPath != "" {
		if _, err := os.Stat(audioPath); err != nil {
			log.Warn().Err(err).Msg("preview audio unavailable, rendering silent preview")
			audioPath = ""
		}
	}

	size := PreviewSize(a.Render.PreviewWidth)
	profile := video.Profile{
		Width:   size.X,
		Height:  size.Y,
		FPS:     a.Render.PreviewFPS,
		Encoder: "libx264",
		Bitrate: "400k",
		Preset:  "ultrafast",
	}

	req := video.StreamRequest{
		Audio:      audioPath,
		AudioLimit: duration,
		Duration:   duration,
		Output:     output,
		Profile:    profile,
	}
	report, err := a.encode(ctx, newClipCache(specs, size), duration, req)
	if err != nil && audioPath != "" {
		log.Warn().Err(err).Msg("preview with audio failed, retrying silent")
		req.Audio = ""
		return a.encode(ctx, newClipCache(specs, size), duration, req)
	}
	return report, err
}
