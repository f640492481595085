package source

import (
	"fmt"
	"image"

	"github.com/rs/zerolog/log"

	"github.com/ivlev/manhwa2video/internal/imaging"
)

// Page is one corrected raster page.
type Page struct {
	Index int
	Image *image.RGBA
}

func (p Page) Width() int  { return p.Image.Rect.Dx() }
func (p Page) Height() int { return p.Image.Rect.Dy() }

// Options tune rasterization.
type Options struct {
	DPI      int
	MaxPages int
	Cutoff   float64 // autocontrast cutoff percent
}

// Rasterize renders up to MaxPages pages of src, then applies autocontrast
// and sharpening to each. A source with zero pages or an unreadable page
// yields ErrExtraction.
func Rasterize(src Source, opts Options) ([]Page, error) {
	count := src.PageCount()
	if count == 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrExtraction)
	}
	if opts.MaxPages > 0 && count > opts.MaxPages {
		log.Warn().Int("pages", count).Int("max_pages", opts.MaxPages).Msg("document truncated")
		count = opts.MaxPages
	}

	pages := make([]Page, 0, count)
	for i := 0; i < count; i++ {
		img, err := src.RenderPage(i, opts.DPI)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrExtraction, i+1, err)
		}
		corrected := imaging.Sharpen(imaging.AutoContrast(img, opts.Cutoff))
		pages = append(pages, Page{Index: i, Image: corrected})
		log.Debug().Int("page", i+1).Int("w", corrected.Rect.Dx()).Int("h", corrected.Rect.Dy()).Msg("page rasterized")
	}
	return pages, nil
}

// EstimatePixels returns the raster size of the largest of the first
// maxPages pages at dpi, used for upfront memory budgeting.
func EstimatePixels(src Source, dpi, maxPages int) (int64, error) {
	count := src.PageCount()
	if maxPages > 0 && count > maxPages {
		count = maxPages
	}
	_, raster := src.(*ImageSource)
	var largest int64
	for i := 0; i < count; i++ {
		w, h, err := src.GetPageDimensions(i)
		if err != nil {
			return 0, fmt.Errorf("%w: page %d: %v", ErrExtraction, i+1, err)
		}
		px := int64(w*float64(dpi)/72) * int64(h*float64(dpi)/72)
		if raster {
			px = int64(w) * int64(h)
		}
		if px > largest {
			largest = px
		}
	}
	return largest, nil
}
