package analyzer

import (
	"fmt"
	"image"

	"github.com/rs/zerolog/log"

	"github.com/ivlev/manhwa2video/internal/config"
	"github.com/ivlev/manhwa2video/internal/imaging"
	"github.com/ivlev/manhwa2video/internal/source"
)

// Panel is one cropped narrative unit. Seq is dense across the whole
// document in page-major, top-to-bottom order.
type Panel struct {
	Seq   int
	Page  int
	Rect  image.Rectangle
	Image *image.RGBA
}

// Segmentation is the result for one page. Degraded reports that no
// candidate survived filtering and the whole page was used instead.
type Segmentation struct {
	Panels   []Panel
	Degraded bool
}

// Segmenter applies size filtering and the full-page fallback on top of a Detector.
type Segmenter struct {
	Detector Detector
	Params   config.SegmentParams
}

func NewSegmenter(variant string, params config.SegmentParams) (*Segmenter, error) {
	d, err := NewDetector(variant, params)
	if err != nil {
		return nil, err
	}
	return &Segmenter{Detector: d, Params: params}, nil
}

// Segment crops the panels of one page. It never returns zero panels for a
// non-empty page. Seq is left at zero; ExtractPanels numbers the panels.
func (s *Segmenter) Segment(page source.Page) (Segmentation, error) {
	bounds := page.Image.Bounds()
	if bounds.Empty() {
		return Segmentation{}, fmt.Errorf("page %d is empty", page.Index+1)
	}

	blocks, err := s.Detector.Detect(page.Image)
	if err != nil {
		log.Warn().Err(err).Int("page", page.Index+1).Msg("panel detection failed, using full page")
		blocks = nil
	}

	pageW, pageH := float64(bounds.Dx()), float64(bounds.Dy())
	var panels []Panel
	for _, b := range blocks {
		w, h := float64(b.Rect.Dx()), float64(b.Rect.Dy())
		if h < s.Params.MinHeightRatio*pageH {
			continue
		}
		if w < s.Params.MinWidthRatio*pageW {
			continue
		}
		if w*h < s.Params.MinAreaRatio*pageW*pageH {
			continue
		}
		if s.Params.MaxPerPage > 0 && len(panels) >= s.Params.MaxPerPage {
			log.Warn().Int("page", page.Index+1).Int("limit", s.Params.MaxPerPage).Msg("panel limit reached on page")
			break
		}

		crop := imaging.AutoContrast(imaging.Crop(page.Image, b.Rect), s.Params.PanelCutoff)
		panels = append(panels, Panel{Page: page.Index, Rect: b.Rect, Image: crop})
	}

	if len(panels) == 0 {
		log.Warn().Int("page", page.Index+1).Int("candidates", len(blocks)).Msg("no panels passed filtering, using full page")
		return Segmentation{
			Panels:   []Panel{{Page: page.Index, Rect: bounds, Image: imaging.ToRGBA(page.Image)}},
			Degraded: true,
		}, nil
	}
	return Segmentation{Panels: panels}, nil
}

// ExtractPanels segments pages in order and assigns dense sequence indices.
func (s *Segmenter) ExtractPanels(pages []source.Page) ([]Panel, error) {
	var all []Panel
	degraded := 0
	for _, page := range pages {
		seg, err := s.Segment(page)
		if err != nil {
			return nil, err
		}
		if seg.Degraded {
			degraded++
		}
		for _, p := range seg.Panels {
			p.Seq = len(all)
			all = append(all, p)
		}
		log.Debug().Int("page", page.Index+1).Int("panels", len(seg.Panels)).Bool("degraded", seg.Degraded).Msg("page segmented")
	}
	log.Info().Int("pages", len(pages)).Int("panels", len(all)).Int("fallback_pages", degraded).Msg("panel extraction complete")
	return all, nil
}
