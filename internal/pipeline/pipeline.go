// Package pipeline wires the stages together: Story turns a document into
// panels, a script, a timeline and a master audio track; Render turns the
// resulting manifest into a preview and a background full render.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/manhwa2video/internal/analyzer"
	"github.com/ivlev/manhwa2video/internal/config"
	"github.com/ivlev/manhwa2video/internal/engine"
	"github.com/ivlev/manhwa2video/internal/imaging"
	"github.com/ivlev/manhwa2video/internal/jobs"
	"github.com/ivlev/manhwa2video/internal/llm"
	"github.com/ivlev/manhwa2video/internal/ocr"
	"github.com/ivlev/manhwa2video/internal/source"
	"github.com/ivlev/manhwa2video/internal/storage"
	"github.com/ivlev/manhwa2video/internal/system"
	"github.com/ivlev/manhwa2video/internal/timeline"
	"github.com/ivlev/manhwa2video/internal/video"
)

var (
	ErrBudgetExceeded = errors.New("document exceeds processing budget")
	ErrTooManyPanels  = errors.New("too many panels")
	errNoGenerator    = errors.New("no script generator configured")
)

// Deps are the external collaborators. Generator may be nil, in which case
// every story uses the fallback script.
type Deps struct {
	Storage   storage.Store
	OCR       ocr.Recognizer
	Generator llm.Generator
	Synth     timeline.Synthesizer
	Encoder   video.VideoEncoder
	Jobs      jobs.Store
	Runner    *jobs.Runner
}

type Pipeline struct {
	cfg       config.Config
	deps      Deps
	segmenter *analyzer.Segmenter
	assembler *engine.Assembler
	capacity  func() (system.Capacity, error)
}

func New(cfg config.Config, deps Deps) (*Pipeline, error) {
	seg, err := analyzer.NewSegmenter(cfg.Extract.Detector, cfg.Extract.Segment())
	if err != nil {
		return nil, err
	}
	if deps.Runner == nil && deps.Jobs != nil {
		deps.Runner = jobs.NewRunner(deps.Jobs)
	}
	return &Pipeline{
		cfg:       cfg,
		deps:      deps,
		segmenter: seg,
		assembler: engine.NewAssembler(deps.Encoder, cfg.Render),
		capacity:  system.HostCapacity,
	}, nil
}

// Runner exposes the background executor so callers can wait for renders.
func (p *Pipeline) Runner() *jobs.Runner {
	return p.deps.Runner
}

// CheckBudget rejects documents that would take too long or need more
// memory than the host can spare for one rasterized page.
func (p *Pipeline) CheckBudget(src source.Source) error {
	pages := src.PageCount()
	if n := p.cfg.Extract.MaxPages; n > 0 && pages > n {
		pages = n
	}
	b := p.cfg.Budget
	if estimate := float64(pages) * b.SecondsPerPage; b.ProcessingSeconds > 0 && estimate > b.ProcessingSeconds {
		return fmt.Errorf("%w: %d pages need ~%.0fs, budget is %.0fs", ErrBudgetExceeded, pages, estimate, b.ProcessingSeconds)
	}

	px, err := source.EstimatePixels(src, p.cfg.Extract.DPI, p.cfg.Extract.MaxPages)
	if err != nil {
		return err
	}
	capacity, err := p.capacity()
	if err != nil {
		log.Warn().Err(err).Msg("host capacity unknown, skipping memory budget")
		return nil
	}
	// page buffer plus its corrected copy
	need := uint64(px) * 4 * 2
	if !capacity.FitsMemory(need, b.MemoryShare) {
		return fmt.Errorf("%w: a page needs %d MiB, %d MiB available", ErrBudgetExceeded, need>>20, capacity.AvailableMemory>>20)
	}
	return nil
}

// newWorkDir creates a directory owned by exactly one story or job.
func (p *Pipeline) newWorkDir(prefix string) (string, error) {
	base := p.cfg.WorkDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0755); err != nil {
		return "", err
	}
	return os.MkdirTemp(base, prefix)
}

func newID() string {
	return uuid.NewString()
}

func elapsed(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}

// encodePanel exports a panel the way it is uploaded and shown to OCR.
func (p *Pipeline) encodePanel(panel analyzer.Panel) ([]byte, error) {
	return imaging.EncodeJPEG(panel.Image, p.cfg.Extract.JPEGQuality)
}

// limit bounds per-stage fan-out by the configured worker count.
func (p *Pipeline) limit(g *errgroup.Group) {
	if p.cfg.Workers > 0 {
		g.SetLimit(p.cfg.Workers)
	}
}

func panelPath(dir string, seq int) string {
	return filepath.Join(dir, fmt.Sprintf("panel_%03d.jpg", seq))
}

// JobStore is where render job records live.
func (p *Pipeline) JobStore() jobs.Store {
	return p.deps.Jobs
}
