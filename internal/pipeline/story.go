package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/manhwa2video/internal/analyzer"
	"github.com/ivlev/manhwa2video/internal/director"
	"github.com/ivlev/manhwa2video/internal/llm"
	"github.com/ivlev/manhwa2video/internal/ocr"
	"github.com/ivlev/manhwa2video/internal/source"
	"github.com/ivlev/manhwa2video/internal/timeline"
	"github.com/ivlev/manhwa2video/internal/video"
)

type StoryInput struct {
	Title  string
	Genre  string
	Source source.Source
}

type StoryResult struct {
	Manifest     *director.Manifest
	ManifestPath string
	SilentScenes int
}

// exported is one panel after JPEG export, upload and OCR.
type exported struct {
	data []byte
	url  string
	text string
}

// Story runs extraction, scripting, synthesis and audio mastering, and
// persists the render manifest.
func (p *Pipeline) Story(ctx context.Context, in StoryInput) (*StoryResult, error) {
	start := time.Now()
	id := newID()
	logger := log.With().Str("story", id).Str("title", in.Title).Logger()

	if err := p.CheckBudget(in.Source); err != nil {
		return nil, err
	}

	pages, err := source.Rasterize(in.Source, source.Options{
		DPI:      p.cfg.Extract.DPI,
		MaxPages: p.cfg.Extract.MaxPages,
		Cutoff:   p.cfg.Extract.PageCutoff,
	})
	if err != nil {
		return nil, err
	}
	panels, err := p.segmenter.ExtractPanels(pages)
	if err != nil {
		return nil, err
	}
	if n := p.cfg.Extract.MaxPanels; n > 0 && len(panels) > n {
		return nil, fmt.Errorf("%w: %d panels, limit is %d", ErrTooManyPanels, len(panels), n)
	}
	logger.Info().Int("panels", len(panels)).Str("elapsed", elapsed(start)).Msg("panels extracted")

	folder := director.FolderName(in.Title)
	out, err := p.exportPanels(ctx, folder, panels)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(out))
	images := make([][]byte, len(out))
	urls := make([]string, len(out))
	for i, e := range out {
		texts[i], images[i], urls[i] = e.text, e.data, e.url
	}
	ocrText := ocr.JoinPages(texts)

	raw, genErr := "", errNoGenerator
	if p.deps.Generator != nil {
		raw, genErr = p.deps.Generator.GenerateScript(ctx, llm.Request{
			Title:  in.Title,
			Genre:  in.Genre,
			OCR:    texts,
			Images: images,
		})
	}
	script, fallback := director.ResolveScript(raw, genErr, in.Title, ocrText, len(panels), p.cfg.LLM.MaxScenes)
	logger.Info().Int("scenes", len(script.Scenes)).Bool("fallback", fallback).Msg("script ready")

	tl, err := timeline.NewBuilder(p.deps.Synth, p.cfg.Timeline).Build(ctx, script.Scenes)
	if err != nil {
		return nil, err
	}

	audioURL, err := p.masterAudio(ctx, folder, tl)
	if err != nil {
		return nil, err
	}

	silent := 0
	for _, s := range tl.Scenes {
		if s.Silent {
			silent++
		}
	}

	manifest := &director.Manifest{
		Version:   p.cfg.BuildVersion,
		StoryID:   id,
		Title:     in.Title,
		CreatedAt: time.Now().UTC(),
		AudioURL:  audioURL,
		Duration:  tl.Duration,
		Fallback:  fallback,
		Narration: script.FullNarration,
		Panels:    urls,
		Scenes:    tl.Scenes,
	}
	if err := os.MkdirAll(p.cfg.ManifestDir, 0755); err != nil {
		return nil, err
	}
	path := director.GenerateManifestPath(p.cfg.ManifestDir, in.Title)
	if err := director.WriteManifest(manifest, path); err != nil {
		return nil, err
	}

	logger.Info().Float64("duration", tl.Duration).Int("silent_scenes", silent).Str("manifest", path).Str("elapsed", elapsed(start)).Msg("story ready")
	return &StoryResult{Manifest: manifest, ManifestPath: path, SilentScenes: silent}, nil
}

// exportPanels encodes every panel, then uploads it and runs OCR on it
// concurrently. OCR failures leave the text empty; upload failures abort.
func (p *Pipeline) exportPanels(ctx context.Context, folder string, panels []analyzer.Panel) ([]exported, error) {
	out := make([]exported, len(panels))

	g, gctx := errgroup.WithContext(ctx)
	p.limit(g)
	for i, panel := range panels {
		g.Go(func() error {
			data, err := p.encodePanel(panel)
			if err != nil {
				return fmt.Errorf("encode panel %d: %w", panel.Seq, err)
			}
			out[i].data = data

			var pg errgroup.Group
			pg.Go(func() error {
				dest := fmt.Sprintf("%s/images/panel_%03d.jpg", folder, panel.Seq)
				url, err := p.deps.Storage.Upload(gctx, data, dest, "image/jpeg")
				out[i].url = url
				return err
			})
			pg.Go(func() error {
				text, err := p.deps.OCR.Recognize(gctx, data)
				if err != nil {
					log.Warn().Err(err).Int("panel", panel.Seq).Msg("ocr failed, continuing without text")
					return nil
				}
				out[i].text = text
				return nil
			})
			return pg.Wait()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// masterAudio concatenates the timeline tracks into one file built to the
// exact timeline length and uploads it.
func (p *Pipeline) masterAudio(ctx context.Context, folder string, tl *timeline.Timeline) (string, error) {
	dir, err := p.newWorkDir("story-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	var tracks []video.AudioTrack
	for _, t := range tl.Tracks() {
		tracks = append(tracks, video.AudioTrack{Path: t.Path, Duration: t.Duration})
	}
	path := filepath.Join(dir, "narration.mp3")
	if err := p.deps.Encoder.ConcatAudio(ctx, tracks, path); err != nil {
		return "", fmt.Errorf("master audio: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("master audio: %w", err)
	}
	return p.deps.Storage.Upload(ctx, data, folder+"/audio/narration.mp3", "audio/mpeg")
}
