package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/manhwa2video/internal/director"
	"github.com/ivlev/manhwa2video/internal/engine"
	"github.com/ivlev/manhwa2video/internal/jobs"
)

// Render sources the preview's panels and audio into a job-owned work dir,
// renders and uploads the preview, then hands the full download and render
// to the background runner. Preview assets that cannot be fetched are
// skipped and the preview degrades. The returned record carries the preview
// URL. The work dir is removed on every path, either here on early failure
// or by the runner.
func (p *Pipeline) Render(ctx context.Context, m *director.Manifest) (jobs.Record, error) {
	id := jobs.NewID()
	logger := log.With().Str("job", id).Logger()

	rec := jobs.NewRecord(id, "Preparing assets")
	if err := p.deps.Jobs.Put(ctx, rec); err != nil {
		return rec, fmt.Errorf("create job: %w", err)
	}

	dir, err := p.newWorkDir("job-" + id + "-")
	if err != nil {
		return p.abort(ctx, rec, "", err)
	}

	previewPanels, previewAudio := p.fetchPreviewAssets(ctx, m, dir)
	previewURL, err := p.preview(ctx, id, previewPanels, previewAudio, dir)
	if err != nil {
		return p.abort(ctx, rec, dir, err)
	}
	rec = rec.WithPreview(previewURL, "Preview ready, rendering full video")
	if err := p.deps.Jobs.Put(ctx, rec); err != nil {
		return p.abort(ctx, rec, dir, err)
	}
	logger.Info().Str("preview", previewURL).Msg("preview uploaded")

	dest := fmt.Sprintf("videos/%s_%s.mp4", director.FolderName(m.Title), id)
	p.deps.Runner.Start(ctx, rec, dir, func(ctx context.Context) (string, error) {
		panels, audio, err := p.fetchAssets(ctx, m, dir)
		if err != nil {
			return "", err
		}
		specs, err := engine.SpecsFromScenes(m.Scenes, panels)
		if err != nil {
			return "", err
		}
		out := filepath.Join(dir, "video.mp4")
		report, err := p.assembler.Assemble(ctx, specs, audio, out)
		if err != nil {
			return "", err
		}
		logger.Info().Int("frames", report.Frames).Float64("render_fps", report.FPS()).Msg("full render encoded")
		data, err := os.ReadFile(out)
		if err != nil {
			return "", err
		}
		return p.deps.Storage.Upload(ctx, data, dest, "video/mp4")
	})
	return rec, nil
}

// abort removes the work dir and records the failure.
func (p *Pipeline) abort(ctx context.Context, rec jobs.Record, dir string, cause error) (jobs.Record, error) {
	if dir != "" {
		os.RemoveAll(dir)
	}
	failed := rec.Fail(cause.Error())
	if err := p.deps.Jobs.Put(context.WithoutCancel(ctx), failed); err != nil {
		log.Error().Err(err).Str("job", rec.ID).Msg("could not write terminal job record")
	}
	return failed, cause
}

// fetchAssets downloads panel images and the master audio.
func (p *Pipeline) fetchAssets(ctx context.Context, m *director.Manifest, dir string) ([]string, string, error) {
	imgDir := filepath.Join(dir, "images")
	paths := make([]string, len(m.Panels))

	g, gctx := errgroup.WithContext(ctx)
	p.limit(g)
	for i, url := range m.Panels {
		paths[i] = panelPath(imgDir, i)
		g.Go(func() error {
			return p.deps.Storage.Download(gctx, url, paths[i])
		})
	}
	audio := filepath.Join(dir, "narration.mp3")
	g.Go(func() error {
		return p.deps.Storage.Download(gctx, m.AudioURL, audio)
	})
	if err := g.Wait(); err != nil {
		return nil, "", err
	}
	return paths, audio, nil
}

// fetchPreviewAssets downloads the leading panels and the master audio for
// the preview. Failures are logged and the asset left out.
func (p *Pipeline) fetchPreviewAssets(ctx context.Context, m *director.Manifest, dir string) ([]string, string) {
	previewDir := filepath.Join(dir, "preview")
	n := max(0, min(len(m.Panels), p.cfg.Render.PreviewImages))
	fetched := make([]string, n)

	var g errgroup.Group
	p.limit(&g)
	for i, url := range m.Panels[:n] {
		g.Go(func() error {
			path := panelPath(previewDir, i)
			if err := p.deps.Storage.Download(ctx, url, path); err != nil {
				log.Warn().Err(err).Int("panel", i).Msg("preview panel unavailable")
				return nil
			}
			fetched[i] = path
			return nil
		})
	}
	audio := filepath.Join(previewDir, "narration.mp3")
	g.Go(func() error {
		if err := p.deps.Storage.Download(ctx, m.AudioURL, audio); err != nil {
			log.Warn().Err(err).Msg("preview audio unavailable")
			audio = ""
		}
		return nil
	})
	g.Wait()

	var panels []string
	for _, path := range fetched {
		if path != "" {
			panels = append(panels, path)
		}
	}
	return panels, audio
}

func (p *Pipeline) preview(ctx context.Context, id string, panels []string, audio, dir string) (string, error) {
	out := filepath.Join(dir, "preview.mp4")
	if _, err := p.assembler.Preview(ctx, panels, audio, out, id); err != nil {
		return "", fmt.Errorf("preview: %w", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return "", fmt.Errorf("preview: %w", err)
	}
	return p.deps.Storage.Upload(ctx, data, fmt.Sprintf("previews/%s/preview.mp4", id), "video/mp4")
}
