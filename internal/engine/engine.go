package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/manhwa2video/internal/config"
	"github.com/ivlev/manhwa2video/internal/director"
	"github.com/ivlev/manhwa2video/internal/effects"
	"github.com/ivlev/manhwa2video/internal/imaging"
	"github.com/ivlev/manhwa2video/internal/renderer"
	"github.com/ivlev/manhwa2video/internal/system"
	"github.com/ivlev/manhwa2video/internal/video"
)

// ErrNoClips is returned when there is nothing to render.
var ErrNoClips = errors.New("no clips to render")

var black = color.RGBA{0, 0, 0, 255}

// ClipSpec places one panel on the timeline.
type ClipSpec struct {
	Path     string
	Image    image.Image // used instead of Path when set
	Crop     [4]int
	Start    float64
	Duration float64
	Mode     effects.Mode
}

func (s ClipSpec) end() float64 {
	return s.Start + s.Duration
}

// SpecsFromScenes resolves each scene's panel index against local panel files.
func SpecsFromScenes(scenes []director.Scene, panelPaths []string) ([]ClipSpec, error) {
	specs := make([]ClipSpec, 0, len(scenes))
	for _, s := range scenes {
		if s.PanelIndex < 0 || s.PanelIndex >= len(panelPaths) {
			log.Warn().Int("scene", s.Source).Int("panel", s.PanelIndex).Msg("scene references a missing panel, skipped")
			continue
		}
		path := panelPaths[s.PanelIndex]
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: panel %d: %v", renderer.ErrAssetMissing, s.PanelIndex, err)
		}
		d := s.Duration
		if d <= 0 {
			d = renderer.MinDuration
		}
		specs = append(specs, ClipSpec{
			Path:     path,
			Crop:     [4]int(s.Crop),
			Start:    s.StartTime,
			Duration: d,
			Mode:     effects.ParseMode(string(s.Animation)),
		})
	}
	if len(specs) == 0 {
		return nil, ErrNoClips
	}
	return specs, nil
}

// Report summarises one render.
type Report struct {
	Frames   int
	Duration float64
	Elapsed  time.Duration
}

func (r Report) FPS() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Frames) / r.Elapsed.Seconds()
}

// Assembler composites clips over a black canvas and encodes them with
// the master audio.
type Assembler struct {
	Encoder video.VideoEncoder
	Render  config.RenderConfig
	Probe   func(ctx context.Context, path string) (float64, error) // audio duration
}

func NewAssembler(enc video.VideoEncoder, cfg config.RenderConfig) *Assembler {
	return &Assembler{Encoder: enc, Render: cfg, Probe: system.GetAudioDuration}
}

func (a *Assembler) canvas() image.Point {
	return image.Pt(a.Render.Width, a.Render.Height)
}

func (a *Assembler) fullProfile() video.Profile {
	encoder := a.Render.VideoEncoder
	if encoder == "" || encoder == "auto" {
		encoder = system.GetBestH264Encoder()
	}
	return video.Profile{
		Width:        a.Render.Width,
		Height:       a.Render.Height,
		FPS:          a.Render.FPS,
		Encoder:      encoder,
		Quality:      a.Render.Quality,
		AudioBitrate: a.Render.AudioBitrate,
	}
}

// Assemble renders the full video. Its length is the length of the master
// audio, whatever the sum of clip durations.
func (a *Assembler) Assemble(ctx context.Context, specs []ClipSpec, audioPath, output string) (Report, error) {
	if len(specs) == 0 {
		return Report{}, ErrNoClips
	}
	if _, err := os.Stat(audioPath); err != nil {
		return Report{}, fmt.Errorf("%w: master audio: %v", renderer.ErrAssetMissing, err)
	}
	probe := a.Probe
	if probe == nil {
		probe = system.GetAudioDuration
	}
	duration, err := probe(ctx, audioPath)
	if err != nil {
		return Report{}, err
	}

	log.Info().Int("clips", len(specs)).Float64("duration", duration).Str("output", output).Msg("rendering video")
	return a.encode(ctx, newClipCache(specs, a.canvas()), duration, video.StreamRequest{
		Audio:    audioPath,
		Duration: duration,
		Output:   output,
		Profile:  a.fullProfile(),
	})
}

func (a *Assembler) encode(ctx context.Context, cache *clipCache, duration float64, req video.StreamRequest) (Report, error) {
	start := time.Now()
	fps := req.Profile.FPS
	frames := FrameCount(duration, fps)
	bounds := image.Rect(0, 0, req.Profile.Width, req.Profile.Height)

	ch := make(chan *image.RGBA, 4)
	req.Frames = ch
	req.Release = system.PutImage

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(ch)
		for i := 0; i < frames; i++ {
			buf := system.GetImage(bounds)
			if err := cache.frame(buf, float64(i)/float64(fps)); err != nil {
				system.PutImage(buf)
				return err
			}
			select {
			case ch <- buf:
			case <-gctx.Done():
				system.PutImage(buf)
				return gctx.Err()
			}
		}
		return nil
	})
	g.Go(func() error {
		return a.Encoder.EncodeStream(gctx, req)
	})

	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{Frames: frames, Duration: duration, Elapsed: time.Since(start)}
	log.Info().Int("frames", report.Frames).Dur("elapsed", report.Elapsed).Float64("fps", report.FPS()).Str("output", req.Output).Msg("video encoded")
	return report, nil
}

// FrameCount is the number of frames needed to cover duration seconds.
func FrameCount(duration float64, fps int) int {
	if duration <= 0 || fps <= 0 {
		return 0
	}
	return int(math.Ceil(duration*float64(fps) - 1e-9))
}

// clipCache composes clips when they first become visible and drops them
// once their window has passed, keeping memory bounded on long timelines.
type clipCache struct {
	specs  []ClipSpec
	canvas image.Point
	live   map[int]*renderer.Clip
}

func newClipCache(specs []ClipSpec, canvas image.Point) *clipCache {
	return &clipCache{specs: specs, canvas: canvas, live: make(map[int]*renderer.Clip)}
}

// frame paints the composite at time t: black canvas, then every active
// clip in timeline order.
func (c *clipCache) frame(dst *image.RGBA, t float64) error {
	imaging.Fill(dst, black)
	for i, s := range c.specs {
		if t >= s.end() {
			delete(c.live, i)
			continue
		}
		if t < s.Start {
			continue
		}
		clip, ok := c.live[i]
		if !ok {
			if s.Image != nil {
				clip = renderer.ComposeImage(s.Image, s.Crop, s.Duration, s.Mode, c.canvas)
			} else {
				var err error
				if clip, err = renderer.Compose(s.Path, s.Crop, s.Duration, s.Mode, c.canvas); err != nil {
					return err
				}
			}
			clip.At(s.Start)
			c.live[i] = clip
		}
		clip.Draw(dst, t)
	}
	return nil
}
