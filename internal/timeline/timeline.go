// Package timeline aligns narration segments to synthesized speech and
// lays them out back to back.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/manhwa2video/internal/config"
	"github.com/ivlev/manhwa2video/internal/director"
)

// ErrEmptyTimeline means no segment produced playable speech.
var ErrEmptyTimeline = errors.New("empty timeline: every segment was empty or failed")

// Speech is one synthesized narration clip on local disk.
type Speech struct {
	Path     string
	Duration float64
}

// Synthesizer speaks one narration segment. Implementations must be safe
// for concurrent use.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Speech, error)
}

// SynthesizerFunc adapts a function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, text string) (Speech, error)

func (f SynthesizerFunc) Synthesize(ctx context.Context, text string) (Speech, error) {
	return f(ctx, text)
}

// Timeline is the gap-free sequence of timed scenes. Duration is the sum of
// scene durations and the length the master audio track is built to.
type Timeline struct {
	Scenes   []director.Scene
	Duration float64
}

// Track is one entry of the master audio track. Silent tracks have no Path.
type Track struct {
	Path     string
	Duration float64
}

// Tracks lists the master audio parts in timeline order.
func (t *Timeline) Tracks() []Track {
	tracks := make([]Track, len(t.Scenes))
	for i, s := range t.Scenes {
		tracks[i] = Track{Path: s.Audio, Duration: s.Duration}
	}
	return tracks
}

// Builder builds timelines from validated script segments.
type Builder struct {
	Synth        Synthesizer
	SilenceFloor float64 // duration of the placeholder for a failed segment
	MinUsable    float64 // speech at or below this length counts as failed
	Concurrency  int
}

func NewBuilder(synth Synthesizer, cfg config.TimelineConfig) *Builder {
	return &Builder{
		Synth:        synth,
		SilenceFloor: cfg.SilenceFloor,
		MinUsable:    cfg.MinUsable,
		Concurrency:  cfg.Concurrency,
	}
}

type synthResult struct {
	speech Speech
	err    error
}

// Build synthesizes all non-empty segments concurrently, then assembles the
// timeline sequentially in segment order. Empty segments are skipped; a
// failed segment becomes a silent placeholder of SilenceFloor seconds.
func (b *Builder) Build(ctx context.Context, segments []director.Segment) (*Timeline, error) {
	results := make([]*synthResult, len(segments))

	var g errgroup.Group
	if b.Concurrency > 0 {
		g.SetLimit(b.Concurrency)
	}
	for i, seg := range segments {
		text := strings.TrimSpace(seg.Narration)
		if text == "" {
			continue
		}
		res := &synthResult{}
		results[i] = res
		g.Go(func() error {
			res.speech, res.err = b.Synth.Synthesize(ctx, text)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tl := &Timeline{}
	spoken := 0
	offset := 0.0
	for i, res := range results {
		if res == nil {
			log.Debug().Int("segment", i).Msg("empty narration skipped")
			continue
		}

		scene := director.Scene{
			Segment:   segments[i],
			Source:    i,
			StartTime: offset,
		}
		scene.Narration = strings.TrimSpace(scene.Narration)

		switch {
		case res.err != nil:
			log.Warn().Err(res.err).Int("segment", i).Float64("silence", b.SilenceFloor).Msg("synthesis failed, inserting silence")
			scene.Duration, scene.Silent = b.SilenceFloor, true
		case res.speech.Duration <= b.MinUsable:
			log.Warn().Int("segment", i).Float64("duration", res.speech.Duration).Float64("silence", b.SilenceFloor).Msg("synthesized speech unusable, inserting silence")
			scene.Duration, scene.Silent = b.SilenceFloor, true
		default:
			scene.Duration, scene.Audio = res.speech.Duration, res.speech.Path
			spoken++
		}

		tl.Scenes = append(tl.Scenes, scene)
		offset += scene.Duration
	}

	if spoken == 0 {
		return nil, fmt.Errorf("%w (%d segments)", ErrEmptyTimeline, len(segments))
	}
	tl.Duration = offset

	log.Info().Int("scenes", len(tl.Scenes)).Int("spoken", spoken).Float64("duration", tl.Duration).Msg("timeline built")
	return tl, nil
}
