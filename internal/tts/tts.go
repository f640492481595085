// Package tts synthesizes narration with the edge-tts CLI. Results are
// cached on disk by the md5 of the normalized text and voice.
package tts

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/ivlev/manhwa2video/internal/config"
	"github.com/ivlev/manhwa2video/internal/system"
	"github.com/ivlev/manhwa2video/internal/timeline"
)

var ErrSynthesis = errors.New("speech synthesis failed")

// EdgeTTS implements timeline.Synthesizer.
type EdgeTTS struct {
	cfg       config.TTSConfig
	minUsable float64
	backoff   time.Duration

	inflight singleflight.Group

	speak func(ctx context.Context, text, out string) error
	probe func(ctx context.Context, path string) (float64, error)
}

var _ timeline.Synthesizer = (*EdgeTTS)(nil)

func New(cfg config.TTSConfig, minUsable float64) (*EdgeTTS, error) {
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return nil, err
	}
	e := &EdgeTTS{cfg: cfg, minUsable: minUsable, backoff: time.Second, probe: system.GetAudioDuration}
	e.speak = e.runCommand
	return e, nil
}

// Normalize collapses whitespace so equivalent narrations share a cache entry.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func (e *EdgeTTS) cachePath(text string) string {
	sum := md5.Sum([]byte(e.cfg.Voice + "\x00" + text))
	return filepath.Join(e.cfg.CacheDir, hex.EncodeToString(sum[:])+".mp3")
}

func (e *EdgeTTS) Synthesize(ctx context.Context, text string) (timeline.Speech, error) {
	text = Normalize(text)
	if text == "" {
		return timeline.Speech{}, fmt.Errorf("%w: empty text", ErrSynthesis)
	}
	path := e.cachePath(text)

	// scenes repeating a line share one synthesis
	v, err, _ := e.inflight.Do(path, func() (any, error) {
		return e.synthesize(ctx, text, path)
	})
	if err != nil {
		return timeline.Speech{}, err
	}
	return v.(timeline.Speech), nil
}

func (e *EdgeTTS) synthesize(ctx context.Context, text, path string) (timeline.Speech, error) {
	if _, err := os.Stat(path); err == nil {
		d, err := e.probe(ctx, path)
		if err == nil && d > e.minUsable {
			log.Debug().Str("path", path).Float64("duration", d).Msg("tts cache hit")
			return timeline.Speech{Path: path, Duration: d}, nil
		}
		log.Warn().Str("path", path).Msg("cached narration unusable, regenerating")
	}

	attempts := max(e.cfg.Attempts, 1)
	var lastErr error
	for i := 1; i <= attempts; i++ {
		d, err := e.attempt(ctx, text, path)
		if err == nil {
			return timeline.Speech{Path: path, Duration: d}, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", i).Msg("tts attempt failed")
		if i < attempts {
			select {
			case <-ctx.Done():
				return timeline.Speech{}, ctx.Err()
			case <-time.After(e.backoff * time.Duration(i)):
			}
		}
	}
	return timeline.Speech{}, fmt.Errorf("%w: %v", ErrSynthesis, lastErr)
}

// attempt synthesizes into a private temp file and renames it over path
// only once it is known to be usable.
func (e *EdgeTTS) attempt(ctx context.Context, text, path string) (float64, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	f, err := os.CreateTemp(e.cfg.CacheDir, "part-*.mp3")
	if err != nil {
		return 0, err
	}
	tmp := f.Name()
	f.Close()
	defer os.Remove(tmp)

	if err := e.speak(ctx, text, tmp); err != nil {
		return 0, err
	}
	d, err := e.probe(ctx, tmp)
	if err != nil {
		return 0, err
	}
	if d <= e.minUsable {
		return 0, fmt.Errorf("audio too short: %.2fs", d)
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, err
	}
	return d, nil
}

func (e *EdgeTTS) runCommand(ctx context.Context, text, out string) error {
	args := []string{"--text", text, "--write-media", out}
	if e.cfg.Voice != "" {
		args = append(args, "--voice", e.cfg.Voice)
	}
	cmd := exec.CommandContext(ctx, e.cfg.Command, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %v: %s", e.cfg.Command, err, strings.TrimSpace(string(output)))
	}
	return nil
}
