package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
	"strings"
)

// Profile is an encoding preset.
type Profile struct {
	Width, Height int
	FPS           int
	Encoder       string // libx264, h264_nvenc, h264_videotoolbox
	Quality       int    // CRF / CQ / bitrate factor depending on Encoder
	Bitrate       string // fixed video bitrate, overrides Quality when set
	Preset        string // x264 preset
	AudioBitrate  string
}

// StreamRequest describes one encode of raw RGBA frames.
type StreamRequest struct {
	Frames     <-chan *image.RGBA // canvas-sized frames in order
	Release    func(*image.RGBA)  // called after each frame is written
	Audio      string             // optional audio file muxed alongside
	AudioLimit float64            // read at most this many seconds of audio, 0 = all
	Duration   float64            // output length in seconds
	Output     string
	Profile    Profile
}

// AudioTrack is one part of a master audio track. An empty Path is silence.
type AudioTrack struct {
	Path     string
	Duration float64
}

type VideoEncoder interface {
	EncodeStream(ctx context.Context, req StreamRequest) error
	ConcatAudio(ctx context.Context, tracks []AudioTrack, output string) error
}

type FFmpegEncoder struct{}

// EncodeStream pipes frames into ffmpeg as rawvideo over stdin.
func (e *FFmpegEncoder) EncodeStream(ctx context.Context, req StreamRequest) error {
	args := e.buildStreamArgs(req)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe error: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start error: %w", err)
	}

	var writeErr error
	for frame := range req.Frames {
		if writeErr == nil {
			writeErr = e.writeRawRGBA(stdin, frame)
		}
		if req.Release != nil {
			req.Release(frame)
		}
	}
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %w, output: %s", err, tail(out.String(), 2000))
	}
	if writeErr != nil {
		return fmt.Errorf("write raw error: %w", writeErr)
	}
	return nil
}

func (e *FFmpegEncoder) buildStreamArgs(req StreamRequest) []string {
	p := req.Profile
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", fmt.Sprintf("%d", p.FPS),
		"-i", "-",
	}

	if req.Audio != "" {
		if req.AudioLimit > 0 {
			args = append(args, "-t", fmt.Sprintf("%f", req.AudioLimit))
		}
		args = append(args, "-i", req.Audio, "-map", "0:v", "-map", "1:a")
	}

	args = append(args,
		"-t", fmt.Sprintf("%f", req.Duration),
		"-pix_fmt", "yuv420p",
		"-c:v", p.Encoder,
	)
	args = append(args, qualityArgs(p)...)

	if req.Audio != "" {
		bitrate := p.AudioBitrate
		if bitrate == "" {
			bitrate = "192k"
		}
		args = append(args, "-c:a", "aac", "-b:a", bitrate)
	}

	args = append(args, "-movflags", "+faststart", req.Output)
	return args
}

func qualityArgs(p Profile) []string {
	if p.Bitrate != "" {
		args := []string{"-b:v", p.Bitrate}
		if p.Encoder == "libx264" && p.Preset != "" {
			args = append(args, "-preset", p.Preset)
		}
		return args
	}

	switch p.Encoder {
	case "h264_videotoolbox":
		// VideoToolbox does not take -crf; quality maps to a bitrate
		return []string{"-b:v", fmt.Sprintf("%dk", p.Quality*100)}
	case "h264_nvenc":
		return []string{"-cq", fmt.Sprintf("%d", p.Quality)}
	default: // libx264
		preset := p.Preset
		if preset == "" {
			preset = "medium"
		}
		return []string{"-crf", fmt.Sprintf("%d", p.Quality), "-preset", preset}
	}
}

func (e *FFmpegEncoder) writeRawRGBA(w io.Writer, img *image.RGBA) error {
	bounds := img.Bounds()
	if img.Stride != bounds.Dx()*4 || bounds.Min != (image.Point{}) {
		tight := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(tight, tight.Bounds(), img, bounds.Min, draw.Src)
		img = tight
	}
	_, err := w.Write(img.Pix)
	return err
}

// ConcatAudio joins tracks into one mp3. Every part is padded or trimmed to
// its recorded duration, so the result is exactly the sum of durations.
func (e *FFmpegEncoder) ConcatAudio(ctx context.Context, tracks []AudioTrack, output string) error {
	if len(tracks) == 0 {
		return fmt.Errorf("no audio tracks to concatenate")
	}
	args := e.buildConcatArgs(tracks, output)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg concat error: %v, output: %s", err, tail(string(out), 2000))
	}
	return nil
}

func (e *FFmpegEncoder) buildConcatArgs(tracks []AudioTrack, output string) []string {
	args := []string{"-y"}
	for _, t := range tracks {
		if t.Path == "" {
			args = append(args, "-f", "lavfi", "-t", fmt.Sprintf("%f", t.Duration), "-i", "anullsrc=r=24000:cl=mono")
		} else {
			args = append(args, "-i", t.Path)
		}
	}

	var graph, inputs strings.Builder
	for i, t := range tracks {
		fmt.Fprintf(&graph, "[%d:a]aresample=24000,aformat=channel_layouts=mono,apad,atrim=0:%f,asetpts=N/SR/TB[a%d];", i, t.Duration, i)
		fmt.Fprintf(&inputs, "[a%d]", i)
	}
	fmt.Fprintf(&graph, "%sconcat=n=%d:v=0:a=1[aout]", inputs.String(), len(tracks))

	return append(args,
		"-filter_complex", graph.String(),
		"-map", "[aout]",
		"-c:a", "libmp3lame", "-b:a", "128k",
		output,
	)
}

// TrimAudio copies the first seconds of input into output.
func TrimAudio(ctx context.Context, input, output string, seconds float64) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y", "-t", fmt.Sprintf("%f", seconds), "-i", input, "-c:a", "libmp3lame", "-b:a", "128k", output)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg trim error: %v, output: %s", err, tail(string(out), 2000))
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
