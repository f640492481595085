package video

import (
	"bytes"
	"image"
	"strings"
	"testing"
)

func argsString(args []string) string {
	return strings.Join(args, " ")
}

func TestBuildStreamArgs(t *testing.T) {
	e := &FFmpegEncoder{}

	full := StreamRequest{
		Audio:    "/tmp/narration.mp3",
		Duration: 12.5,
		Output:   "/tmp/out.mp4",
		Profile:  Profile{Width: 1080, Height: 1920, FPS: 30, Encoder: "libx264", Quality: 23},
	}
	preview := StreamRequest{
		Audio:      "/tmp/narration.mp3",
		AudioLimit: 5,
		Duration:   5,
		Output:     "/tmp/preview.mp4",
		Profile:    Profile{Width: 480, Height: 854, FPS: 12, Encoder: "libx264", Bitrate: "400k", Preset: "ultrafast"},
	}
	silent := StreamRequest{
		Duration: 5,
		Output:   "/tmp/silent.mp4",
		Profile:  Profile{Width: 480, Height: 854, FPS: 12, Encoder: "h264_nvenc", Quality: 28},
	}

	tests := []struct {
		name    string
		req     StreamRequest
		want    []string
		notWant []string
	}{
		{
			name: "full render",
			req:  full,
			want: []string{"-f rawvideo", "-video_size 1080x1920", "-framerate 30", "-i -", "-i /tmp/narration.mp3",
				"-map 0:v -map 1:a", "-t 12.500000", "-crf 23 -preset medium", "-c:a aac -b:a 192k", "-movflags +faststart /tmp/out.mp4"},
		},
		{
			name:    "preview",
			req:     preview,
			want:    []string{"-t 5.000000 -i /tmp/narration.mp3", "-b:v 400k -preset ultrafast", "-framerate 12"},
			notWant: []string{"-crf"},
		},
		{
			name:    "silent",
			req:     silent,
			want:    []string{"-c:v h264_nvenc", "-cq 28"},
			notWant: []string{"-map", "-c:a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsString(e.buildStreamArgs(tt.req))
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("Expected %q in args: %s", w, got)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(got, w) {
					t.Errorf("Did not expect %q in args: %s", w, got)
				}
			}
		})
	}
}

func TestBuildConcatArgs(t *testing.T) {
	e := &FFmpegEncoder{}
	tracks := []AudioTrack{
		{Path: "/tmp/0.mp3", Duration: 2.5},
		{Duration: 0.8},
		{Path: "/tmp/2.mp3", Duration: 1.25},
	}

	got := argsString(e.buildConcatArgs(tracks, "/tmp/master.mp3"))

	for _, w := range []string{
		"-i /tmp/0.mp3",
		"-f lavfi -t 0.800000 -i anullsrc=r=24000:cl=mono",
		"-i /tmp/2.mp3",
		"atrim=0:2.500000",
		"atrim=0:0.800000",
		"[a0][a1][a2]concat=n=3:v=0:a=1[aout]",
		"-map [aout]",
	} {
		if !strings.Contains(got, w) {
			t.Errorf("Expected %q in args: %s", w, got)
		}
	}
	if !strings.HasSuffix(got, "/tmp/master.mp3") {
		t.Errorf("Output should come last: %s", got)
	}
}

func TestWriteRawRGBA(t *testing.T) {
	e := &FFmpegEncoder{}
	parent := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range parent.Pix {
		parent.Pix[i] = byte(i)
	}
	sub := parent.SubImage(image.Rect(1, 1, 3, 3)).(*image.RGBA)

	var buf bytes.Buffer
	if err := e.writeRawRGBA(&buf, sub); err != nil {
		t.Fatalf("writeRawRGBA failed: %v", err)
	}
	if buf.Len() != 2*2*4 {
		t.Fatalf("Expected 16 bytes, got %d", buf.Len())
	}
	// first pixel of the sub image is (1,1) in the parent
	if buf.Bytes()[0] != parent.Pix[1*parent.Stride+4] {
		t.Errorf("Unexpected first byte %d", buf.Bytes()[0])
	}
}
