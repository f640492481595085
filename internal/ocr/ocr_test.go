package ocr

import (
	"context"
	"errors"
	"testing"

	"github.com/ivlev/manhwa2video/internal/config"
)

func TestRecognize(t *testing.T) {
	tess := NewTesseract(config.Default().OCR)

	var gotArgs []string
	var gotStdin []byte
	tess.run = func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		gotStdin = stdin
		return []byte("  HELLO THERE\n\n"), nil
	}

	text, err := tess.Recognize(context.Background(), []byte{0xFF, 0xD8})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if text != "HELLO THERE" {
		t.Errorf("Expected trimmed text, got %q", text)
	}
	want := []string{"tesseract", "stdin", "stdout", "-l", "eng"}
	if len(gotArgs) != len(want) {
		t.Fatalf("args = %v", gotArgs)
	}
	for i := range want {
		if gotArgs[i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, gotArgs[i], want[i])
		}
	}
	if len(gotStdin) != 2 {
		t.Errorf("image not passed on stdin")
	}
}

func TestRecognizeEmptyAndFailure(t *testing.T) {
	tess := NewTesseract(config.Default().OCR)
	tess.run = func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	}

	if text, err := tess.Recognize(context.Background(), nil); err != nil || text != "" {
		t.Errorf("empty image should give empty text, got %q %v", text, err)
	}
	if _, err := tess.Recognize(context.Background(), []byte{1}); err == nil {
		t.Error("expected error from failing command")
	}
}

func TestJoinPages(t *testing.T) {
	got := JoinPages([]string{"a", "", "b"})
	if got != "a"+PageBreak+PageBreak+"b" {
		t.Errorf("JoinPages = %q", got)
	}
}
