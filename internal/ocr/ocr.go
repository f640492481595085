// Package ocr recognizes text on panel images with the tesseract CLI.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ivlev/manhwa2video/internal/config"
)

// Recognizer extracts text from an encoded image. An empty result is not an
// error.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// runFunc executes name with args, feeding stdin, and returns stdout.
type runFunc func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

type Tesseract struct {
	command string
	lang    string
	timeout time.Duration
	run     runFunc
}

func NewTesseract(cfg config.OCRConfig) *Tesseract {
	return &Tesseract{command: cfg.Command, lang: cfg.Lang, timeout: cfg.Timeout, run: execRun}
}

func (t *Tesseract) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", nil
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	args := []string{"stdin", "stdout"}
	if t.lang != "" {
		args = append(args, "-l", t.lang)
	}
	out, err := t.run(ctx, image, t.command, args...)
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func execRun(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// JoinPages concatenates per-panel text with the page break marker the
// fallback script and the language model prompt expect.
func JoinPages(texts []string) string {
	return strings.Join(texts, PageBreak)
}

const PageBreak = "\n\n--- PAGE BREAK ---\n\n"
