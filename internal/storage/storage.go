// Package storage moves artifacts to and from object storage. Every call is
// retried with linear backoff before it is reported as ErrUpload or
// ErrDownload.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ivlev/manhwa2video/internal/config"
)

var (
	ErrUpload   = errors.New("upload failed")
	ErrDownload = errors.New("download failed")
)

// Store uploads bytes under a destination key and fetches URLs it handed out.
type Store interface {
	Upload(ctx context.Context, data []byte, dest, contentType string) (string, error)
	Download(ctx context.Context, url, localPath string) error
}

// New builds the store selected by cfg.Backend.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(cfg)
	case "cos":
		return NewCOSStore(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// retry calls fn up to attempts times, sleeping backoff*n after the n-th
// failure.
func retry(ctx context.Context, op string, attempts int, backoff time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		log.Warn().Err(err).Str("op", op).Int("attempt", i).Msg("storage call failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(i)):
		}
	}
	return err
}

// fetchHTTP downloads url into localPath.
func fetchHTTP(ctx context.Context, client *http.Client, url, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return writeFile(localPath, resp.Body)
}

func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
