package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ivlev/manhwa2video/internal/config"
)

// LocalStore writes objects below a directory. Returned URLs use BaseURL
// when configured, otherwise file:// URLs.
type LocalStore struct {
	dir     string
	baseURL string
	cfg     config.StorageConfig
	client  *http.Client
}

func NewLocalStore(cfg config.StorageConfig) (*LocalStore, error) {
	dir, err := filepath.Abs(cfg.LocalDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.DownloadTimeout},
	}, nil
}

func (s *LocalStore) Upload(ctx context.Context, data []byte, dest, contentType string) (string, error) {
	dest = strings.TrimLeft(filepath.ToSlash(dest), "/")
	target := filepath.Join(s.dir, filepath.FromSlash(dest))
	if !strings.HasPrefix(target, s.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s escapes storage root", ErrUpload, dest)
	}

	err := retry(ctx, "upload "+dest, s.cfg.UploadAttempts, s.cfg.Backoff, func() error {
		return writeFile(target, bytes.NewReader(data))
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUpload, dest, err)
	}

	if s.baseURL != "" {
		return s.baseURL + "/" + dest, nil
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(target)}).String(), nil
}

func (s *LocalStore) Download(ctx context.Context, rawURL, localPath string) error {
	err := retry(ctx, "download "+rawURL, s.cfg.DownloadAttempts, s.cfg.Backoff, func() error {
		if src, ok := s.localPath(rawURL); ok {
			f, err := os.Open(src)
			if err != nil {
				return err
			}
			defer f.Close()
			return writeFile(localPath, f)
		}
		dctx, cancel := context.WithTimeout(ctx, timeoutOr(s.cfg.DownloadTimeout))
		defer cancel()
		return fetchHTTP(dctx, s.client, rawURL, localPath)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDownload, rawURL, err)
	}
	return nil
}

// localPath maps file:// URLs, plain paths and BaseURL-prefixed URLs to disk.
func (s *LocalStore) localPath(rawURL string) (string, bool) {
	if s.baseURL != "" && strings.HasPrefix(rawURL, s.baseURL+"/") {
		return filepath.Join(s.dir, filepath.FromSlash(strings.TrimPrefix(rawURL, s.baseURL+"/"))), true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	switch u.Scheme {
	case "file":
		return filepath.FromSlash(u.Path), true
	case "":
		return rawURL, true
	}
	return "", false
}

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}
