package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/tencentyun/cos-go-sdk-v5"

	"github.com/ivlev/manhwa2video/internal/config"
)

// COSStore keeps objects in a Tencent COS bucket.
type COSStore struct {
	client *cos.Client
	http   *http.Client
	public string
	prefix string
	cfg    config.StorageConfig
}

func NewCOSStore(cfg config.StorageConfig) (*COSStore, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("cos storage needs bucket and region")
	}
	bucketURL := fmt.Sprintf("https://%s.cos.%s.myqcloud.com", cfg.Bucket, cfg.Region)
	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, err
	}
	client := cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{
		Timeout: timeoutOr(cfg.DownloadTimeout) * 4,
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
		},
	})

	public := bucketURL
	if cfg.Domain != "" {
		public = "https://" + strings.TrimPrefix(strings.TrimRight(cfg.Domain, "/"), "https://")
	}
	return &COSStore{
		client: client,
		http:   &http.Client{Timeout: timeoutOr(cfg.DownloadTimeout)},
		public: public,
		prefix: strings.Trim(cfg.Prefix, "/"),
		cfg:    cfg,
	}, nil
}

func (s *COSStore) key(dest string) string {
	dest = strings.TrimLeft(dest, "/")
	if s.prefix == "" {
		return dest
	}
	return path.Join(s.prefix, dest)
}

func (s *COSStore) Upload(ctx context.Context, data []byte, dest, contentType string) (string, error) {
	key := s.key(dest)
	opt := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{
			ContentType: contentType,
		},
	}
	err := retry(ctx, "upload "+key, s.cfg.UploadAttempts, s.cfg.Backoff, func() error {
		_, err := s.client.Object.Put(ctx, key, bytes.NewReader(data), opt)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUpload, key, err)
	}
	return s.public + "/" + key, nil
}

// Download reads keys of this bucket through the SDK and anything else over
// plain HTTP.
func (s *COSStore) Download(ctx context.Context, rawURL, localPath string) error {
	err := retry(ctx, "download "+rawURL, s.cfg.DownloadAttempts, s.cfg.Backoff, func() error {
		dctx, cancel := context.WithTimeout(ctx, timeoutOr(s.cfg.DownloadTimeout))
		defer cancel()

		if key, ok := strings.CutPrefix(rawURL, s.public+"/"); ok {
			resp, err := s.client.Object.Get(dctx, key, nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return writeFile(localPath, resp.Body)
		}
		return fetchHTTP(dctx, s.http, rawURL, localPath)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDownload, rawURL, err)
	}
	return nil
}
