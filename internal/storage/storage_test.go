package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/ivlev/manhwa2video/internal/config"
)

func testConfig(dir string) config.StorageConfig {
	cfg := config.Default().Storage
	cfg.LocalDir = dir
	cfg.Backoff = time.Millisecond
	cfg.DownloadTimeout = 2 * time.Second
	return cfg
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		attempts  int
		wantCalls int
		wantErr   bool
	}{
		{"first try", 0, 3, 1, false},
		{"recovers", 2, 3, 3, false},
		{"exhausted", 5, 3, 3, true},
		{"zero attempts means one", 5, 0, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := retry(context.Background(), "op", tt.attempts, time.Millisecond, func() error {
				calls++
				if calls <= tt.failures {
					return errors.New("flaky")
				}
				return nil
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLocalStore(t *testing.T) {
	Convey("Given a local store", t, func() {
		root := t.TempDir()
		store, err := NewLocalStore(testConfig(root))
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("Upload writes below the root and returns a file URL", func() {
			url, err := store.Upload(ctx, []byte("jpeg"), "story/images/panel_000.jpg", "image/jpeg")
			So(err, ShouldBeNil)
			So(url, ShouldStartWith, "file://")

			data, err := os.ReadFile(filepath.Join(root, "story", "images", "panel_000.jpg"))
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "jpeg")

			Convey("and Download reads it back", func() {
				out := filepath.Join(t.TempDir(), "p.jpg")
				So(store.Download(ctx, url, out), ShouldBeNil)
				data, _ := os.ReadFile(out)
				So(string(data), ShouldEqual, "jpeg")
			})
		})

		Convey("Destinations cannot escape the root", func() {
			_, err := store.Upload(ctx, []byte("x"), "../../etc/passwd", "text/plain")
			So(errors.Is(err, ErrUpload), ShouldBeTrue)
		})

		Convey("A configured base URL is used for public links", func() {
			cfg := testConfig(root)
			cfg.BaseURL = "https://cdn.example.com/media/"
			s, err := NewLocalStore(cfg)
			So(err, ShouldBeNil)

			url, err := s.Upload(ctx, []byte("mp3"), "story/audio/narration.mp3", "audio/mpeg")
			So(err, ShouldBeNil)
			So(url, ShouldEqual, "https://cdn.example.com/media/story/audio/narration.mp3")

			out := filepath.Join(t.TempDir(), "a.mp3")
			So(s.Download(ctx, url, out), ShouldBeNil)
		})

		Convey("HTTP downloads are retried", func() {
			calls := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				if calls < 3 {
					http.Error(w, "busy", http.StatusServiceUnavailable)
					return
				}
				w.Write([]byte("payload"))
			}))
			defer srv.Close()

			out := filepath.Join(t.TempDir(), "dl.bin")
			So(store.Download(ctx, srv.URL+"/x", out), ShouldBeNil)
			So(calls, ShouldEqual, 3)
		})

		Convey("A download that keeps failing surfaces ErrDownload", func() {
			srv := httptest.NewServer(http.NotFoundHandler())
			defer srv.Close()

			err := store.Download(ctx, srv.URL+"/missing", filepath.Join(t.TempDir(), "x"))
			So(errors.Is(err, ErrDownload), ShouldBeTrue)
		})
	})
}

func TestNew(t *testing.T) {
	cfg := testConfig(t.TempDir())
	if _, err := New(cfg); err != nil {
		t.Fatalf("local store: %v", err)
	}

	cfg.Backend = "cos"
	if _, err := New(cfg); err == nil {
		t.Error("cos store without bucket should fail")
	}

	cfg.Bucket, cfg.Region, cfg.Prefix = "media-125", "ap-guangzhou", "/m2v/"
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("cos store: %v", err)
	}
	c := s.(*COSStore)
	if got := c.key("/previews/j/preview.mp4"); got != "m2v/previews/j/preview.mp4" {
		t.Errorf("key = %q", got)
	}
	if !strings.HasPrefix(c.public, "https://media-125.cos.ap-guangzhou") {
		t.Errorf("public = %q", c.public)
	}

	cfg.Backend = "s3"
	if _, err := New(cfg); err == nil {
		t.Error("unknown backend should fail")
	}
}
