package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Render.Width != 1080 || cfg.Render.Height != 1920 {
		t.Errorf("Expected 1080x1920 canvas, got %dx%d", cfg.Render.Width, cfg.Render.Height)
	}
	if cfg.Render.FPS != 30 {
		t.Errorf("Expected 30 fps, got %d", cfg.Render.FPS)
	}
	if cfg.Timeline.SilenceFloor != 0.8 {
		t.Errorf("Expected silence floor 0.8, got %f", cfg.Timeline.SilenceFloor)
	}
	if cfg.Extract.MaxPerPage != 20 {
		t.Errorf("Expected 20 panels per page, got %d", cfg.Extract.MaxPerPage)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
extract:
  dpi: 300
render:
  fps: 24
tts:
  timeout: 15s
jobs:
  backend: etcd
  endpoints: ["127.0.0.1:2379"]
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Extract.DPI != 300 {
		t.Errorf("Expected dpi 300, got %d", cfg.Extract.DPI)
	}
	if cfg.Render.FPS != 24 {
		t.Errorf("Expected fps 24, got %d", cfg.Render.FPS)
	}
	if cfg.TTS.Timeout != 15*time.Second {
		t.Errorf("Expected tts timeout 15s, got %v", cfg.TTS.Timeout)
	}
	// untouched sections keep defaults
	if cfg.Render.Width != 1080 {
		t.Errorf("Expected default width, got %d", cfg.Render.Width)
	}
	if len(cfg.Jobs.Endpoints) != 1 {
		t.Errorf("Expected one etcd endpoint, got %v", cfg.Jobs.Endpoints)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"odd width", func(c *Config) { c.Render.Width = 1081 }, true},
		{"zero fps", func(c *Config) { c.Render.FPS = 0 }, true},
		{"huge dpi", func(c *Config) { c.Extract.DPI = 1200 }, true},
		{"bad storage", func(c *Config) { c.Storage.Backend = "s3" }, true},
		{"bad jobs", func(c *Config) { c.Jobs.Backend = "redis" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
