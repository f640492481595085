package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is built once at startup and handed to each component by value.
type Config struct {
	Extract  ExtractConfig  `yaml:"extract"`
	Render   RenderConfig   `yaml:"render"`
	Timeline TimelineConfig `yaml:"timeline"`
	TTS      TTSConfig      `yaml:"tts"`
	OCR      OCRConfig      `yaml:"ocr"`
	LLM      LLMConfig      `yaml:"llm"`
	Storage  StorageConfig  `yaml:"storage"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Budget   BudgetConfig   `yaml:"budget"`

	Workers      int    `yaml:"workers"`
	WorkDir      string `yaml:"work_dir"`
	ManifestDir  string `yaml:"manifest_dir"`
	ShowStats    bool   `yaml:"show_stats"`
	BuildVersion string `yaml:"-"`
}

type ExtractConfig struct {
	DPI            int     `yaml:"dpi"`
	MaxPages       int     `yaml:"max_pages"`
	MaxPanels      int     `yaml:"max_panels"`
	JPEGQuality    int     `yaml:"jpeg_quality"`
	Detector       string  `yaml:"detector"`
	AnalysisWidth  int     `yaml:"analysis_width"`
	EdgeThreshold  float64 `yaml:"edge_threshold"`
	DilateKernel   int     `yaml:"dilate_kernel"`
	DilateIters    int     `yaml:"dilate_iterations"`
	MinHeightRatio float64 `yaml:"min_height_ratio"`
	MinWidthRatio  float64 `yaml:"min_width_ratio"`
	MinAreaRatio   float64 `yaml:"min_area_ratio"`
	MaxPerPage     int     `yaml:"max_per_page"`
	PageCutoff     float64 `yaml:"page_contrast_cutoff"`
	PanelCutoff    float64 `yaml:"panel_contrast_cutoff"`
}

// SegmentParams carries the subset of ExtractConfig the panel segmenter needs.
type SegmentParams struct {
	AnalysisWidth  int
	EdgeThreshold  float64
	DilateKernel   int
	DilateIters    int
	MinHeightRatio float64
	MinWidthRatio  float64
	MinAreaRatio   float64
	MaxPerPage     int
	PanelCutoff    float64
}

type RenderConfig struct {
	Width         int     `yaml:"width"`
	Height        int     `yaml:"height"`
	FPS           int     `yaml:"fps"`
	VideoEncoder  string  `yaml:"video_encoder"`
	Quality       int     `yaml:"quality"`
	AudioBitrate  string  `yaml:"audio_bitrate"`
	PreviewImages int     `yaml:"preview_images"`
	PreviewLength float64 `yaml:"preview_seconds"`
	PreviewWidth  int     `yaml:"preview_width"`
	PreviewFPS    int     `yaml:"preview_fps"`
}

type TimelineConfig struct {
	SilenceFloor float64 `yaml:"silence_floor"`
	MinUsable    float64 `yaml:"min_usable"`
	Concurrency  int     `yaml:"concurrency"`
}

type TTSConfig struct {
	Command  string        `yaml:"command"`
	Voice    string        `yaml:"voice"`
	CacheDir string        `yaml:"cache_dir"`
	Attempts int           `yaml:"attempts"`
	Timeout  time.Duration `yaml:"timeout"`
}

type OCRConfig struct {
	Command string        `yaml:"command"`
	Lang    string        `yaml:"lang"`
	Timeout time.Duration `yaml:"timeout"`
}

type LLMConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"-"`
	Timeout   time.Duration `yaml:"timeout"`
	Attempts  int           `yaml:"attempts"`
	MaxImages int           `yaml:"max_images"`
	MaxScenes int           `yaml:"max_scenes"`
}

type StorageConfig struct {
	Backend   string `yaml:"backend"` // local, cos
	LocalDir  string `yaml:"local_dir"`
	BaseURL   string `yaml:"base_url"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Domain    string `yaml:"domain"`
	Prefix    string `yaml:"prefix"`
	SecretID  string `yaml:"-"`
	SecretKey string `yaml:"-"`

	UploadAttempts   int           `yaml:"upload_attempts"`
	DownloadAttempts int           `yaml:"download_attempts"`
	Backoff          time.Duration `yaml:"backoff"`
	DownloadTimeout  time.Duration `yaml:"download_timeout"`
}

type JobsConfig struct {
	Backend   string        `yaml:"backend"` // file, etcd
	Dir       string        `yaml:"dir"`
	Endpoints []string      `yaml:"endpoints"`
	Namespace string        `yaml:"namespace"`
	Timeout   time.Duration `yaml:"dial_timeout"`
}

type BudgetConfig struct {
	ProcessingSeconds float64 `yaml:"processing_seconds"`
	SecondsPerPage    float64 `yaml:"seconds_per_page"`
	MemoryShare       float64 `yaml:"memory_share"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Extract: ExtractConfig{
			DPI:            200,
			MaxPages:       50,
			MaxPanels:      50,
			JPEGQuality:    75,
			Detector:       "contrast",
			AnalysisWidth:  800,
			EdgeThreshold:  60,
			DilateKernel:   15,
			DilateIters:    2,
			MinHeightRatio: 0.15,
			MinWidthRatio:  0.20,
			MinAreaRatio:   0.05,
			MaxPerPage:     20,
			PageCutoff:     2,
			PanelCutoff:    3,
		},
		Render: RenderConfig{
			Width:         1080,
			Height:        1920,
			FPS:           30,
			VideoEncoder:  "auto",
			Quality:       23,
			AudioBitrate:  "192k",
			PreviewImages: 5,
			PreviewLength: 5,
			PreviewWidth:  480,
			PreviewFPS:    12,
		},
		Timeline: TimelineConfig{
			SilenceFloor: 0.8,
			MinUsable:    0.2,
			Concurrency:  8,
		},
		TTS: TTSConfig{
			Command:  "edge-tts",
			Voice:    "en-US-GuyNeural",
			CacheDir: "tts_cache",
			Attempts: 3,
			Timeout:  60 * time.Second,
		},
		OCR: OCRConfig{
			Command: "tesseract",
			Lang:    "eng",
			Timeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			Timeout:   120 * time.Second,
			Attempts:  2,
			MaxImages: 50,
			MaxScenes: 200,
		},
		Storage: StorageConfig{
			Backend:          "local",
			LocalDir:         "output/storage",
			UploadAttempts:   3,
			DownloadAttempts: 3,
			Backoff:          500 * time.Millisecond,
			DownloadTimeout:  30 * time.Second,
		},
		Jobs: JobsConfig{
			Backend:   "file",
			Dir:       "output/jobs",
			Namespace: "manhwa2video",
			Timeout:   5 * time.Second,
		},
		Budget: BudgetConfig{
			ProcessingSeconds: 1000,
			SecondsPerPage:    8,
			MemoryShare:       0.25,
		},
		Workers:     runtime.NumCPU(),
		ManifestDir: "output/manifests",
	}
}

// Load reads defaults, the optional YAML file and secrets from the
// environment (including an optional .env file).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// Missing .env is fine; real environment wins over the file.
	_ = godotenv.Load()

	cfg.LLM.APIKey = firstNonEmpty(os.Getenv("LLM_API_KEY"), os.Getenv("OPENAI_API_KEY"))
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	cfg.Storage.SecretID = os.Getenv("COS_SECRET_ID")
	cfg.Storage.SecretKey = os.Getenv("COS_SECRET_KEY")

	return cfg, cfg.Validate()
}

// Validate checks the values components rely on.
func (c Config) Validate() error {
	if c.Render.Width <= 0 || c.Render.Height <= 0 || c.Render.Width%2 != 0 || c.Render.Height%2 != 0 {
		return fmt.Errorf("render size must be positive and even, got %dx%d", c.Render.Width, c.Render.Height)
	}
	if c.Render.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", c.Render.FPS)
	}
	if c.Extract.DPI < 36 || c.Extract.DPI > 600 {
		return fmt.Errorf("dpi out of range [36, 600]: %d", c.Extract.DPI)
	}
	if c.Extract.MaxPages <= 0 {
		return fmt.Errorf("max_pages must be positive")
	}
	if c.Timeline.SilenceFloor <= 0 {
		return fmt.Errorf("silence_floor must be positive")
	}
	switch c.Storage.Backend {
	case "local", "cos":
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}
	switch c.Jobs.Backend {
	case "file", "etcd":
	default:
		return fmt.Errorf("unknown jobs backend: %s", c.Jobs.Backend)
	}
	return nil
}

// Segment extracts the segmenter parameters.
func (e ExtractConfig) Segment() SegmentParams {
	return SegmentParams{
		AnalysisWidth:  e.AnalysisWidth,
		EdgeThreshold:  e.EdgeThreshold,
		DilateKernel:   e.DilateKernel,
		DilateIters:    e.DilateIters,
		MinHeightRatio: e.MinHeightRatio,
		MinWidthRatio:  e.MinWidthRatio,
		MinAreaRatio:   e.MinAreaRatio,
		MaxPerPage:     e.MaxPerPage,
		PanelCutoff:    e.PanelCutoff,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
