package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "go.uber.org/automaxprocs"

	"github.com/ivlev/manhwa2video/internal/config"
	"github.com/ivlev/manhwa2video/internal/director"
	"github.com/ivlev/manhwa2video/internal/jobs"
	"github.com/ivlev/manhwa2video/internal/llm"
	"github.com/ivlev/manhwa2video/internal/ocr"
	"github.com/ivlev/manhwa2video/internal/pipeline"
	"github.com/ivlev/manhwa2video/internal/source"
	"github.com/ivlev/manhwa2video/internal/storage"
	"github.com/ivlev/manhwa2video/internal/system"
	"github.com/ivlev/manhwa2video/internal/tts"
	"github.com/ivlev/manhwa2video/internal/video"
)

var version = "dev"

const usage = `Usage: manhwa2video <command> [flags]

Commands:
  story   extract panels, write the script and narration, save a render manifest
  render  render the preview and the full video from a manifest
  status  print one job record
  jobs    list job records, newest first

Run "manhwa2video <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch cmd {
	case "story":
		err = runStory(ctx, args)
	case "render":
		err = runRender(ctx, args)
	case "status":
		err = runStatus(ctx, args)
	case "jobs":
		err = runJobs(ctx, args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Printf("[-] Error: %v\n", err)
		os.Exit(1)
	}
}

// common holds the flags every command accepts.
type common struct {
	configPath string
	verbose    bool
	stats      bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Path to a YAML config file")
	fs.BoolVar(&c.verbose, "v", false, "Debug logging")
	fs.BoolVar(&c.stats, "stats", false, "Print host capacity and timing")
}

func (c *common) load() (config.Config, error) {
	setupLogging(c.verbose)
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return cfg, err
	}
	cfg.BuildVersion = version
	cfg.ShowStats = cfg.ShowStats || c.stats
	return cfg, nil
}

func setupLogging(verbose bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
}

func runStory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("story", flag.ExitOnError)
	var c common
	c.register(fs)
	input := fs.String("input", "", "PDF file or folder of page images (default: newest PDF in input/pdf/)")
	title := fs.String("title", "", "Story title (default: input file name)")
	genre := fs.String("genre", "", "Genre hint for the narrator")
	dpi := fs.Int("dpi", 0, "Rasterization DPI (0 keeps the config value)")
	fs.Parse(args)

	cfg, err := c.load()
	if err != nil {
		return err
	}
	if *dpi > 0 {
		cfg.Extract.DPI = *dpi
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	system.InitResourceLimits()
	if !system.HasFFmpeg() {
		return errors.New("ffmpeg/ffprobe not found in PATH")
	}

	path := *input
	if path == "" {
		os.MkdirAll("input/pdf", 0755)
		if path, err = system.FindLatestPDF("input/pdf"); err != nil {
			return fmt.Errorf("%v. Put a PDF into input/pdf/", err)
		}
		fmt.Printf("[*] Selected input: %s\n", path)
	}
	if *title == "" {
		*title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	src, err := openSource(path)
	if err != nil {
		return err
	}
	defer src.Close()

	p, cleanup, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	start := time.Now()
	res, err := p.Story(ctx, pipeline.StoryInput{Title: *title, Genre: *genre, Source: src})
	if err != nil {
		return err
	}

	m := res.Manifest
	if m.Fallback {
		fmt.Println("[*] Script generation was unavailable, used the fallback script")
	}
	if res.SilentScenes > 0 {
		fmt.Printf("[*] %d scene(s) have silent narration\n", res.SilentScenes)
	}
	fmt.Printf("[+] Story ready: %d panels, %d scenes, %.1fs of narration\n", len(m.Panels), len(m.Scenes), m.Duration)
	fmt.Printf("[+] Audio: %s\n", m.AudioURL)
	fmt.Printf("[+] Manifest: %s\n", res.ManifestPath)
	printStats(cfg, start)
	return nil
}

func runRender(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	var c common
	c.register(fs)
	manifestPath := fs.String("manifest", "", "Render manifest (default: newest in the manifest dir)")
	fps := fs.Int("fps", 0, "Frame rate override")
	fs.Parse(args)

	cfg, err := c.load()
	if err != nil {
		return err
	}
	if *fps > 0 {
		cfg.Render.FPS = *fps
	}
	system.InitResourceLimits()
	if !system.HasFFmpeg() {
		return errors.New("ffmpeg/ffprobe not found in PATH")
	}

	path := *manifestPath
	if path == "" {
		if path, err = director.FindLatestManifest(cfg.ManifestDir); err != nil {
			return err
		}
		fmt.Printf("[*] Selected manifest: %s\n", path)
	}
	m, err := director.ReadManifest(path)
	if err != nil {
		return err
	}

	p, cleanup, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	start := time.Now()
	rec, err := p.Render(ctx, m)
	if err != nil {
		return fmt.Errorf("job %s: %w", rec.ID, err)
	}
	fmt.Printf("[*] Job %s: preview %s\n", rec.ID, deref(rec.PreviewURL))
	fmt.Println("[*] Rendering full video...")

	p.Runner().Wait()

	final, err := p.JobStore().Get(context.WithoutCancel(ctx), rec.ID)
	if err != nil {
		return err
	}
	if final.Status != jobs.Completed {
		return fmt.Errorf("job %s: %s", final.ID, final.Message)
	}
	fmt.Printf("[+] Done! Video: %s\n", deref(final.VideoURL))
	printStats(cfg, start)
	return nil
}

func runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	var c common
	c.register(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: manhwa2video status <job-id>")
	}

	cfg, err := c.load()
	if err != nil {
		return err
	}
	store, closeFn, err := openJobs(cfg.Jobs)
	if err != nil {
		return err
	}
	defer closeFn()

	rec, err := store.Get(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(rec, "", "  ")
	fmt.Println(string(out))
	return nil
}

func runJobs(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("jobs", flag.ExitOnError)
	var c common
	c.register(fs)
	fs.Parse(args)

	cfg, err := c.load()
	if err != nil {
		return err
	}
	store, closeFn, err := openJobs(cfg.Jobs)
	if err != nil {
		return err
	}
	defer closeFn()

	recs, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("[*] No jobs")
		return nil
	}
	for _, r := range recs {
		fmt.Printf("%s  %-10s  %s  %s\n", r.ID, r.Status, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Message)
	}
	return nil
}

func openSource(path string) (source.Source, error) {
	if strings.HasSuffix(strings.ToLower(path), ".pdf") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return source.NewFitzPDFSource(data)
	}
	return source.NewImageSource(path)
}

func openJobs(cfg config.JobsConfig) (jobs.Store, func(), error) {
	switch cfg.Backend {
	case "etcd":
		s, err := jobs.NewEtcdStore(cfg.Endpoints, cfg.Namespace, cfg.Timeout)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		s, err := jobs.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}

func buildPipeline(cfg config.Config) (*pipeline.Pipeline, func(), error) {
	store, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	synth, err := tts.New(cfg.TTS, cfg.Timeline.MinUsable)
	if err != nil {
		return nil, nil, err
	}
	jobStore, closeJobs, err := openJobs(cfg.Jobs)
	if err != nil {
		return nil, nil, err
	}

	deps := pipeline.Deps{
		Storage: store,
		OCR:     ocr.NewTesseract(cfg.OCR),
		Synth:   synth,
		Encoder: &video.FFmpegEncoder{},
		Jobs:    jobStore,
	}
	if gen, err := llm.New(cfg.LLM); err != nil {
		log.Warn().Err(err).Msg("script generation disabled, stories will use the fallback script")
	} else {
		deps.Generator = gen
	}

	p, err := pipeline.New(cfg, deps)
	if err != nil {
		closeJobs()
		return nil, nil, err
	}
	return p, closeJobs, nil
}

func printStats(cfg config.Config, start time.Time) {
	if !cfg.ShowStats {
		return
	}
	fmt.Printf("[*] Elapsed: %s\n", time.Since(start).Round(time.Millisecond))
	c, err := system.HostCapacity()
	if err != nil {
		return
	}
	fmt.Printf("[*] Host: %d CPUs, %d/%d MiB memory available (%.0f%% used)\n",
		c.CPUs, c.AvailableMemory>>20, c.TotalMemory>>20, c.UsedPercent)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
