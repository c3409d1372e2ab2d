// Command enmassa harvests a program's chapter catalog and downloads the
// selected media assets with resume support.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/enmassa-dl/enmassa"
	"github.com/enmassa-dl/enmassa/internal/manifest"
	"github.com/enmassa-dl/enmassa/pkg/config"
	"github.com/enmassa-dl/enmassa/pkg/types"
)

const version = "1.0.0"

type cliFlags struct {
	configPath   string
	program      string
	quality      string
	subtitles    bool
	subtitleLang string
	destRoot     string
	workers      int
	resumeOnly   bool
	manifestOnly bool
	quiet        bool
	noProgress   bool
	verbose      bool
	showVersion  bool
}

func parseFlags() *cliFlags {
	flags := &cliFlags{}

	flag.StringVar(&flags.configPath, "config", "", "path to the config file")
	flag.StringVar(&flags.program, "program", "", "program slug to harvest")
	flag.StringVar(&flags.quality, "quality", "", "keep only video variants whose label contains this")
	flag.BoolVar(&flags.subtitles, "subs", false, "also download subtitle tracks")
	flag.StringVar(&flags.subtitleLang, "sub-lang", "", "keep only subtitle variants whose label contains this")
	flag.StringVar(&flags.destRoot, "dest", "", "destination root directory")
	flag.IntVar(&flags.workers, "workers", 0, "download pool size")
	flag.BoolVar(&flags.resumeOnly, "resume", false, "only finish existing partial downloads")
	flag.BoolVar(&flags.manifestOnly, "manifest-only", false, "write the manifest and stop before downloading")
	flag.BoolVar(&flags.quiet, "quiet", false, "only print errors and the final summary")
	flag.BoolVar(&flags.noProgress, "no-progress", false, "disable the progress display")
	flag.BoolVar(&flags.verbose, "verbose", false, "log every pipeline step")
	flag.BoolVar(&flags.showVersion, "version", false, "print the version and exit")

	flag.Parse()

	return flags
}

func loadConfig(flags *cliFlags) (*config.Config, error) {
	path := flags.configPath
	if path == "" {
		defaultPath, err := config.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}

	cfg, err := config.NewLoader(path).Load()
	if err != nil {
		return nil, err
	}

	if flags.destRoot != "" {
		cfg.Output.DestRoot = flags.destRoot
	}

	if flags.workers > 0 {
		cfg.Download.Workers = flags.workers
	}

	if flags.quiet || flags.noProgress {
		cfg.Output.ShowProgress = false
	}

	if flags.quiet {
		cfg.Output.Quiet = true
	}

	return cfg, nil
}

func main() {
	os.Exit(run())
}

func run() int {
	flags := parseFlags()

	if flags.showVersion {
		fmt.Printf("enmassa %s\n", version)
		return 0
	}

	if flags.program == "" {
		fmt.Fprintln(os.Stderr, "error: -program is required")
		flag.Usage()
		return 2
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	logger := log.New(io.Discard, "", 0)
	if flags.verbose {
		logger = log.New(os.Stderr, "[enmassa] ", log.LstdFlags)
	}

	pipeline, err := enmassa.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = pipeline.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handleInterruption(ctx, cancel, cfg)

	renderer := newRenderer(os.Stderr, cfg.Output.ShowProgress, cfg.Output.Quiet)

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		renderer.consume(pipeline.Events())
	}()

	code := execute(ctx, pipeline, cfg, flags)

	_ = pipeline.Close()
	wg.Wait()
	renderer.finish()

	return code
}

func execute(ctx context.Context, pipeline *enmassa.Pipeline, cfg *config.Config, flags *cliFlags) int {
	program, err := pipeline.LookupProgram(ctx, flags.program)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	refs, harvestStats, err := pipeline.Harvest(ctx, program.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: harvest failed: %v\n", err)
		return 1
	}

	if !cfg.Output.Quiet {
		fmt.Fprintf(os.Stderr, "harvested %d chapters across %d pages (%d pages failed)\n",
			harvestStats.UniqueItems, harvestStats.TotalPages, harvestStats.FailedPages)
	}

	filter := types.Filter{
		Quality:      flags.quality,
		Subtitles:    flags.subtitles,
		SubtitleLang: flags.subtitleLang,
	}

	m, failedIDs, err := pipeline.BuildManifest(ctx, refs, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: building manifest failed: %v\n", err)
		return 1
	}

	if err := writeArtifacts(cfg, m, failedIDs); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if len(failedIDs) > 0 && !cfg.Output.Quiet {
		fmt.Fprintf(os.Stderr, "%d chapters could not be resolved, ids recorded in %s\n",
			len(failedIDs), cfg.Output.FailedIDsPath)
	}

	if flags.manifestOnly {
		if !cfg.Output.Quiet {
			fmt.Fprintf(os.Stderr, "manifest with %d assets written to %s\n",
				len(m.Items), cfg.Output.ManifestPath)
		}
		return 0
	}

	plan, err := pipeline.PlanTasks(m, flags.resumeOnly)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	stats, _, err := pipeline.RunDownloads(ctx, plan)
	if err != nil && stats == nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	fmt.Fprintf(os.Stderr, "done: %d completed, %d failed, %d skipped, %d bytes in %s\n",
		stats.Completed, stats.Failed, stats.Skipped, stats.TotalBytes,
		stats.Duration.Round(100*time.Millisecond))

	if err != nil {
		fmt.Fprintf(os.Stderr, "run interrupted: %v\n", err)
		return 130
	}

	if stats.Failed > 0 {
		return 1
	}

	return 0
}

func writeArtifacts(cfg *config.Config, m *types.Manifest, failedIDs []int64) error {
	if err := manifest.WriteJSON(m, cfg.Output.ManifestPath); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	if cfg.Output.LinksCSVPath != "" {
		if err := manifest.WriteCSV(m, cfg.Output.LinksCSVPath); err != nil {
			return fmt.Errorf("writing links csv: %w", err)
		}
	}

	if cfg.Output.FailedIDsPath != "" {
		if err := manifest.WriteFailedIDs(failedIDs, cfg.Output.FailedIDsPath); err != nil {
			return fmt.Errorf("writing failed ids: %w", err)
		}
	}

	return nil
}
