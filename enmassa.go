// Package enmassa harvests a program's chapter catalog, resolves per-chapter
// media metadata through a durable cache, and downloads the selected assets
// with byte-range resume.
package enmassa

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/enmassa-dl/enmassa/internal/catalog"
	"github.com/enmassa-dl/enmassa/internal/core"
	"github.com/enmassa-dl/enmassa/internal/manifest"
	"github.com/enmassa-dl/enmassa/internal/meta"
	"github.com/enmassa-dl/enmassa/internal/network"
	"github.com/enmassa-dl/enmassa/internal/planner"
	ftpproto "github.com/enmassa-dl/enmassa/internal/protocols/ftp"
	"github.com/enmassa-dl/enmassa/internal/retry"
	"github.com/enmassa-dl/enmassa/pkg/config"
	"github.com/enmassa-dl/enmassa/pkg/errors"
	"github.com/enmassa-dl/enmassa/pkg/events"
	"github.com/enmassa-dl/enmassa/pkg/storage"
	"github.com/enmassa-dl/enmassa/pkg/storage/backends"
	"github.com/enmassa-dl/enmassa/pkg/types"
)

// Pipeline wires the harvest, resolve, plan, and download phases around one
// shared configuration and event stream.
type Pipeline struct {
	cfg     *config.Config
	bus     *events.Bus
	logger  *log.Logger
	client  *catalog.Client
	cache   *storage.MetadataCache
	manager *storage.Manager
	worker  *core.Worker
}

// New builds a pipeline from the configuration. The caller owns the bus
// lifecycle: consume Events() during a run and Close() the pipeline when
// done.
func New(cfg *config.Config, logger *log.Logger) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Catalog.BaseURL == "" {
		return nil, errors.New(errors.CodeInvalidURL, "catalog.base_url is not configured")
	}

	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	backend, err := buildBackend(cfg.Metadata.Cache)
	if err != nil {
		return nil, err
	}

	manager := storage.NewManager()
	if err := manager.Register(cfg.Metadata.Cache.Backend, backend); err != nil {
		_ = backend.Close()
		return nil, err
	}

	bus := events.NewBus(0)

	apiClient := network.CreateAPIClient(cfg.Catalog.RequestTimeout, 1)
	transferClient := network.CreateTransferClient(cfg.Download.Timeout)

	client := catalog.NewClient(apiClient, cfg.Catalog.BaseURL, logger)

	downloadStrategy := retry.NewExponentialStrategy().
		WithMaxRetries(cfg.Download.MaxRetries).
		WithBaseDelay(cfg.Download.BaseDelay).
		WithMaxDelay(cfg.Download.MaxDelay).
		WithJitter(true, 0.25)

	worker := core.NewWorker(transferClient, ftpproto.NewFetcher(nil), downloadStrategy, bus, logger)

	return &Pipeline{
		cfg:     cfg,
		bus:     bus,
		logger:  logger,
		client:  client,
		cache:   storage.NewMetadataCache(backend),
		manager: manager,
		worker:  worker,
	}, nil
}

// Events returns the pipeline's event stream. A single consumer should
// range over it.
func (p *Pipeline) Events() <-chan events.Event {
	return p.bus.Events()
}

// RunID returns the identifier stamped on this pipeline's events and
// manifests.
func (p *Pipeline) RunID() string {
	return p.bus.RunID()
}

// Close releases the cache backend and ends the event stream.
func (p *Pipeline) Close() error {
	p.bus.Close()
	return p.manager.Close()
}

// LookupProgram resolves a program slug to its catalog identity.
func (p *Pipeline) LookupProgram(ctx context.Context, slug string) (*types.Program, error) {
	return p.client.LookupProgram(ctx, slug)
}

// Harvest walks the program's full chapter listing and returns the
// deduplicated refs sorted by chapter id.
func (p *Pipeline) Harvest(ctx context.Context, programID int64) ([]types.ChapterRef, *types.HarvestStats, error) {
	strategy := retry.NewLinearStrategy().
		WithMaxRetries(p.cfg.Harvest.MaxRetries).
		WithBaseDelay(p.cfg.Harvest.RetryDelay).
		WithIncrement(p.cfg.Harvest.RetryDelay)

	harvester := catalog.NewHarvester(p.client, p.cfg.Harvest.Workers, strategy, p.bus, p.logger)

	return harvester.Harvest(ctx, programID, p.cfg.Catalog.PageSize)
}

// BuildManifest resolves metadata for every ref and expands the surviving
// records into the sorted asset manifest. The second return value lists
// chapter ids whose metadata could not be resolved.
func (p *Pipeline) BuildManifest(ctx context.Context, refs []types.ChapterRef, filter types.Filter) (*types.Manifest, []int64, error) {
	strategy := retry.NewLinearStrategy().
		WithMaxRetries(p.cfg.Metadata.MaxRetries).
		WithBaseDelay(p.cfg.Metadata.RetryDelay).
		WithIncrement(p.cfg.Metadata.RetryDelay)

	resolver := meta.NewResolver(p.client, p.cache, strategy, p.bus, p.logger)
	builder := manifest.NewBuilder(resolver, p.cfg.Metadata.Workers, p.logger)

	return builder.Build(ctx, p.bus.RunID(), refs, filter)
}

// PlanTasks prepares the destination directory and decides which manifest
// assets need downloading. resumeOnly restricts the run to assets with an
// existing part file.
func (p *Pipeline) PlanTasks(m *types.Manifest, resumeOnly bool) (*planner.Plan, error) {
	destDir, err := planner.PrepareDestination(p.cfg.Output.DestRoot, m.Program, p.cfg.Download.MinFreeSpace)
	if err != nil {
		return nil, err
	}

	mode := planner.ModeNormal
	if resumeOnly {
		mode = planner.ModeResumeOnly
	}

	plan := planner.PlanTasks(m, destDir, mode)
	p.logger.Printf("planned %d tasks (%d skipped, mode %s)", len(plan.Tasks), plan.Skipped, mode)

	return plan, nil
}

// RunDownloads executes the plan across the download pool and returns the
// aggregated stats. Cancelling the context stops the run; part files of
// unfinished tasks stay on disk for a later resume.
func (p *Pipeline) RunDownloads(ctx context.Context, plan *planner.Plan) (*types.DownloadStats, []types.DownloadResult, error) {
	pool := core.NewPool(p.worker, p.cfg.Download.Workers, p.logger)

	stats, results := pool.Run(ctx, plan.Tasks)
	stats.Skipped = plan.Skipped

	p.bus.Publish(events.Event{
		Type:    events.EventRunSummary,
		Count:   stats.Completed,
		Bytes:   stats.TotalBytes,
		Message: fmt.Sprintf("%d completed, %d failed, %d skipped", stats.Completed, stats.Failed, stats.Skipped),
	})

	return stats, results, ctx.Err()
}

// buildBackend constructs and initializes the configured cache backend.
func buildBackend(cfg config.CacheConfig) (storage.Backend, error) {
	var backend storage.Backend

	switch cfg.Backend {
	case "filesystem", "":
		backend = backends.NewFileSystemBackend()
	case "memory":
		backend = backends.NewMemoryBackend()
	case "redis":
		backend = backends.NewRedisBackend()
	case "s3":
		backend = backends.NewS3Backend()
	case "gcs":
		backend = backends.NewGCSBackend()
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}

	if err := backend.Init(cfg.Settings); err != nil {
		return nil, fmt.Errorf("initializing %s cache backend: %w", cfg.Backend, err)
	}

	return backend, nil
}
