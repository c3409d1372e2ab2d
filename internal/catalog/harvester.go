package catalog

import (
	"context"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/enmassa-dl/enmassa/internal/retry"
	"github.com/enmassa-dl/enmassa/pkg/events"
	"github.com/enmassa-dl/enmassa/pkg/types"
)

// Harvester walks a program's paginated chapter listing. Page 1 discovers
// the page count; the remaining pages fan out over a bounded pool. A page
// whose retries exhaust degrades to an empty page rather than failing the
// harvest.
type Harvester struct {
	client   *Client
	workers  int
	strategy retry.Strategy
	bus      *events.Bus
	logger   *log.Logger
}

// NewHarvester creates a harvester. A nil strategy selects the linear
// page-fetch backoff; a nil bus disables events.
func NewHarvester(client *Client, workers int, strategy retry.Strategy, bus *events.Bus, logger *log.Logger) *Harvester {
	if workers <= 0 {
		workers = 4
	}

	if strategy == nil {
		strategy = retry.PageFetchStrategy()
	}

	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Harvester{
		client:   client,
		workers:  workers,
		strategy: strategy,
		bus:      bus,
		logger:   logger,
	}
}

// Harvest returns the deduplicated chapter refs of a program, sorted by id.
// Page 1 failing is fatal (the page count is unknown without it); any other
// page failing only lowers the returned count.
func (h *Harvester) Harvest(ctx context.Context, programID int64, pageSize int) ([]types.ChapterRef, *types.HarvestStats, error) {
	start := time.Now()

	first, err := h.fetchPage(ctx, programID, 1, pageSize)
	if err != nil {
		return nil, nil, err
	}

	stats := &types.HarvestStats{TotalPages: first.TotalPages}

	seen := make(map[int64]types.ChapterRef)
	for _, ref := range first.Items {
		seen[ref.ID] = ref
	}

	h.publishPage(1, len(first.Items), nil)

	if first.TotalPages > 1 {
		h.fetchRemaining(ctx, programID, pageSize, first.TotalPages, seen, stats)
	}

	refs := make([]types.ChapterRef, 0, len(seen))
	for _, ref := range seen {
		refs = append(refs, ref)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })

	stats.UniqueItems = len(refs)
	stats.Duration = time.Since(start)

	return refs, stats, nil
}

// fetchRemaining fans pages 2..totalPages over the worker pool and merges
// results into seen.
func (h *Harvester) fetchRemaining(ctx context.Context, programID int64, pageSize, totalPages int, seen map[int64]types.ChapterRef, stats *types.HarvestStats) {
	pages := make(chan int)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for i := 0; i < h.workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for page := range pages {
				result, err := h.fetchPage(ctx, programID, page, pageSize)
				if err != nil {
					// Degraded: this page contributes nothing.
					h.logger.Printf("page %d failed after retries: %v", page, err)
					h.publishPage(page, 0, err)

					mu.Lock()
					stats.FailedPages++
					mu.Unlock()

					continue
				}

				mu.Lock()
				for _, ref := range result.Items {
					seen[ref.ID] = ref
				}
				mu.Unlock()

				h.publishPage(page, len(result.Items), nil)
			}
		}()
	}

	for page := 2; page <= totalPages; page++ {
		select {
		case pages <- page:
		case <-ctx.Done():
			close(pages)
			wg.Wait()
			return
		}
	}

	close(pages)
	wg.Wait()
}

// fetchPage retrieves one page with the configured backoff.
func (h *Harvester) fetchPage(ctx context.Context, programID int64, page, pageSize int) (*PageResult, error) {
	var result *PageResult

	err := retry.ExecuteWithRetry(ctx, h.strategy, func() error {
		var fetchErr error
		result, fetchErr = h.client.ListPage(ctx, programID, page, pageSize)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (h *Harvester) publishPage(page, items int, err error) {
	if h.bus == nil {
		return
	}

	h.bus.Publish(events.Event{
		Type:  events.EventHarvestPage,
		Page:  page,
		Count: items,
		Err:   err,
	})
}
