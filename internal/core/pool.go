package core

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/enmassa-dl/enmassa/pkg/types"
)

// DefaultWorkers is the download pool size when none is configured.
const DefaultWorkers = 3

// Pool runs download tasks across a bounded set of goroutines. One failed
// or cancelled task never affects the others; part files written by
// unfinished tasks stay on disk.
type Pool struct {
	worker  *Worker
	workers int
	logger  *log.Logger
}

// NewPool creates a pool sharing one worker across n goroutines.
func NewPool(worker *Worker, workers int, logger *log.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	if logger == nil {
		logger = worker.logger
	}

	return &Pool{
		worker:  worker,
		workers: workers,
		logger:  logger,
	}
}

// Run executes all tasks and aggregates their outcomes. Cancelling the
// context stops dispatching new tasks; in-flight tasks notice the
// cancellation themselves and are reported as failed with their part files
// intact.
func (p *Pool) Run(ctx context.Context, tasks []types.DownloadTask) (*types.DownloadStats, []types.DownloadResult) {
	start := time.Now()

	jobs := make(chan types.DownloadTask)
	results := make([]types.DownloadResult, 0, len(tasks))

	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for task := range jobs {
				result := p.worker.Run(ctx, task)

				mu.Lock()
				results = append(results, result)
				mu.Unlock()
			}
		}()
	}

	dispatched := 0

dispatch:
	for _, task := range tasks {
		select {
		case jobs <- task:
			dispatched++
		case <-ctx.Done():
			p.logger.Printf("run cancelled, %d of %d tasks dispatched", dispatched, len(tasks))
			break dispatch
		}
	}

	close(jobs)
	wg.Wait()

	stats := &types.DownloadStats{Duration: time.Since(start)}

	for _, result := range results {
		if result.Success {
			stats.Completed++
			stats.TotalBytes += result.BytesTransferred
		} else {
			stats.Failed++
			stats.TotalBytes += result.BytesTransferred
		}
	}

	return stats, results
}
