// Package core implements the download phase: resumable HTTP and FTP
// transfers into part files, finalized by atomic rename.
package core

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/enmassa-dl/enmassa/internal/network"
	"github.com/enmassa-dl/enmassa/internal/retry"
	"github.com/enmassa-dl/enmassa/pkg/errors"
	"github.com/enmassa-dl/enmassa/pkg/events"
	"github.com/enmassa-dl/enmassa/pkg/types"
)

// DefaultChunkSize is the read buffer size used while streaming a transfer.
const DefaultChunkSize = 32 * 1024

// progressInterval caps how often a worker publishes progress for one task.
const progressInterval = 100 * time.Millisecond

// RangeFetcher opens a remote stream starting at the given byte offset.
// size is the total remote size, -1 when unknown. A nil body with a nil
// error means the remote file holds no bytes past offset.
type RangeFetcher interface {
	Open(ctx context.Context, rawURL string, offset int64) (body io.ReadCloser, size int64, err error)
}

// transferPlan is the outcome of opening one attempt: where the stream
// starts, how large the file will be, and whether any transfer is needed.
type transferPlan struct {
	body      io.ReadCloser
	offset    int64
	total     int64
	complete  bool
	restarted bool
}

// Worker executes download tasks one at a time. It is safe for concurrent
// use; a Pool shares one Worker across its goroutines.
type Worker struct {
	client   network.Doer
	ftp      RangeFetcher
	strategy retry.Strategy
	bus      *events.Bus
	logger   *log.Logger
}

// NewWorker creates a worker. A nil client gets the tuned transfer client,
// a nil strategy the download backoff. ftp may be nil when no ftp:// URLs
// are expected.
func NewWorker(client network.Doer, ftp RangeFetcher, strategy retry.Strategy, bus *events.Bus, logger *log.Logger) *Worker {
	if client == nil {
		client = network.CreateTransferClient(0)
	}

	if strategy == nil {
		strategy = retry.DownloadStrategy()
	}

	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Worker{
		client:   client,
		ftp:      ftp,
		strategy: strategy,
		bus:      bus,
		logger:   logger,
	}
}

// Run executes one task to completion, retrying transient failures with
// backoff. Every attempt re-reads the part file size, so bytes persisted by
// a failed attempt are kept. On final failure the part file stays on disk
// for a later resume-only run.
func (w *Worker) Run(ctx context.Context, task types.DownloadTask) types.DownloadResult {
	result := types.DownloadResult{Asset: task.Asset}

	w.publish(events.Event{
		Type:      events.EventDownloadStarted,
		ChapterID: task.Asset.ChapterID,
		FileName:  task.Asset.FileName,
	})

	var transferred int64

	err := retry.ExecuteWithRetry(ctx, w.strategy, func() error {
		n, err := w.attempt(ctx, task)
		transferred += n
		return err
	})
	if err != nil {
		if errors.IsRetryable(err) {
			err = errors.Wrap(err, errors.CodeRetriesExhausted,
				fmt.Sprintf("download retries exhausted for %s", task.Asset.FileName))
		}

		w.logger.Printf("download failed: %s: %v", task.Asset.FileName, err)
		w.publish(events.Event{
			Type:      events.EventDownloadFailed,
			ChapterID: task.Asset.ChapterID,
			FileName:  task.Asset.FileName,
			Bytes:     transferred,
			Err:       err,
		})

		result.BytesTransferred = transferred
		result.Error = err

		return result
	}

	result.BytesTransferred = transferred
	result.Success = true

	return result
}

// attempt runs one transfer attempt and returns how many bytes it wrote to
// the part file.
func (w *Worker) attempt(ctx context.Context, task types.DownloadTask) (int64, error) {
	existing := partSize(task.TempPath)

	plan, err := w.open(ctx, task, existing)
	if err != nil {
		return 0, err
	}

	if plan.complete {
		// The part file already holds the whole asset. Finalize without
		// transferring anything.
		if err := w.finalize(task, existing); err != nil {
			return 0, err
		}
		return 0, nil
	}
	defer func() { _ = plan.body.Close() }()

	if plan.restarted {
		w.logger.Printf("range ignored for %s, restarting from zero (%d partial bytes discarded)",
			task.Asset.FileName, existing)
		w.publish(events.Event{
			Type:      events.EventDownloadRestarted,
			ChapterID: task.Asset.ChapterID,
			FileName:  task.Asset.FileName,
			Bytes:     existing,
			Message:   "server ignored range request",
		})
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if plan.offset > 0 {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}

	file, err := os.OpenFile(task.TempPath, flags, 0644)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeFilesystem,
			fmt.Sprintf("opening part file %s", task.TempPath))
	}

	written, err := w.stream(ctx, file, plan, task)

	if closeErr := file.Close(); closeErr != nil && err == nil {
		err = errors.Wrap(closeErr, errors.CodeFilesystem,
			fmt.Sprintf("closing part file %s", task.TempPath))
	}

	if err != nil {
		// The part file keeps whatever was written; the next attempt
		// resumes from its new size.
		return written, err
	}

	if err := w.finalize(task, plan.offset+written); err != nil {
		return written, err
	}

	return written, nil
}

// open issues the request for one attempt and maps the response onto a
// transfer plan.
func (w *Worker) open(ctx context.Context, task types.DownloadTask, existing int64) (*transferPlan, error) {
	if strings.HasPrefix(strings.ToLower(task.Asset.SourceURL), "ftp://") {
		return w.openFTP(ctx, task, existing)
	}

	return w.openHTTP(ctx, task, existing)
}

func (w *Worker) openHTTP(ctx context.Context, task types.DownloadTask, existing int64) (*transferPlan, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.Asset.SourceURL, nil)
	if err != nil {
		return nil, errors.WrapWithURL(err, errors.CodeInvalidURL, "building request", task.Asset.SourceURL)
	}

	wantRange := task.Resume && existing > 0
	if wantRange {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existing))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, errors.WrapWithURL(err, errors.CodeNetworkError, "requesting asset", task.Asset.SourceURL)
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		total := int64(-1)
		if resp.ContentLength >= 0 {
			total = existing + resp.ContentLength
		}
		return &transferPlan{body: resp.Body, offset: existing, total: total}, nil

	case http.StatusRequestedRangeNotSatisfiable:
		// The part file is already the complete asset.
		_ = resp.Body.Close()
		return &transferPlan{complete: true}, nil

	case http.StatusOK:
		// A 200 answer to a range request means the server ignored the
		// header and is sending the whole file. The partial bytes are
		// useless; start over from zero.
		return &transferPlan{
			body:      resp.Body,
			offset:    0,
			total:     resp.ContentLength,
			restarted: wantRange,
		}, nil

	default:
		_ = resp.Body.Close()
		return nil, errors.FromHTTPStatus(resp.StatusCode, task.Asset.SourceURL)
	}
}

func (w *Worker) openFTP(ctx context.Context, task types.DownloadTask, existing int64) (*transferPlan, error) {
	if w.ftp == nil {
		return nil, errors.NewWithDetails(errors.CodeInvalidURL,
			"ftp URLs are not supported in this configuration", task.Asset.SourceURL)
	}

	offset := existing
	if !task.Resume {
		offset = 0
	}

	body, size, err := w.ftp.Open(ctx, task.Asset.SourceURL, offset)
	if err != nil {
		return nil, err
	}

	if body == nil {
		return &transferPlan{complete: true}, nil
	}

	return &transferPlan{body: body, offset: offset, total: size}, nil
}

// stream copies the body into the part file in fixed-size chunks, checking
// for cancellation between chunks and publishing throttled progress.
func (w *Worker) stream(ctx context.Context, file *os.File, plan *transferPlan, task types.DownloadTask) (int64, error) {
	buf := make([]byte, DefaultChunkSize)

	var written int64
	var lastProgress time.Time

	for {
		select {
		case <-ctx.Done():
			return written, errors.Wrap(ctx.Err(), errors.CodeCancelled,
				fmt.Sprintf("download of %s cancelled", task.Asset.FileName))
		default:
		}

		n, readErr := plan.body.Read(buf)
		if n > 0 {
			if _, writeErr := file.Write(buf[:n]); writeErr != nil {
				return written, errors.Wrap(writeErr, errors.CodeFilesystem,
					fmt.Sprintf("writing part file %s", task.TempPath))
			}

			written += int64(n)

			if time.Since(lastProgress) >= progressInterval {
				lastProgress = time.Now()
				w.publish(events.Event{
					Type:      events.EventDownloadProgress,
					ChapterID: task.Asset.ChapterID,
					FileName:  task.Asset.FileName,
					Bytes:     plan.offset + written,
					TotalSize: plan.total,
				})
			}
		}

		if readErr == io.EOF {
			return written, nil
		}

		if readErr != nil {
			return written, errors.WrapWithURL(readErr, errors.CodeNetworkError,
				"reading asset body", task.Asset.SourceURL)
		}
	}
}

// finalize promotes the part file to its final name. The rename is the
// commit point; a crash before it leaves a resumable part file, never a
// truncated final file.
func (w *Worker) finalize(task types.DownloadTask, totalBytes int64) error {
	if err := os.Rename(task.TempPath, task.FinalPath); err != nil {
		return errors.Wrap(err, errors.CodeFilesystem,
			fmt.Sprintf("finalizing %s", task.FinalPath))
	}

	w.publish(events.Event{
		Type:      events.EventDownloadCompleted,
		ChapterID: task.Asset.ChapterID,
		FileName:  task.Asset.FileName,
		Bytes:     totalBytes,
		TotalSize: totalBytes,
	})

	return nil
}

func (w *Worker) publish(evt events.Event) {
	if w.bus != nil {
		w.bus.Publish(evt)
	}
}

// partSize returns the current size of the part file, 0 when absent.
func partSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0
	}

	return info.Size()
}
