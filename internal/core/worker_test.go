package core

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/enmassa-dl/enmassa/internal/retry"
	"github.com/enmassa-dl/enmassa/pkg/errors"
	"github.com/enmassa-dl/enmassa/pkg/events"
	"github.com/enmassa-dl/enmassa/pkg/types"
)

func fastStrategy() retry.Strategy {
	return retry.NewLinearStrategy().
		WithMaxRetries(2).
		WithBaseDelay(time.Millisecond).
		WithIncrement(time.Millisecond)
}

func makePayload(n int) []byte {
	payload := make([]byte, n)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	return payload
}

// rangeHandler serves payload honoring Range requests the way a well
// behaved CDN does.
func rangeHandler(payload []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rangeHdr := r.Header.Get("Range")
		if rangeHdr == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			_, _ = w.Write(payload)
			return
		}

		var offset int64
		if _, err := fmt.Sscanf(rangeHdr, "bytes=%d-", &offset); err != nil {
			http.Error(w, "bad range", http.StatusBadRequest)
			return
		}

		if offset >= int64(len(payload)) {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}

		w.Header().Set("Content-Range",
			fmt.Sprintf("bytes %d-%d/%d", offset, len(payload)-1, len(payload)))
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)-int(offset)))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(payload[offset:])
	}
}

func taskFor(t *testing.T, url string) types.DownloadTask {
	t.Helper()

	final := filepath.Join(t.TempDir(), "S01E01 - Pilot [720p].mp4")

	return types.DownloadTask{
		Asset: types.Asset{
			ChapterID: 1,
			Kind:      types.KindVideo,
			FileName:  filepath.Base(final),
			SourceURL: url,
		},
		FinalPath: final,
		TempPath:  final + types.PartSuffix,
		Resume:    true,
	}
}

func TestWorkerFreshDownload(t *testing.T) {
	payload := makePayload(1500)
	server := httptest.NewServer(rangeHandler(payload))
	defer server.Close()

	worker := NewWorker(server.Client(), nil, fastStrategy(), nil, nil)
	task := taskFor(t, server.URL+"/1.mp4")

	result := worker.Run(context.Background(), task)
	if !result.Success {
		t.Fatalf("Run() error = %v", result.Error)
	}

	if result.BytesTransferred != 1500 {
		t.Errorf("BytesTransferred = %d, want 1500", result.BytesTransferred)
	}

	data, err := os.ReadFile(task.FinalPath)
	if err != nil {
		t.Fatalf("reading final file: %v", err)
	}

	if !bytes.Equal(data, payload) {
		t.Error("final file content differs from payload")
	}

	if _, err := os.Stat(task.TempPath); !os.IsNotExist(err) {
		t.Error("part file survived finalization")
	}
}

func TestWorkerResumeAppendsRemainder(t *testing.T) {
	payload := makePayload(1500)

	var gotRange atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange.Store(r.Header.Get("Range"))
		rangeHandler(payload)(w, r)
	}))
	defer server.Close()

	worker := NewWorker(server.Client(), nil, fastStrategy(), nil, nil)
	task := taskFor(t, server.URL+"/1.mp4")

	// The first 1000 bytes are already on disk from an earlier run.
	if err := os.WriteFile(task.TempPath, payload[:1000], 0644); err != nil {
		t.Fatalf("seeding part file: %v", err)
	}

	result := worker.Run(context.Background(), task)
	if !result.Success {
		t.Fatalf("Run() error = %v", result.Error)
	}

	if got := gotRange.Load(); got != "bytes=1000-" {
		t.Errorf("Range header = %q, want bytes=1000-", got)
	}

	if result.BytesTransferred != 500 {
		t.Errorf("BytesTransferred = %d, want only the 500 missing bytes", result.BytesTransferred)
	}

	data, err := os.ReadFile(task.FinalPath)
	if err != nil {
		t.Fatalf("reading final file: %v", err)
	}

	if !bytes.Equal(data, payload) {
		t.Errorf("final file is %d bytes and differs from payload", len(data))
	}

	if _, err := os.Stat(task.TempPath); !os.IsNotExist(err) {
		t.Error("part file survived finalization")
	}
}

func TestWorkerRangeSatisfiedFinalizesWithoutTransfer(t *testing.T) {
	payload := makePayload(1500)

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		rangeHandler(payload)(w, r)
	}))
	defer server.Close()

	worker := NewWorker(server.Client(), nil, fastStrategy(), nil, nil)
	task := taskFor(t, server.URL+"/1.mp4")

	// The part file already holds the complete asset.
	if err := os.WriteFile(task.TempPath, payload, 0644); err != nil {
		t.Fatalf("seeding part file: %v", err)
	}

	result := worker.Run(context.Background(), task)
	if !result.Success {
		t.Fatalf("Run() error = %v", result.Error)
	}

	if result.BytesTransferred != 0 {
		t.Errorf("BytesTransferred = %d, want 0 for a 416 finalization", result.BytesTransferred)
	}

	if requests.Load() != 1 {
		t.Errorf("server requests = %d, want 1", requests.Load())
	}

	data, err := os.ReadFile(task.FinalPath)
	if err != nil {
		t.Fatalf("reading final file: %v", err)
	}

	if !bytes.Equal(data, payload) {
		t.Error("final file content differs from payload")
	}
}

func TestWorkerRangeIgnoredRestartsFromZero(t *testing.T) {
	payload := makePayload(1500)

	// This server never honors Range; it always sends the whole file.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	bus := events.NewBus(64)
	worker := NewWorker(server.Client(), nil, fastStrategy(), bus, nil)
	task := taskFor(t, server.URL+"/1.mp4")

	// Stale partial content that must be discarded, not prepended.
	if err := os.WriteFile(task.TempPath, bytes.Repeat([]byte{0xFF}, 1000), 0644); err != nil {
		t.Fatalf("seeding part file: %v", err)
	}

	result := worker.Run(context.Background(), task)
	if !result.Success {
		t.Fatalf("Run() error = %v", result.Error)
	}

	data, err := os.ReadFile(task.FinalPath)
	if err != nil {
		t.Fatalf("reading final file: %v", err)
	}

	if int64(len(data)) != int64(len(payload)) {
		t.Errorf("final size = %d, want the declared content length %d", len(data), len(payload))
	}

	if !bytes.Equal(data, payload) {
		t.Error("final file content differs from payload")
	}

	bus.Close()

	restarted := false
	for evt := range bus.Events() {
		if evt.Type == events.EventDownloadRestarted {
			restarted = true
		}
	}

	if !restarted {
		t.Error("no restarted event was published")
	}
}

func TestWorkerResumesAfterTruncatedBody(t *testing.T) {
	payload := makePayload(1500)

	// The first response declares the full length but sends only 700
	// bytes. The retry resumes from byte 700 and gets the rest.
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			_, _ = w.Write(payload[:700])
			return
		}
		rangeHandler(payload)(w, r)
	}))
	defer server.Close()

	worker := NewWorker(server.Client(), nil, fastStrategy(), nil, nil)
	task := taskFor(t, server.URL+"/1.mp4")

	result := worker.Run(context.Background(), task)
	if !result.Success {
		t.Fatalf("Run() error = %v", result.Error)
	}

	if requests.Load() != 2 {
		t.Errorf("server requests = %d, want 2", requests.Load())
	}

	data, err := os.ReadFile(task.FinalPath)
	if err != nil {
		t.Fatalf("reading final file: %v", err)
	}

	if !bytes.Equal(data, payload) {
		t.Error("final file content differs from payload")
	}
}

func TestWorkerExhaustionPreservesPartFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	worker := NewWorker(server.Client(), nil, fastStrategy(), nil, nil)
	task := taskFor(t, server.URL+"/1.mp4")

	seed := makePayload(100)
	if err := os.WriteFile(task.TempPath, seed, 0644); err != nil {
		t.Fatalf("seeding part file: %v", err)
	}

	result := worker.Run(context.Background(), task)
	if result.Success {
		t.Fatal("Run() succeeded, want failure")
	}

	if code := errors.GetErrorCode(result.Error); code != errors.CodeRetriesExhausted {
		t.Errorf("error code = %v, want CodeRetriesExhausted", code)
	}

	data, err := os.ReadFile(task.TempPath)
	if err != nil {
		t.Fatalf("part file gone after failure: %v", err)
	}

	if !bytes.Equal(data, seed) {
		t.Error("part file content changed on a failed run")
	}

	if _, err := os.Stat(task.FinalPath); !os.IsNotExist(err) {
		t.Error("final file exists after failure")
	}
}

func TestWorkerDoesNotRetryNotFound(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	worker := NewWorker(server.Client(), nil, fastStrategy(), nil, nil)
	task := taskFor(t, server.URL+"/gone.mp4")

	result := worker.Run(context.Background(), task)
	if result.Success {
		t.Fatal("Run() succeeded, want failure")
	}

	if requests.Load() != 1 {
		t.Errorf("server requests = %d, want 1 (404 is permanent)", requests.Load())
	}

	if code := errors.GetErrorCode(result.Error); code != errors.CodeNotFound {
		t.Errorf("error code = %v, want CodeNotFound", code)
	}
}

func TestWorkerCancellationKeepsPartFile(t *testing.T) {
	payload := makePayload(DefaultChunkSize * 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload[:DefaultChunkSize])
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())

	worker := NewWorker(server.Client(), nil, fastStrategy(), nil, nil)
	task := taskFor(t, server.URL+"/1.mp4")

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	result := worker.Run(ctx, task)
	if result.Success {
		t.Fatal("Run() succeeded, want cancellation failure")
	}

	info, err := os.Stat(task.TempPath)
	if err != nil {
		t.Fatalf("part file gone after cancellation: %v", err)
	}

	if info.Size() == 0 {
		t.Error("part file is empty, want the bytes received before cancellation")
	}

	if _, err := os.Stat(task.FinalPath); !os.IsNotExist(err) {
		t.Error("final file exists after cancellation")
	}
}

func TestWorkerPublishesProgressAndCompletion(t *testing.T) {
	payload := makePayload(1500)
	server := httptest.NewServer(rangeHandler(payload))
	defer server.Close()

	bus := events.NewBus(64)
	worker := NewWorker(server.Client(), nil, fastStrategy(), bus, nil)
	task := taskFor(t, server.URL+"/1.mp4")

	result := worker.Run(context.Background(), task)
	if !result.Success {
		t.Fatalf("Run() error = %v", result.Error)
	}

	bus.Close()

	var started, progress, completed int
	for evt := range bus.Events() {
		switch evt.Type {
		case events.EventDownloadStarted:
			started++
		case events.EventDownloadProgress:
			progress++
			if evt.TotalSize != 1500 {
				t.Errorf("progress TotalSize = %d, want 1500", evt.TotalSize)
			}
		case events.EventDownloadCompleted:
			completed++
			if evt.Bytes != 1500 {
				t.Errorf("completed Bytes = %d, want 1500", evt.Bytes)
			}
		}
	}

	if started != 1 || completed != 1 {
		t.Errorf("started = %d, completed = %d, want 1 each", started, completed)
	}

	if progress == 0 {
		t.Error("no progress events were published")
	}
}
