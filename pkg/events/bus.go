// Package events provides the progress and log event stream connecting the
// pipeline to a single consumer (CLI renderer, log writer).
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies what happened.
type EventType string

const (
	// EventHarvestPage fires when one catalog page has been fetched (or
	// given up on).
	EventHarvestPage EventType = "harvest.page"

	// EventResolveCacheHit fires when a chapter's metadata came from cache.
	EventResolveCacheHit EventType = "resolve.cache_hit"

	// EventResolveFetched fires when a chapter's metadata was fetched and
	// cached.
	EventResolveFetched EventType = "resolve.fetched"

	// EventResolveFailed fires when a chapter's metadata could not be
	// resolved after retries.
	EventResolveFailed EventType = "resolve.failed"

	// EventDownloadStarted fires when a worker begins a task.
	EventDownloadStarted EventType = "download.started"

	// EventDownloadProgress fires at most once per throttle interval while
	// a transfer streams.
	EventDownloadProgress EventType = "download.progress"

	// EventDownloadRestarted fires when a server ignored a range request
	// and the transfer restarted from zero.
	EventDownloadRestarted EventType = "download.restarted"

	// EventDownloadCompleted fires when a task finalizes.
	EventDownloadCompleted EventType = "download.completed"

	// EventDownloadFailed fires when a task exhausts its retries.
	EventDownloadFailed EventType = "download.failed"

	// EventRunSummary fires once at the end of a run.
	EventRunSummary EventType = "run.summary"
)

// Event is one message on the bus.
type Event struct {
	Type      EventType
	RunID     string
	Time      time.Time
	ChapterID int64
	Page      int
	Count     int
	FileName  string
	Bytes     int64
	TotalSize int64
	Message   string
	Err       error
}

// Bus is a bounded single-consumer event stream. Publishing never blocks:
// when the buffer is full the oldest event is dropped, so a slow consumer
// cannot stall a download worker.
type Bus struct {
	mu      sync.Mutex
	ch      chan Event
	runID   string
	dropped uint64
	closed  bool
}

// NewBus creates a bus with the given buffer capacity and a fresh run id.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 256
	}

	return &Bus{
		ch:    make(chan Event, capacity),
		runID: uuid.NewString(),
	}
}

// RunID returns the identifier stamped on every event of this run.
func (b *Bus) RunID() string {
	return b.runID
}

// Publish enqueues an event without blocking. If the buffer is full the
// oldest buffered event is discarded to make room; progress events coalesce
// naturally this way. Publishing on a closed bus is a no-op.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	evt.RunID = b.runID
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}

	select {
	case b.ch <- evt:
		return
	default:
	}

	// Full: drop the oldest event, then retry once. The second send only
	// races against the consumer, which can have made room, not taken it.
	select {
	case <-b.ch:
		b.dropped++
	default:
	}

	select {
	case b.ch <- evt:
	default:
		b.dropped++
	}
}

// Events returns the receive side of the bus. A single consumer should
// range over it until it is closed.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Dropped returns how many events were discarded because the consumer fell
// behind.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close ends the stream. Pending buffered events remain readable.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	close(b.ch)
}
