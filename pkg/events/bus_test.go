package events

import (
	"testing"
	"time"
)

func TestBusStampsRunIDAndTime(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	if bus.RunID() == "" {
		t.Fatal("RunID() is empty")
	}

	bus.Publish(Event{Type: EventDownloadStarted, FileName: "a.mp4"})

	select {
	case evt := <-bus.Events():
		if evt.RunID != bus.RunID() {
			t.Errorf("event RunID = %q, want %q", evt.RunID, bus.RunID())
		}
		if evt.Time.IsZero() {
			t.Error("event Time was not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus(2)
	defer bus.Close()

	done := make(chan struct{})
	go func() {
		// No consumer. Far more events than capacity.
		for i := 0; i < 1000; i++ {
			bus.Publish(Event{Type: EventDownloadProgress, Bytes: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with a slow consumer")
	}

	if bus.Dropped() == 0 {
		t.Error("Dropped() = 0, want > 0 when the buffer overflows")
	}
}

func TestBusDropsOldestFirst(t *testing.T) {
	bus := NewBus(2)
	defer bus.Close()

	bus.Publish(Event{Type: EventDownloadProgress, Bytes: 1})
	bus.Publish(Event{Type: EventDownloadProgress, Bytes: 2})
	bus.Publish(Event{Type: EventDownloadProgress, Bytes: 3})

	first := <-bus.Events()
	if first.Bytes != 2 {
		t.Errorf("first received Bytes = %d, want 2 (oldest dropped)", first.Bytes)
	}

	second := <-bus.Events()
	if second.Bytes != 3 {
		t.Errorf("second received Bytes = %d, want 3", second.Bytes)
	}
}

func TestBusPublishAfterCloseIsNoop(t *testing.T) {
	bus := NewBus(2)
	bus.Close()

	// Must not panic.
	bus.Publish(Event{Type: EventRunSummary})

	if _, ok := <-bus.Events(); ok {
		t.Error("closed bus should not deliver new events")
	}
}

func TestBusCloseTwice(t *testing.T) {
	bus := NewBus(1)
	bus.Close()
	bus.Close()
}
