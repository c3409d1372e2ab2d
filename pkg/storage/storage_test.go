package storage_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/enmassa-dl/enmassa/pkg/storage"
	"github.com/enmassa-dl/enmassa/pkg/storage/backends"
	"github.com/enmassa-dl/enmassa/pkg/types"
)

func TestManagerDefaultBackend(t *testing.T) {
	manager := storage.NewManager()

	if _, err := manager.GetDefault(); err != storage.ErrNoDefaultBackend {
		t.Errorf("GetDefault() on empty manager error = %v, want ErrNoDefaultBackend", err)
	}

	first := backends.NewMemoryBackend()
	second := backends.NewMemoryBackend()

	if err := manager.Register("first", first); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := manager.Register("second", second); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := manager.GetDefault()
	if err != nil {
		t.Fatalf("GetDefault() error = %v", err)
	}
	if got != storage.Backend(first) {
		t.Error("GetDefault() should return the first registered backend")
	}

	if err := manager.SetDefault("second"); err != nil {
		t.Fatalf("SetDefault() error = %v", err)
	}

	got, _ = manager.GetDefault()
	if got != storage.Backend(second) {
		t.Error("GetDefault() should return the backend set as default")
	}

	if err := manager.SetDefault("missing"); err != storage.ErrBackendNotFound {
		t.Errorf("SetDefault(missing) error = %v, want ErrBackendNotFound", err)
	}
}

func TestMetadataCacheMissThenHit(t *testing.T) {
	backend := backends.NewMemoryBackend()
	cache := storage.NewMetadataCache(backend)
	ctx := context.Background()

	_, found, err := cache.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get() on empty cache error = %v", err)
	}
	if found {
		t.Fatal("Get() on empty cache found = true, want false")
	}

	record := &types.MediaRecord{
		ChapterID:    42,
		ProgramName:  "Plats Bruts",
		Title:        "Pilot",
		Season:       1,
		Episode:      1,
		EpisodeLabel: "Capítol 1",
		VideoVariants: []types.Variant{
			{Label: "720p", URL: "https://cdn.example.com/42-720.mp4"},
		},
		SubtitleVariants: []types.Variant{
			{Label: "ca", URL: "https://cdn.example.com/42.vtt"},
		},
	}

	if err := cache.Put(ctx, record); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, found, err := cache.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get() after Put() error = %v", err)
	}
	if !found {
		t.Fatal("Get() after Put() found = false, want true")
	}

	if got.ChapterID != 42 || got.Title != "Pilot" {
		t.Errorf("Get() = %+v, want original record", got)
	}
	if len(got.VideoVariants) != 1 || got.VideoVariants[0].Label != "720p" {
		t.Errorf("video variants not preserved: %+v", got.VideoVariants)
	}
}

func TestMetadataCacheKey(t *testing.T) {
	cache := storage.NewMetadataCache(backends.NewMemoryBackend())

	if key := cache.Key(123456); key != "123456.json" {
		t.Errorf("Key(123456) = %q, want %q", key, "123456.json")
	}
}

func TestMetadataCacheCorruptEntryBehavesAsMiss(t *testing.T) {
	backend := backends.NewMemoryBackend()
	cache := storage.NewMetadataCache(backend)
	ctx := context.Background()

	if err := backend.Save(ctx, "7.json", corruptReader()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	_, found, err := cache.Get(ctx, 7)
	if err != nil {
		t.Fatalf("Get() on corrupt entry error = %v", err)
	}
	if found {
		t.Error("Get() on corrupt entry found = true, want false")
	}
}

func corruptReader() io.Reader {
	return strings.NewReader("{not json")
}
