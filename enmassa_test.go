package enmassa

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/enmassa-dl/enmassa/pkg/config"
	"github.com/enmassa-dl/enmassa/pkg/types"
)

// fixtureServers starts a catalog API and a CDN serving two chapters of a
// two-page program.
func fixtureServers(t *testing.T) (catalogURL string, payloads map[string][]byte) {
	t.Helper()

	payloads = map[string][]byte{
		"/101.mp4": []byte(strings.Repeat("a", 1500)),
		"/102.mp4": []byte(strings.Repeat("b", 900)),
	}

	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, ok := payloads[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	t.Cleanup(cdn.Close)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/programs":
			fmt.Fprint(w, `[{"id": 9, "title": "Plats Bruts", "slug": "plats-bruts"}]`)

		case r.URL.Path == "/programs/9/chapters":
			page := r.URL.Query().Get("page")
			if page == "1" {
				fmt.Fprint(w, `{"total_pages": 2, "items": [{"id": 101, "season": 1, "episode": 1}]}`)
			} else {
				fmt.Fprint(w, `{"total_pages": 2, "items": {"id": 102, "season": 1, "episode": 2}}`)
			}

		case strings.HasPrefix(r.URL.Path, "/items/"):
			id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/items/"), "/media")
			fmt.Fprintf(w, `{
				"program": "Plats Bruts",
				"title": "Episodi %s",
				"season": 1,
				"episode": %s,
				"videos": {"label": "720p", "url": "%s/%s.mp4"},
				"subtitles": []
			}`, id, strings.TrimPrefix(id, "10"), cdn.URL, id)

		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(api.Close)

	return api.URL, payloads
}

func testConfig(t *testing.T, catalogURL string) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Catalog.BaseURL = catalogURL
	cfg.Catalog.PageSize = 1
	cfg.Harvest.RetryDelay = time.Millisecond
	cfg.Metadata.RetryDelay = time.Millisecond
	cfg.Metadata.Cache = config.CacheConfig{Backend: "memory"}
	cfg.Download.BaseDelay = time.Millisecond
	cfg.Download.MaxDelay = 2 * time.Millisecond
	cfg.Download.MinFreeSpace = 1
	cfg.Output.DestRoot = t.TempDir()

	return cfg
}

func TestPipelineEndToEnd(t *testing.T) {
	catalogURL, payloads := fixtureServers(t)
	cfg := testConfig(t, catalogURL)

	pipeline, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = pipeline.Close() }()

	// Drain events so slow consumers never matter here.
	go func() {
		for range pipeline.Events() {
		}
	}()

	ctx := context.Background()

	program, err := pipeline.LookupProgram(ctx, "Plats-Bruts")
	if err != nil {
		t.Fatalf("LookupProgram() error = %v", err)
	}

	if program.ID != 9 {
		t.Fatalf("program ID = %d, want 9", program.ID)
	}

	refs, harvestStats, err := pipeline.Harvest(ctx, program.ID)
	if err != nil {
		t.Fatalf("Harvest() error = %v", err)
	}

	if len(refs) != 2 || harvestStats.UniqueItems != 2 {
		t.Fatalf("refs = %d (stats %+v), want 2", len(refs), harvestStats)
	}

	m, failed, err := pipeline.BuildManifest(ctx, refs, types.Filter{})
	if err != nil {
		t.Fatalf("BuildManifest() error = %v", err)
	}

	if len(failed) != 0 {
		t.Fatalf("failed ids = %v, want none", failed)
	}

	if len(m.Items) != 2 || m.Items[0].ChapterID != 101 || m.Items[1].ChapterID != 102 {
		t.Fatalf("manifest items = %+v, want chapters 101 and 102 in order", m.Items)
	}

	plan, err := pipeline.PlanTasks(m, false)
	if err != nil {
		t.Fatalf("PlanTasks() error = %v", err)
	}

	if len(plan.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(plan.Tasks))
	}

	stats, results, err := pipeline.RunDownloads(ctx, plan)
	if err != nil {
		t.Fatalf("RunDownloads() error = %v", err)
	}

	if stats.Completed != 2 || stats.Failed != 0 {
		t.Fatalf("stats = %+v, want 2 completed", stats)
	}

	if stats.TotalBytes != int64(len(payloads["/101.mp4"])+len(payloads["/102.mp4"])) {
		t.Errorf("TotalBytes = %d", stats.TotalBytes)
	}

	for _, result := range results {
		if !result.Success {
			t.Errorf("task %s failed: %v", result.Asset.FileName, result.Error)
		}
	}

	for _, task := range plan.Tasks {
		info, err := os.Stat(task.FinalPath)
		if err != nil {
			t.Errorf("final file missing: %s", task.FinalPath)
			continue
		}

		if info.Size() == 0 {
			t.Errorf("final file empty: %s", task.FinalPath)
		}
	}
}

func TestPipelineSecondRunSkipsCompleted(t *testing.T) {
	catalogURL, _ := fixtureServers(t)
	cfg := testConfig(t, catalogURL)

	pipeline, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = pipeline.Close() }()

	go func() {
		for range pipeline.Events() {
		}
	}()

	ctx := context.Background()

	refs, _, err := pipeline.Harvest(ctx, 9)
	if err != nil {
		t.Fatalf("Harvest() error = %v", err)
	}

	m, _, err := pipeline.BuildManifest(ctx, refs, types.Filter{})
	if err != nil {
		t.Fatalf("BuildManifest() error = %v", err)
	}

	plan, err := pipeline.PlanTasks(m, false)
	if err != nil {
		t.Fatalf("PlanTasks() error = %v", err)
	}

	if _, _, err := pipeline.RunDownloads(ctx, plan); err != nil {
		t.Fatalf("RunDownloads() error = %v", err)
	}

	// Everything is on disk now; replanning finds nothing to do.
	replan, err := pipeline.PlanTasks(m, false)
	if err != nil {
		t.Fatalf("PlanTasks() error = %v", err)
	}

	if len(replan.Tasks) != 0 {
		t.Errorf("replan tasks = %d, want 0", len(replan.Tasks))
	}

	if replan.Skipped != 2 {
		t.Errorf("replan skipped = %d, want 2", replan.Skipped)
	}
}

func TestPipelineResumeOnlyIgnoresNewAssets(t *testing.T) {
	catalogURL, _ := fixtureServers(t)
	cfg := testConfig(t, catalogURL)

	pipeline, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = pipeline.Close() }()

	go func() {
		for range pipeline.Events() {
		}
	}()

	ctx := context.Background()

	refs, _, err := pipeline.Harvest(ctx, 9)
	if err != nil {
		t.Fatalf("Harvest() error = %v", err)
	}

	m, _, err := pipeline.BuildManifest(ctx, refs, types.Filter{})
	if err != nil {
		t.Fatalf("BuildManifest() error = %v", err)
	}

	normal, err := pipeline.PlanTasks(m, false)
	if err != nil {
		t.Fatalf("PlanTasks() error = %v", err)
	}

	// Seed a part file for the first asset only.
	seeded := normal.Tasks[0]
	if err := os.WriteFile(seeded.TempPath, []byte("partial"), 0644); err != nil {
		t.Fatalf("seeding part file: %v", err)
	}

	resume, err := pipeline.PlanTasks(m, true)
	if err != nil {
		t.Fatalf("PlanTasks(resume) error = %v", err)
	}

	if len(resume.Tasks) != 1 {
		t.Fatalf("resume tasks = %d, want 1", len(resume.Tasks))
	}

	if resume.Tasks[0].Asset.ChapterID != seeded.Asset.ChapterID {
		t.Errorf("resume task = chapter %d, want %d",
			resume.Tasks[0].Asset.ChapterID, seeded.Asset.ChapterID)
	}

	stats, _, err := pipeline.RunDownloads(ctx, resume)
	if err != nil {
		t.Fatalf("RunDownloads() error = %v", err)
	}

	if stats.Completed != 1 {
		t.Errorf("Completed = %d, want 1", stats.Completed)
	}

	if _, err := os.Stat(seeded.FinalPath); err != nil {
		t.Errorf("final file missing after resume run: %v", err)
	}

	// The second asset was never touched.
	other := normal.Tasks[1]
	if _, err := os.Stat(other.FinalPath); !os.IsNotExist(err) {
		t.Errorf("resume-only run downloaded a new asset: %s", filepath.Base(other.FinalPath))
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Metadata.Cache = config.CacheConfig{Backend: "memory"}

	if _, err := New(cfg, nil); err == nil {
		t.Error("New() error = nil, want missing base URL error")
	}
}
