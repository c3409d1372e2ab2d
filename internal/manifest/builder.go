// Package manifest assembles the sorted asset manifest from harvested
// chapter refs and serializes it, together with the failed-id artifact,
// before any download starts.
package manifest

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/enmassa-dl/enmassa/pkg/types"
)

// ChapterResolver resolves one chapter's media record. Satisfied by
// *meta.Resolver.
type ChapterResolver interface {
	Resolve(ctx context.Context, ref types.ChapterRef) (*types.MediaRecord, error)
}

// Builder fans chapter refs through the resolver under a bounded pool and
// expands the resolved records into assets.
type Builder struct {
	resolver ChapterResolver
	workers  int
	logger   *log.Logger
}

// NewBuilder creates a manifest builder.
func NewBuilder(resolver ChapterResolver, workers int, logger *log.Logger) *Builder {
	if workers <= 0 {
		workers = 4
	}

	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Builder{
		resolver: resolver,
		workers:  workers,
		logger:   logger,
	}
}

// Build resolves every ref and returns the manifest plus the ids that could
// not be resolved. Per-chapter failures never abort the batch. Items are
// sorted ascending by chapter id; assets of one chapter keep their variant
// order.
func (b *Builder) Build(ctx context.Context, runID string, refs []types.ChapterRef, filter types.Filter) (*types.Manifest, []int64, error) {
	type chapterAssets struct {
		id     int64
		assets []types.Asset
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		byChapter = make(map[int64][]types.Asset, len(refs))
		failed    []int64
		program   string
	)

	jobs := make(chan types.ChapterRef)

	for i := 0; i < b.workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for ref := range jobs {
				record, err := b.resolver.Resolve(ctx, ref)
				if err != nil {
					b.logger.Printf("chapter %d failed to resolve: %v", ref.ID, err)

					mu.Lock()
					failed = append(failed, ref.ID)
					mu.Unlock()

					continue
				}

				assets := ExpandAssets(record, filter)

				mu.Lock()
				byChapter[ref.ID] = assets
				if program == "" && record.ProgramName != "" {
					program = record.ProgramName
				}
				mu.Unlock()
			}
		}()
	}

	for _, ref := range refs {
		select {
		case jobs <- ref:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, nil, ctx.Err()
		}
	}

	close(jobs)
	wg.Wait()

	ordered := make([]chapterAssets, 0, len(byChapter))
	for id, assets := range byChapter {
		ordered = append(ordered, chapterAssets{id: id, assets: assets})
	}

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })

	manifest := &types.Manifest{
		GeneratedAt: time.Now().UTC(),
		RunID:       runID,
		Program:     program,
	}

	for _, chapter := range ordered {
		manifest.Items = append(manifest.Items, chapter.assets...)
	}

	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })

	return manifest, failed, nil
}

// ExpandAssets turns one media record into assets: one per video variant
// passing the quality filter, and one per subtitle variant passing the
// language filter when subtitles are requested.
func ExpandAssets(record *types.MediaRecord, filter types.Filter) []types.Asset {
	var assets []types.Asset

	for _, variant := range record.VideoVariants {
		if filter.Quality != "" && !strings.Contains(strings.ToLower(variant.Label), strings.ToLower(filter.Quality)) {
			continue
		}

		assets = append(assets, newAsset(record, types.KindVideo, variant))
	}

	if filter.Subtitles {
		for _, variant := range record.SubtitleVariants {
			if filter.SubtitleLang != "" && !strings.Contains(strings.ToLower(variant.Label), strings.ToLower(filter.SubtitleLang)) {
				continue
			}

			assets = append(assets, newAsset(record, types.KindSubtitle, variant))
		}
	}

	return assets
}

func newAsset(record *types.MediaRecord, kind types.AssetKind, variant types.Variant) types.Asset {
	return types.Asset{
		ChapterID:   record.ChapterID,
		Kind:        kind,
		ProgramName: record.ProgramName,
		Title:       record.Title,
		Season:      record.Season,
		Episode:     record.Episode,
		Label:       variant.Label,
		SourceURL:   variant.URL,
		FileName:    FileName(record, kind, variant),
	}
}

// FileName derives the deterministic destination name of one asset:
// "S01E02 - Title [label].ext". Identical inputs always produce the
// identical name, which is what lets a later run find its partial files.
func FileName(record *types.MediaRecord, kind types.AssetKind, variant types.Variant) string {
	title := record.Title
	if title == "" {
		title = record.EpisodeLabel
	}
	if title == "" {
		title = fmt.Sprintf("chapter-%d", record.ChapterID)
	}

	name := fmt.Sprintf("S%02dE%02d - %s", record.Season, record.Episode, title)

	if variant.Label != "" {
		name = fmt.Sprintf("%s [%s]", name, variant.Label)
	}

	return Sanitize(name) + extensionFor(kind, variant.URL)
}

// Sanitize strips path separators and characters that are illegal in file
// names on at least one supported platform.
func Sanitize(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "-",
		"\x00", "",
	)

	cleaned := replacer.Replace(name)
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	return strings.Trim(cleaned, " .")
}

// extensionFor picks the file extension from the source URL, falling back
// to the conventional extension of the asset kind.
func extensionFor(kind types.AssetKind, rawURL string) string {
	if parsed, err := url.Parse(rawURL); err == nil {
		if ext := strings.ToLower(path.Ext(parsed.Path)); ext != "" {
			return ext
		}
	}

	if kind == types.KindSubtitle {
		return ".vtt"
	}

	return ".mp4"
}
