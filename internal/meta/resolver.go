// Package meta resolves one chapter's media description: cache first, then
// the catalog service, normalizing variants as they come in.
package meta

import (
	"context"
	"io"
	"log"
	"strings"

	"github.com/enmassa-dl/enmassa/internal/catalog"
	"github.com/enmassa-dl/enmassa/internal/retry"
	"github.com/enmassa-dl/enmassa/pkg/errors"
	"github.com/enmassa-dl/enmassa/pkg/events"
	"github.com/enmassa-dl/enmassa/pkg/storage"
	"github.com/enmassa-dl/enmassa/pkg/types"
)

// videoExtensions lists the URL suffixes accepted as video renditions.
var videoExtensions = []string{".mp4"}

// subtitleExtensions lists the URL suffixes accepted as subtitle tracks.
var subtitleExtensions = []string{".vtt", ".srt"}

// Resolver turns a ChapterRef into a normalized MediaRecord. Cache entries
// are returned without any network call; misses fetch, normalize, persist,
// and return. A fetch that exhausts its retries reports a per-item failure
// the caller records and moves past.
type Resolver struct {
	client   *catalog.Client
	cache    *storage.MetadataCache
	strategy retry.Strategy
	bus      *events.Bus
	logger   *log.Logger
}

// NewResolver creates a resolver. A nil strategy selects the linear
// metadata backoff; a nil bus disables events.
func NewResolver(client *catalog.Client, cache *storage.MetadataCache, strategy retry.Strategy, bus *events.Bus, logger *log.Logger) *Resolver {
	if strategy == nil {
		strategy = retry.MetadataStrategy()
	}

	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Resolver{
		client:   client,
		cache:    cache,
		strategy: strategy,
		bus:      bus,
		logger:   logger,
	}
}

// Resolve returns the media record for one chapter.
func (r *Resolver) Resolve(ctx context.Context, ref types.ChapterRef) (*types.MediaRecord, error) {
	if r.cache != nil {
		record, found, err := r.cache.Get(ctx, ref.ID)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeFilesystem, "reading metadata cache")
		}

		if found {
			r.publish(events.EventResolveCacheHit, ref.ID, nil)
			return record, nil
		}
	}

	var payload *catalog.MediaPayload

	err := retry.ExecuteWithRetry(ctx, r.strategy, func() error {
		var fetchErr error
		payload, fetchErr = r.client.ItemMedia(ctx, ref.ID)
		return fetchErr
	})
	if err != nil {
		r.publish(events.EventResolveFailed, ref.ID, err)

		if errors.IsRetryable(err) {
			// Transient failures that outlived the retry budget surface as
			// exhaustion so the caller knows another run may succeed.
			return nil, errors.Wrap(err, errors.CodeRetriesExhausted, "metadata fetch retries exhausted")
		}

		return nil, err
	}

	record := Normalize(ref, payload)

	if r.cache != nil {
		if err := r.cache.Put(ctx, record); err != nil {
			// A cache write failure costs a refetch next run, nothing more.
			r.logger.Printf("caching metadata for chapter %d failed: %v", ref.ID, err)
		}
	}

	r.publish(events.EventResolveFetched, ref.ID, nil)

	return record, nil
}

// Normalize converts the wire payload into a MediaRecord, keeping only
// variants whose URL carries an accepted extension. Season and episode fall
// back to the harvested ref when the payload omits them.
func Normalize(ref types.ChapterRef, payload *catalog.MediaPayload) *types.MediaRecord {
	record := &types.MediaRecord{
		ChapterID:    ref.ID,
		ProgramName:  payload.Program,
		Title:        payload.Title,
		Season:       payload.Season,
		Episode:      payload.Episode,
		EpisodeLabel: payload.EpisodeLabel,
	}

	if record.Season == 0 {
		record.Season = ref.Season
	}

	if record.Episode == 0 {
		record.Episode = ref.Episode
	}

	for _, variant := range payload.Videos {
		if hasExtension(variant.URL, videoExtensions) {
			record.VideoVariants = append(record.VideoVariants, types.Variant{
				Label: variant.Label,
				URL:   variant.URL,
			})
		}
	}

	for _, variant := range payload.Subtitles {
		if hasExtension(variant.URL, subtitleExtensions) {
			record.SubtitleVariants = append(record.SubtitleVariants, types.Variant{
				Label: variant.Label,
				URL:   variant.URL,
			})
		}
	}

	return record
}

// hasExtension checks the URL path for one of the accepted extensions,
// tolerating query strings after the file name.
func hasExtension(rawURL string, extensions []string) bool {
	lower := strings.ToLower(rawURL)

	if idx := strings.IndexAny(lower, "?#"); idx >= 0 {
		lower = lower[:idx]
	}

	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}

	return false
}

func (r *Resolver) publish(eventType events.EventType, chapterID int64, err error) {
	if r.bus == nil {
		return
	}

	r.bus.Publish(events.Event{
		Type:      eventType,
		ChapterID: chapterID,
		Err:       err,
	})
}
