package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/enmassa-dl/enmassa/pkg/types"
)

// MetadataCache is the durable id-keyed store of normalized media records.
// Entries are written once and read forever: published content is immutable,
// so nothing is ever expired or revalidated.
type MetadataCache struct {
	backend Backend
}

// NewMetadataCache wraps an initialized backend as a media record cache.
func NewMetadataCache(backend Backend) *MetadataCache {
	return &MetadataCache{backend: backend}
}

// Key returns the storage key for a chapter id.
func (c *MetadataCache) Key(chapterID int64) string {
	return fmt.Sprintf("%d.json", chapterID)
}

// Get returns the cached record for a chapter id. The second return value
// reports whether an entry was present; a missing entry is not an error.
func (c *MetadataCache) Get(ctx context.Context, chapterID int64) (*types.MediaRecord, bool, error) {
	reader, err := c.backend.Load(ctx, c.Key(chapterID))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache load for chapter %d: %w", chapterID, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, false, fmt.Errorf("cache read for chapter %d: %w", chapterID, err)
	}

	var record types.MediaRecord
	if err := json.Unmarshal(data, &record); err != nil {
		// A corrupt entry behaves like a miss so the resolver refetches and
		// overwrites it.
		return nil, false, nil
	}

	return &record, true, nil
}

// Put persists a record under its chapter id.
func (c *MetadataCache) Put(ctx context.Context, record *types.MediaRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("cache encode for chapter %d: %w", record.ChapterID, err)
	}

	if err := c.backend.Save(ctx, c.Key(record.ChapterID), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("cache save for chapter %d: %w", record.ChapterID, err)
	}

	return nil
}

// Has reports whether an entry exists for the chapter id.
func (c *MetadataCache) Has(ctx context.Context, chapterID int64) (bool, error) {
	return c.backend.Exists(ctx, c.Key(chapterID))
}
