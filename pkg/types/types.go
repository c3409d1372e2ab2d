// Package types defines the shared data model for the enmassa pipeline:
// catalog references, normalized media records, manifest assets, and
// download bookkeeping.
package types

import (
	"time"
)

// PartSuffix is appended to a destination file name while its transfer is in
// progress. A file carrying this suffix is a resumable partial download.
const PartSuffix = ".part"

// Program identifies the catalog root being harvested. Immutable once
// resolved.
type Program struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

// ChapterRef is one harvested catalog item. IDs are unique within a harvest
// result and numerically comparable.
type ChapterRef struct {
	ID      int64 `json:"id"`
	Season  int   `json:"season"`
	Episode int   `json:"episode"`
}

// Variant is one downloadable rendition of a chapter: a quality level for
// video, a language for subtitles.
type Variant struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// MediaRecord is the normalized per-chapter metadata, cached keyed by
// chapter id. Entries are never expired or revalidated; published content is
// immutable.
type MediaRecord struct {
	ChapterID        int64     `json:"chapter_id"`
	ProgramName      string    `json:"program_name"`
	Title            string    `json:"title"`
	Season           int       `json:"season"`
	EpisodeLabel     string    `json:"episode_label"`
	Episode          int       `json:"episode"`
	VideoVariants    []Variant `json:"video_variants"`
	SubtitleVariants []Variant `json:"subtitle_variants"`
}

// AssetKind distinguishes the two downloadable media types.
type AssetKind string

const (
	// KindVideo marks a video rendition asset.
	KindVideo AssetKind = "video"

	// KindSubtitle marks a subtitle track asset.
	KindSubtitle AssetKind = "subtitle"
)

// Asset is one downloadable unit of the manifest. FileName is derived
// deterministically from the program, season, episode, title, and label, so
// identical inputs always map to the identical name. Resume matching
// depends on that.
type Asset struct {
	ChapterID   int64     `json:"chapter_id"`
	Kind        AssetKind `json:"kind"`
	ProgramName string    `json:"program_name"`
	Title       string    `json:"title"`
	Season      int       `json:"season"`
	Episode     int       `json:"episode"`
	Label       string    `json:"label"`
	SourceURL   string    `json:"source_url"`
	FileName    string    `json:"file_name"`
}

// Manifest is the serialized, sorted list of assets produced by one harvest
// session. Items are ordered ascending by chapter id; ties keep the original
// variant order. The manifest is the single source of truth for the
// download phase.
type Manifest struct {
	GeneratedAt time.Time `json:"generated_at"`
	RunID       string    `json:"run_id"`
	Program     string    `json:"program"`
	Items       []Asset   `json:"items"`
}

// Filter narrows which variants become manifest assets. Empty fields match
// everything; filters that match nothing yield an empty, valid manifest.
type Filter struct {
	// Quality keeps only video variants whose label contains this substring.
	Quality string

	// SubtitleLang keeps only subtitle variants whose label contains this
	// substring.
	SubtitleLang string

	// Subtitles enables subtitle assets at all.
	Subtitles bool
}

// DownloadTask is the per-asset unit of work handed to a download worker.
// TempPath is always FinalPath + PartSuffix.
type DownloadTask struct {
	Asset     Asset
	FinalPath string
	TempPath  string
	Resume    bool
}

// DownloadResult reports the outcome of one task.
type DownloadResult struct {
	Asset            Asset
	BytesTransferred int64
	Success          bool
	Error            error
}

// DownloadStats aggregates a whole run.
type DownloadStats struct {
	Completed  int
	Failed     int
	Skipped    int
	TotalBytes int64
	Duration   time.Duration
}

// HarvestStats summarizes one harvest pass.
type HarvestStats struct {
	TotalPages  int
	FailedPages int
	UniqueItems int
	Duration    time.Duration
}
