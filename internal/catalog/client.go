// Package catalog talks to the remote catalog service: program index
// lookups, paginated chapter listings, and per-chapter media descriptions.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/enmassa-dl/enmassa/internal/network"
	"github.com/enmassa-dl/enmassa/pkg/errors"
	"github.com/enmassa-dl/enmassa/pkg/types"
)

// VariantPayload is one media rendition as published by the catalog.
type VariantPayload struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// MediaPayload is the wire shape of a chapter's media description. The
// variant fields use FlexList because the service emits a bare object when
// a chapter has exactly one rendition.
type MediaPayload struct {
	Program      string                   `json:"program"`
	Title        string                   `json:"title"`
	Season       int                      `json:"season"`
	Episode      int                      `json:"episode"`
	EpisodeLabel string                   `json:"episode_label"`
	Videos       FlexList[VariantPayload] `json:"videos"`
	Subtitles    FlexList[VariantPayload] `json:"subtitles"`
}

// PageResult is one catalog listing page. TotalPages is populated on every
// page; the harvester reads it from page 1.
type PageResult struct {
	TotalPages int                `json:"total_pages"`
	Items      []types.ChapterRef `json:"items"`
}

type pagePayload struct {
	TotalPages int                    `json:"total_pages"`
	Items      FlexList[chapterEntry] `json:"items"`
}

type chapterEntry struct {
	ID      int64 `json:"id"`
	Season  int   `json:"season"`
	Episode int   `json:"episode"`
}

type programEntry struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

// Client is the typed catalog client. It is safe for concurrent use.
type Client struct {
	httpClient network.Doer
	baseURL    string
	logger     *log.Logger
}

// NewClient creates a catalog client against the given base URL.
func NewClient(httpClient network.Doer, baseURL string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
	}
}

// LookupProgram resolves a program slug against the catalog index.
func (c *Client) LookupProgram(ctx context.Context, slug string) (*types.Program, error) {
	var programs FlexList[programEntry]
	if err := c.getJSON(ctx, c.baseURL+"/programs", &programs); err != nil {
		return nil, err
	}

	for _, entry := range programs {
		if strings.EqualFold(entry.Slug, slug) {
			return &types.Program{ID: entry.ID, Title: entry.Title, Slug: entry.Slug}, nil
		}
	}

	return nil, errors.Wrap(errors.ErrProgramNotFound, errors.CodeNotFound,
		fmt.Sprintf("no program with slug %q", slug))
}

// ListPage fetches one listing page of a program's chapters.
func (c *Client) ListPage(ctx context.Context, programID int64, page, pageSize int) (*PageResult, error) {
	endpoint := fmt.Sprintf("%s/programs/%d/chapters?%s", c.baseURL, programID, url.Values{
		"page":      {fmt.Sprintf("%d", page)},
		"page_size": {fmt.Sprintf("%d", pageSize)},
	}.Encode())

	var payload pagePayload
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	result := &PageResult{TotalPages: payload.TotalPages}
	for _, entry := range payload.Items {
		result.Items = append(result.Items, types.ChapterRef{
			ID:      entry.ID,
			Season:  entry.Season,
			Episode: entry.Episode,
		})
	}

	return result, nil
}

// ItemMedia fetches the raw media description of one chapter. Normalization
// into a MediaRecord happens in the resolver.
func (c *Client) ItemMedia(ctx context.Context, chapterID int64) (*MediaPayload, error) {
	endpoint := fmt.Sprintf("%s/items/%d/media", c.baseURL, chapterID)

	var payload MediaPayload
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	return &payload, nil
}

// getJSON performs a GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := network.NewRequest(ctx, endpoint)
	if err != nil {
		return errors.WrapWithURL(err, errors.CodeInvalidURL, "building catalog request", endpoint)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.WrapWithURL(err, errors.CodeNetworkError, "catalog request failed", endpoint)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return errors.FromHTTPStatus(resp.StatusCode, endpoint)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapWithURL(err, errors.CodeNetworkError, "reading catalog response", endpoint)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.WrapWithURL(err, errors.CodeMalformedMetadata, "decoding catalog response", endpoint)
	}

	return nil
}
