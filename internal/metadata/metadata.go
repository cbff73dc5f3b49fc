package metadata

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"vidingest/internal/services"
)

// Source names the provider that produced a VideoMetadata.
type Source string

const (
	SourceDataAPI   Source = "youtube_data_api"
	SourceExtractor Source = "yt_dlp"
)

// Thumbnail is one preview image rendition.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// VideoMetadata is the validated description of a remote video.
type VideoMetadata struct {
	ExternalID   string        `json:"external_id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Duration     time.Duration `json:"duration"`
	ViewCount    *int64        `json:"view_count,omitempty"`
	LikeCount    *int64        `json:"like_count,omitempty"`
	PublishedAt  time.Time     `json:"published_at"`
	ChannelID    string        `json:"channel_id"`
	ChannelTitle string        `json:"channel_title"`
	Thumbnails   []Thumbnail   `json:"thumbnails"`
	Tags         []string      `json:"tags,omitempty"`
	Category     *string       `json:"category"`
	Source       Source        `json:"source"`
}

// DurationSeconds returns the duration as fractional seconds.
func (m VideoMetadata) DurationSeconds() float64 {
	return m.Duration.Seconds()
}

// Clone returns a deep copy that shares no slices or pointers with m.
func (m VideoMetadata) Clone() VideoMetadata {
	m.Thumbnails = slices.Clone(m.Thumbnails)
	m.Tags = slices.Clone(m.Tags)
	m.ViewCount = clonePtr(m.ViewCount)
	m.LikeCount = clonePtr(m.LikeCount)
	m.Category = clonePtr(m.Category)
	return m
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ThumbnailURLs returns the ranked thumbnail URLs.
func (m VideoMetadata) ThumbnailURLs() []string {
	out := make([]string, 0, len(m.Thumbnails))
	for _, thumb := range m.Thumbnails {
		out = append(out, thumb.URL)
	}
	return out
}

// Normalize applies NFC normalization and trimming to text fields, ranks
// thumbnails by resolution (largest first) with duplicate URLs removed, and
// de-duplicates tags case-insensitively.
func Normalize(meta VideoMetadata) VideoMetadata {
	meta.Title = cleanText(meta.Title)
	meta.Description = strings.TrimSpace(norm.NFC.String(meta.Description))
	meta.ChannelTitle = cleanText(meta.ChannelTitle)
	meta.ChannelID = strings.TrimSpace(meta.ChannelID)
	if meta.Category != nil {
		category := cleanText(*meta.Category)
		if category == "" {
			meta.Category = nil
		} else {
			meta.Category = &category
		}
	}
	meta.Tags = dedupeTags(meta.Tags)
	meta.Thumbnails = rankThumbnails(meta.Thumbnails)
	return meta
}

// Validate checks the invariants every resolved video must satisfy. The
// first violation is returned as a Validation error naming the field.
func Validate(meta VideoMetadata, maxDuration time.Duration) error {
	const op = "validate metadata"
	if meta.Duration <= 0 {
		return services.Validation(op, "duration", "must be positive")
	}
	if maxDuration > 0 && meta.Duration > maxDuration {
		return services.Validation(op, "duration", fmt.Sprintf("%s exceeds maximum %s", meta.Duration, maxDuration))
	}
	if strings.TrimSpace(meta.Title) == "" {
		return services.Validation(op, "title", "must not be empty")
	}
	if len(meta.Thumbnails) == 0 {
		return services.Validation(op, "thumbnails", "at least one thumbnail URL is required")
	}
	return nil
}

func cleanText(value string) string {
	value = norm.NFC.String(value)
	return strings.Join(strings.FieldsFunc(value, unicode.IsSpace), " ")
}

func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = cleanText(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func rankThumbnails(thumbs []Thumbnail) []Thumbnail {
	best := make(map[string]Thumbnail, len(thumbs))
	order := make([]string, 0, len(thumbs))
	for _, thumb := range thumbs {
		thumb.URL = strings.TrimSpace(thumb.URL)
		if thumb.URL == "" {
			continue
		}
		prev, ok := best[thumb.URL]
		if !ok {
			order = append(order, thumb.URL)
			best[thumb.URL] = thumb
			continue
		}
		if area(thumb) > area(prev) {
			best[thumb.URL] = thumb
		}
	}
	out := make([]Thumbnail, 0, len(order))
	for _, url := range order {
		out = append(out, best[url])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return area(out[i]) > area(out[j])
	})
	return out
}

func area(t Thumbnail) int {
	return t.Width * t.Height
}
