package metadata_test

import (
	"context"
	"testing"
	"time"

	"vidingest/internal/metadata"
	"vidingest/internal/services/youtube"
	"vidingest/internal/services/ytdlp"
)

type stubAPI struct{ video *youtube.Video }

func (s stubAPI) Configured() bool { return true }

func (s stubAPI) Video(context.Context, string) (*youtube.Video, error) { return s.video, nil }

type stubExtractor struct {
	info    *ytdlp.Info
	lastRef *string
}

func (s stubExtractor) DumpJSON(_ context.Context, videoURL, _ string) (*ytdlp.Info, error) {
	if s.lastRef != nil {
		*s.lastRef = videoURL
	}
	return s.info, nil
}

func TestAPIProviderMapsFields(t *testing.T) {
	views := int64(42)
	p := metadata.APIProvider{Client: stubAPI{video: &youtube.Video{
		Title:      "T",
		Duration:   time.Minute,
		ViewCount:  &views,
		CategoryID: "27",
		Thumbnails: []youtube.Thumbnail{{URL: "https://x/1.jpg", Width: 10, Height: 10}},
	}}}
	if !p.Enabled() {
		t.Fatal("expected provider enabled")
	}
	meta, err := p.Fetch(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatal(err)
	}
	if meta.Source != metadata.SourceDataAPI || meta.Category == nil || *meta.Category != "Education" {
		t.Fatalf("unexpected mapping %+v", meta)
	}
	if *meta.ViewCount != 42 || len(meta.Thumbnails) != 1 {
		t.Fatalf("unexpected counts %+v", meta)
	}
}

func TestExtractorProviderMapsFields(t *testing.T) {
	ts := int64(1256453853)
	var seen string
	p := metadata.ExtractorProvider{Extractor: stubExtractor{lastRef: &seen, info: &ytdlp.Info{
		Title:      "T",
		Duration:   90.5,
		Uploader:   "Uploader",
		Timestamp:  &ts,
		Thumbnail:  "https://x/fallback.jpg",
		Categories: []string{"Music"},
	}}}
	meta, err := p.Fetch(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatal(err)
	}
	if seen != youtube.WatchURL("dQw4w9WgXcQ") {
		t.Fatalf("unexpected URL %q", seen)
	}
	if meta.Duration != 90500*time.Millisecond || meta.ChannelTitle != "Uploader" {
		t.Fatalf("unexpected mapping %+v", meta)
	}
	if meta.PublishedAt.Unix() != ts || meta.Category == nil || *meta.Category != "Music" {
		t.Fatalf("unexpected date/category %+v", meta)
	}
	if len(meta.Thumbnails) != 1 || meta.Thumbnails[0].URL != "https://x/fallback.jpg" {
		t.Fatalf("expected single fallback thumbnail, got %+v", meta.Thumbnails)
	}
}
