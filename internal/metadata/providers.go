package metadata

import (
	"context"
	"strings"
	"time"

	"vidingest/internal/services/youtube"
	"vidingest/internal/services/ytdlp"
)

// Provider fetches raw metadata for a normalized external id.
type Provider interface {
	Name() Source
	Fetch(ctx context.Context, externalID string) (VideoMetadata, error)
}

// DataAPIClient is the subset of youtube.Client used by APIProvider.
type DataAPIClient interface {
	Configured() bool
	Video(ctx context.Context, id string) (*youtube.Video, error)
}

// APIProvider reads metadata from the YouTube Data API.
type APIProvider struct {
	Client DataAPIClient
}

func (p APIProvider) Name() Source { return SourceDataAPI }

// Enabled reports whether the provider has credentials.
func (p APIProvider) Enabled() bool {
	return p.Client != nil && p.Client.Configured()
}

func (p APIProvider) Fetch(ctx context.Context, externalID string) (VideoMetadata, error) {
	video, err := p.Client.Video(ctx, externalID)
	if err != nil {
		return VideoMetadata{}, err
	}
	meta := VideoMetadata{
		ExternalID:   externalID,
		Title:        video.Title,
		Description:  video.Description,
		Duration:     video.Duration,
		ViewCount:    video.ViewCount,
		LikeCount:    video.LikeCount,
		PublishedAt:  video.PublishedAt,
		ChannelID:    video.ChannelID,
		ChannelTitle: video.ChannelTitle,
		Tags:         video.Tags,
		Source:       SourceDataAPI,
	}
	if name := youtube.CategoryName(video.CategoryID); name != "" {
		meta.Category = &name
	}
	for _, thumb := range video.Thumbnails {
		meta.Thumbnails = append(meta.Thumbnails, Thumbnail(thumb))
	}
	return meta, nil
}

// Extractor is the subset of ytdlp.Client used by ExtractorProvider.
type Extractor interface {
	DumpJSON(ctx context.Context, videoURL, externalID string) (*ytdlp.Info, error)
}

// ExtractorProvider reads metadata by scraping the watch page with yt-dlp.
type ExtractorProvider struct {
	Extractor Extractor
}

func (p ExtractorProvider) Name() Source { return SourceExtractor }

func (p ExtractorProvider) Fetch(ctx context.Context, externalID string) (VideoMetadata, error) {
	info, err := p.Extractor.DumpJSON(ctx, youtube.WatchURL(externalID), externalID)
	if err != nil {
		return VideoMetadata{}, err
	}
	meta := VideoMetadata{
		ExternalID:   externalID,
		Title:        info.Title,
		Description:  info.Description,
		Duration:     time.Duration(info.Duration * float64(time.Second)),
		ViewCount:    info.ViewCount,
		LikeCount:    info.LikeCount,
		PublishedAt:  publishedAt(info),
		ChannelID:    info.ChannelID,
		ChannelTitle: info.ChannelTitle(),
		Tags:         info.Tags,
		Source:       SourceExtractor,
	}
	if len(info.Categories) > 0 && strings.TrimSpace(info.Categories[0]) != "" {
		category := info.Categories[0]
		meta.Category = &category
	}
	for _, thumb := range info.Thumbnails {
		meta.Thumbnails = append(meta.Thumbnails, Thumbnail{URL: thumb.URL, Width: thumb.Width, Height: thumb.Height})
	}
	if len(meta.Thumbnails) == 0 && info.Thumbnail != "" {
		meta.Thumbnails = append(meta.Thumbnails, Thumbnail{URL: info.Thumbnail})
	}
	return meta, nil
}

func publishedAt(info *ytdlp.Info) time.Time {
	if info.Timestamp != nil && *info.Timestamp > 0 {
		return time.Unix(*info.Timestamp, 0).UTC()
	}
	if t, err := time.Parse("20060102", info.UploadDate); err == nil {
		return t
	}
	return time.Time{}
}
