package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"vidingest/internal/services"
)

const (
	defaultBaseURL     = "https://www.googleapis.com/youtube/v3"
	defaultHTTPTimeout = 15 * time.Second
	videoParts         = "snippet,contentDetails,statistics,status"
	maxErrorBody       = 4096
)

// Thumbnail is one rendition of a video's preview image.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Video is the subset of videos.list fields used for ingestion.
type Video struct {
	ID            string
	Title         string
	Description   string
	PublishedAt   time.Time
	ChannelID     string
	ChannelTitle  string
	Tags          []string
	CategoryID    string
	Duration      time.Duration
	ViewCount     *int64
	LikeCount     *int64
	Thumbnails    []Thumbnail
	PrivacyStatus string
	UploadStatus  string
	AgeRestricted bool
	LiveContent   string
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero or negative disables limiting.
func WithRateLimit(requestsPerSecond float64) Option {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = nil
			return
		}
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// Client wraps the YouTube Data API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient constructs a Data API client. An empty baseURL uses the public endpoint.
func NewClient(apiKey, baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
			Domain string `json:"domain"`
		} `json:"errors"`
	} `json:"error"`
}

// APIError is a non-2xx Data API response.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("youtube api: http %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("youtube api: http %d: %s", e.StatusCode, e.Message)
}

type videoListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			PublishedAt          time.Time            `json:"publishedAt"`
			ChannelID            string               `json:"channelId"`
			Title                string               `json:"title"`
			Description          string               `json:"description"`
			Thumbnails           map[string]Thumbnail `json:"thumbnails"`
			ChannelTitle         string               `json:"channelTitle"`
			Tags                 []string             `json:"tags"`
			CategoryID           string               `json:"categoryId"`
			LiveBroadcastContent string               `json:"liveBroadcastContent"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration      string `json:"duration"`
			ContentRating struct {
				YtRating string `json:"ytRating"`
			} `json:"contentRating"`
		} `json:"contentDetails"`
		Status struct {
			UploadStatus  string `json:"uploadStatus"`
			PrivacyStatus string `json:"privacyStatus"`
		} `json:"status"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
			LikeCount string `json:"likeCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// Video fetches one video by id. Missing videos surface as NotFound,
// age-gated ones as AgeRestricted, and HTTP 403 as AccessDenied.
func (c *Client) Video(ctx context.Context, id string) (*Video, error) {
	const op = "youtube videos.list"
	if !c.Configured() {
		return nil, services.AccessDenied(op, id, errors.New("youtube api key not configured"))
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, services.Transient(op, id, err)
		}
	}

	query := url.Values{}
	query.Set("part", videoParts)
	query.Set("id", id)
	query.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, services.Transient(op, id, fmt.Errorf("request timed out: %w", err))
		}
		return nil, services.Transient(op, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(op, id, resp)
	}

	var payload videoListResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Transient(op, id, fmt.Errorf("decode response: %w", err))
	}
	if len(payload.Items) == 0 {
		return nil, services.NotFound(op, id, services.ReasonUnavailable, errors.New("no video returned"))
	}
	item := payload.Items[0]

	switch item.Status.UploadStatus {
	case "deleted":
		return nil, services.NotFound(op, id, services.ReasonDeleted, nil)
	case "rejected", "failed":
		return nil, services.NotFound(op, id, services.ReasonUnavailable, fmt.Errorf("upload status %s", item.Status.UploadStatus))
	}
	if item.Status.PrivacyStatus == "private" {
		return nil, services.NotFound(op, id, services.ReasonPrivate, nil)
	}
	if item.ContentDetails.ContentRating.YtRating == "ytAgeRestricted" {
		return nil, services.AgeRestricted(op, id, nil)
	}

	video := &Video{
		ID:            item.ID,
		Title:         item.Snippet.Title,
		Description:   item.Snippet.Description,
		PublishedAt:   item.Snippet.PublishedAt,
		ChannelID:     item.Snippet.ChannelID,
		ChannelTitle:  item.Snippet.ChannelTitle,
		Tags:          item.Snippet.Tags,
		CategoryID:    item.Snippet.CategoryID,
		ViewCount:     parseCount(item.Statistics.ViewCount),
		LikeCount:     parseCount(item.Statistics.LikeCount),
		PrivacyStatus: item.Status.PrivacyStatus,
		UploadStatus:  item.Status.UploadStatus,
		LiveContent:   item.Snippet.LiveBroadcastContent,
	}
	if item.ContentDetails.Duration != "" {
		duration, err := ParseISODuration(item.ContentDetails.Duration)
		if err != nil {
			return nil, services.Validation(op, "duration", err.Error())
		}
		video.Duration = duration
	}
	video.Thumbnails = orderedThumbnails(item.Snippet.Thumbnails)
	return video, nil
}

// thumbnailKeys is the API's rendition order, largest first.
var thumbnailKeys = []string{"maxres", "standard", "high", "medium", "default"}

// orderedThumbnails flattens the rendition map in thumbnailKeys order, with
// any unknown keys appended alphabetically.
func orderedThumbnails(byKey map[string]Thumbnail) []Thumbnail {
	if len(byKey) == 0 {
		return nil
	}
	out := make([]Thumbnail, 0, len(byKey))
	for _, key := range thumbnailKeys {
		if thumb, ok := byKey[key]; ok {
			out = append(out, thumb)
		}
	}
	for _, key := range slices.Sorted(maps.Keys(byKey)) {
		if !slices.Contains(thumbnailKeys, key) {
			out = append(out, byKey[key])
		}
	}
	return out
}

func classifyStatus(op, id string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	var parsed apiErrorBody
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
		if len(parsed.Error.Errors) > 0 {
			apiErr.Reason = parsed.Error.Errors[0].Reason
		}
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return services.AccessDenied(op, id, apiErr)
	case resp.StatusCode == http.StatusBadRequest && apiErr.Reason == "keyInvalid":
		return services.AccessDenied(op, id, apiErr)
	case resp.StatusCode == http.StatusNotFound:
		return services.NotFound(op, id, services.ReasonUnavailable, apiErr)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return services.Transient(op, id, apiErr)
	case resp.StatusCode == http.StatusBadRequest:
		return services.InvalidArgument(op, "external_id", apiErr.Message)
	default:
		return fmt.Errorf("%s %s: %w", op, id, apiErr)
	}
}

func parseCount(value string) *int64 {
	if value == "" {
		return nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

var categoryNames = map[string]string{
	"1":  "Film & Animation",
	"2":  "Autos & Vehicles",
	"10": "Music",
	"15": "Pets & Animals",
	"17": "Sports",
	"19": "Travel & Events",
	"20": "Gaming",
	"22": "People & Blogs",
	"23": "Comedy",
	"24": "Entertainment",
	"25": "News & Politics",
	"26": "Howto & Style",
	"27": "Education",
	"28": "Science & Technology",
	"29": "Nonprofits & Activism",
}

// CategoryName maps a category id to its display name. Unknown ids return "".
func CategoryName(id string) string {
	return categoryNames[strings.TrimSpace(id)]
}
