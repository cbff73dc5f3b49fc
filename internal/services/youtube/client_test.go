package youtube_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"vidingest/internal/services"
	"vidingest/internal/services/youtube"
)

const videoJSON = `{
  "items": [{
    "id": "dQw4w9WgXcQ",
    "snippet": {
      "publishedAt": "2009-10-25T06:57:33Z",
      "channelId": "UCuAXFkgsw1L7xaCfnd5JJOw",
      "title": "Never Gonna Give You Up",
      "description": "The official video",
      "thumbnails": {
        "default": {"url": "https://i.ytimg.com/vi/dQw4w9WgXcQ/default.jpg", "width": 120, "height": 90},
        "high": {"url": "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg", "width": 480, "height": 360}
      },
      "channelTitle": "Rick Astley",
      "tags": ["rick astley", "80s"],
      "categoryId": "10"
    },
    "contentDetails": {"duration": "PT3M33S"},
    "status": {"uploadStatus": "processed", "privacyStatus": "public"},
    "statistics": {"viewCount": "1500000000", "likeCount": "17000000"}
  }]
}`

func TestVideoDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/videos" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "secret" || r.URL.Query().Get("id") != "dQw4w9WgXcQ" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(videoJSON))
	}))
	defer srv.Close()

	client := youtube.NewClient("secret", srv.URL, time.Second)
	video, err := client.Video(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Video: %v", err)
	}
	if video.Title != "Never Gonna Give You Up" || video.ChannelTitle != "Rick Astley" {
		t.Fatalf("unexpected snippet %+v", video)
	}
	if video.Duration != 213*time.Second {
		t.Fatalf("unexpected duration %v", video.Duration)
	}
	if video.ViewCount == nil || *video.ViewCount != 1500000000 {
		t.Fatalf("unexpected view count %v", video.ViewCount)
	}
	if len(video.Thumbnails) != 2 {
		t.Fatalf("expected 2 thumbnails, got %d", len(video.Thumbnails))
	}
	if youtube.CategoryName(video.CategoryID) != "Music" {
		t.Fatalf("unexpected category %q", video.CategoryID)
	}
}

func TestVideoThumbnailOrderIsStable(t *testing.T) {
	const body = `{"items": [{
	  "id": "dQw4w9WgXcQ",
	  "snippet": {
	    "title": "t",
	    "thumbnails": {
	      "default": {"url": "d", "width": 120, "height": 90},
	      "zz_custom": {"url": "z", "width": 640, "height": 480},
	      "standard": {"url": "s", "width": 640, "height": 480},
	      "high": {"url": "h", "width": 640, "height": 480},
	      "maxres": {"url": "m", "width": 1280, "height": 720}
	    }
	  },
	  "contentDetails": {"duration": "PT1M"}
	}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	client := youtube.NewClient("secret", srv.URL, time.Second)
	want := []string{"m", "s", "h", "d", "z"}
	for i := 0; i < 20; i++ {
		video, err := client.Video(context.Background(), "dQw4w9WgXcQ")
		if err != nil {
			t.Fatalf("Video: %v", err)
		}
		var got []string
		for _, thumb := range video.Thumbnails {
			got = append(got, thumb.URL)
		}
		if !slices.Equal(got, want) {
			t.Fatalf("run %d: thumbnail order %v, want %v", i, got, want)
		}
	}
}

func TestVideoClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   services.Kind
		reason string
	}{
		{name: "quota", status: 403, body: `{"error":{"code":403,"message":"quota","errors":[{"reason":"quotaExceeded"}]}}`, kind: services.KindAccessDenied},
		{name: "bad key", status: 400, body: `{"error":{"code":400,"message":"API key not valid","errors":[{"reason":"keyInvalid"}]}}`, kind: services.KindAccessDenied},
		{name: "bad request", status: 400, body: `{"error":{"code":400,"message":"bad id","errors":[{"reason":"invalid"}]}}`, kind: services.KindInvalidArgument},
		{name: "server", status: 503, body: `oops`, kind: services.KindTransient},
		{name: "rate", status: 429, body: ``, kind: services.KindTransient},
		{name: "empty", status: 200, body: `{"items":[]}`, kind: services.KindNotFound, reason: services.ReasonUnavailable},
		{name: "private", status: 200, body: `{"items":[{"id":"x","status":{"privacyStatus":"private"}}]}`, kind: services.KindNotFound, reason: services.ReasonPrivate},
		{name: "deleted", status: 200, body: `{"items":[{"id":"x","status":{"uploadStatus":"deleted"}}]}`, kind: services.KindNotFound, reason: services.ReasonDeleted},
		{name: "age", status: 200, body: `{"items":[{"id":"x","contentDetails":{"contentRating":{"ytRating":"ytAgeRestricted"}}}]}`, kind: services.KindAgeRestricted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := youtube.NewClient("k", srv.URL, time.Second).Video(context.Background(), "dQw4w9WgXcQ")
			if !services.IsKind(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
			if tt.reason != "" {
				var typed *services.Error
				if !errors.As(err, &typed) || typed.Reason != tt.reason {
					t.Fatalf("expected reason %s, got %v", tt.reason, err)
				}
			}
		})
	}
}

func TestVideoWithoutKeyIsAccessDenied(t *testing.T) {
	client := youtube.NewClient("", "", 0)
	if client.Configured() {
		t.Fatal("expected unconfigured client")
	}
	if _, err := client.Video(context.Background(), "dQw4w9WgXcQ"); !services.IsKind(err, services.KindAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
}

func TestVideoHonoursCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := youtube.NewClient("k", srv.URL, time.Second, youtube.WithRateLimit(5)).Video(ctx, "dQw4w9WgXcQ")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseVideoID(t *testing.T) {
	valid := []string{
		"dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42s",
		"youtu.be/dQw4w9WgXcQ",
		"https://m.youtube.com/shorts/dQw4w9WgXcQ",
		"https://www.youtube.com/embed/dQw4w9WgXcQ",
		"https://music.youtube.com/watch?v=dQw4w9WgXcQ",
	}
	for _, ref := range valid {
		id, err := youtube.ParseVideoID(ref)
		if err != nil || id != "dQw4w9WgXcQ" {
			t.Fatalf("ParseVideoID(%q) = %q, %v", ref, id, err)
		}
	}
	invalid := []string{"", "short", "https://vimeo.com/123", "https://youtube.com/watch?v=bad", "https://youtube.com/channel/UCabc"}
	for _, ref := range invalid {
		if _, err := youtube.ParseVideoID(ref); !services.IsKind(err, services.KindInvalidArgument) {
			t.Fatalf("ParseVideoID(%q) expected invalid argument, got %v", ref, err)
		}
	}
}

func TestParseISODuration(t *testing.T) {
	tests := map[string]time.Duration{
		"PT3M33S":  213 * time.Second,
		"PT1H":     time.Hour,
		"P1DT2H":   26 * time.Hour,
		"PT0S":     0,
		"PT1.5S":   1500 * time.Millisecond,
		"PT2H0M1S": 2*time.Hour + time.Second,
	}
	for input, want := range tests {
		got, err := youtube.ParseISODuration(input)
		if err != nil || got != want {
			t.Fatalf("ParseISODuration(%q) = %v, %v; want %v", input, got, err, want)
		}
	}
	for _, bad := range []string{"", "PT", "3M", "PTXS"} {
		if _, err := youtube.ParseISODuration(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
