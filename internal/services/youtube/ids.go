package youtube

import (
	"net/url"
	"regexp"
	"strings"

	"vidingest/internal/services"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ParseVideoID accepts a bare 11-character id or any common YouTube URL form
// (watch, youtu.be, shorts, embed, live) and returns the id.
func ParseVideoID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", services.InvalidArgument("parse video id", "external_id", "must not be empty")
	}
	if idPattern.MatchString(ref) {
		return ref, nil
	}
	candidate := ref
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return "", services.InvalidArgument("parse video id", "external_id", "not a video id or URL")
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	host = strings.TrimPrefix(host, "music.")

	var id string
	switch host {
	case "youtu.be":
		id = firstSegment(u.Path)
	case "youtube.com", "youtube-nocookie.com":
		if v := u.Query().Get("v"); v != "" {
			id = v
			break
		}
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(segments) == 2 {
			switch segments[0] {
			case "shorts", "embed", "live", "v", "e":
				id = segments[1]
			}
		}
	default:
		return "", services.InvalidArgument("parse video id", "external_id", "unsupported host "+host)
	}
	if !idPattern.MatchString(id) {
		return "", services.InvalidArgument("parse video id", "external_id", "malformed video id")
	}
	return id, nil
}

// WatchURL returns the canonical watch page for id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func firstSegment(path string) string {
	path = strings.Trim(path, "/")
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		return path[:idx]
	}
	return path
}
