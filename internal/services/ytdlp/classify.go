package ytdlp

import (
	"context"
	"errors"
	"strings"

	"vidingest/internal/services"
	"vidingest/internal/services/command"
)

type signature struct {
	needles []string
	build   func(op, id string, err error) error
}

func notFound(reason string) func(op, id string, err error) error {
	return func(op, id string, err error) error {
		return services.NotFound(op, id, reason, err)
	}
}

// Ordered: specific platform refusals before generic network noise.
var signatures = []signature{
	{[]string{"private video", "this video is private"}, notFound(services.ReasonPrivate)},
	{[]string{"available in your country", "blocked it in your country", "geo restricted", "geo-restricted"}, notFound(services.ReasonRegionBlocked)},
	{[]string{"has been removed", "account associated with this video has been terminated", "video has been deleted", "removed by the uploader"}, notFound(services.ReasonDeleted)},
	{[]string{"sign in to confirm your age", "age-restricted", "age restricted", "inappropriate for some users"}, func(op, id string, err error) error {
		return services.AgeRestricted(op, id, err)
	}},
	{[]string{"http error 403", "403: forbidden", "sign in to confirm you're not a bot", "sign in to confirm you’re not a bot"}, func(op, id string, err error) error {
		return services.AccessDenied(op, id, err)
	}},
	{[]string{"video unavailable", "this video is unavailable", "this video is no longer available", "premieres in"}, notFound(services.ReasonUnavailable)},
	{[]string{"is not a valid url", "unsupported url", "incomplete youtube id", "invalid video id"}, func(op, id string, err error) error {
		return services.InvalidArgument(op, "external_id", "rejected by yt-dlp")
	}},
	{[]string{
		"timed out", "timeout", "connection reset", "connection refused", "connection aborted",
		"temporary failure in name resolution", "name or service not known", "network is unreachable",
		"remote end closed connection", "incompleteread", "incomplete read", "unable to download webpage",
		"http error 429", "http error 500", "http error 502", "http error 503", "http error 504",
		"no space left on device", "input/output error", "broken pipe",
	}, func(op, id string, err error) error {
		return services.Transient(op, id, err)
	}},
}

// Classify maps a failed yt-dlp run onto the shared error kinds using the
// captured stderr. Context errors are returned unchanged.
func Classify(ctx context.Context, op, externalID, stderr string, err error) error {
	if ctx != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	lower := strings.ToLower(stderr)
	if lower == "" {
		var exitErr *command.ExitError
		if errors.As(err, &exitErr) {
			lower = strings.ToLower(exitErr.Stderr)
		}
	}
	cause := err
	if line := lastErrorLine(stderr); line != "" {
		cause = errors.New(line)
	}
	for _, sig := range signatures {
		for _, needle := range sig.needles {
			if strings.Contains(lower, needle) {
				return sig.build(op, externalID, cause)
			}
		}
	}
	return services.ToolFailure(op, "yt-dlp", stderr, err)
}

func lastErrorLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "ERROR:") {
			return line
		}
	}
	return ""
}
