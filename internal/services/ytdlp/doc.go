// Package ytdlp wraps the yt-dlp command line: single-video JSON dumps,
// media downloads with machine-readable progress, and direct audio
// extraction. Failures are classified from stderr into the shared services
// error kinds.
package ytdlp
