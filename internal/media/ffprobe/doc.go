// Package ffprobe runs ffprobe and decodes the parts of its JSON report
// needed to validate transcode inputs and measure media duration.
package ffprobe
