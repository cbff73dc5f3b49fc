// Package acquisition downloads a video's media into the artifact tree.
//
// Each attempt runs a small state machine (disk check, download, verify) and
// the whole attempt is retried on transient failures with a fixed delay
// schedule. Progress from yt-dlp is sampled and pushed to an optional sink
// whose failures never affect the download.
package acquisition
