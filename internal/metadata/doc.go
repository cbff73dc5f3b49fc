// Package metadata resolves, normalizes, validates, and briefly caches video
// metadata.
//
// The Data API is the primary provider and is retried on transient failures
// with exponential backoff. When it denies access (quota, bad key, HTTP 403)
// the resolver makes one attempt with the yt-dlp extractor instead; that
// attempt is outside the primary retry budget and its failure is returned
// unchanged.
package metadata
