// Package progress provides destinations for download progress updates.
//
// LogSink writes sampled updates to slog, RedisSink publishes them as JSON on a
// per-video channel and keeps the latest update under a key, and Multi fans a
// single update out to several sinks. Sinks return errors for diagnostics
// only; the acquisition layer never lets a sink failure affect a download.
package progress
