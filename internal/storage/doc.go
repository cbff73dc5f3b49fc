// Package storage owns the temporary artifact tree used while a video moves
// through the pipeline.
//
// Every video gets its own directory under the storage root so cleanup and
// accounting are per video. The Manager gates large writes with an advisory
// free-space check (available must cover the safety multiplier times the
// expected size), hands out unique timestamped paths, and reclaims space
// either by age (CleanupOlderThan, driven periodically by Sweep) or by
// explicit per-video deletion after hand-off or failure.
package storage
