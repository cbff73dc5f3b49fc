// Package services defines shared utilities consumed by the pipeline stages
// and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp queue item IDs, video IDs, stage names, and
//     correlation identifiers for logging and tracing.
//   - The tagged Error type whose Kind discriminator drives retry decisions,
//     fallback routing, and queue status mapping.
//   - Retry with fixed or exponential schedules and context-aware waits.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
