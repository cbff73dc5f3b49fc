// Package workflow drives queued jobs through the ingestion pipeline.
//
// The Manager runs workflow.max_concurrent workers. Each worker claims the
// next pending item, keeps its heartbeat fresh, mirrors pipeline stages and
// download progress into the queue, and records the outcome. Failures are
// mapped to failed or review through queue.FailureStatus, and partial
// artifacts of failed videos are removed. Stale in-flight items whose
// heartbeat has lapsed are reclaimed so a crashed worker never strands a job.
package workflow
