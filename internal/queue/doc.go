// Package queue persists ingestion jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// Each item is either an external video id or an uploaded file path. Items
// move pending → resolving → downloading → extracting and finish as
// completed, failed, or review. Failures that a retry cannot fix (invalid
// input, missing or restricted videos) land in review; everything else lands
// in failed and can be retried.
//
// The database holds in-flight jobs rather than a long-term archive. Its
// schema version is kept in SQLite's user_version header; a database written
// by another version is refused rather than migrated.
package queue
