// Package daemon runs the long-lived ingestion process behind `vidingest serve`.
//
// A flock lock file keeps a single daemon per state directory. Startup
// requeues items a crashed predecessor left mid-flight; shutdown fails the
// items it was still working on so the queue never reports phantom work.
package daemon
