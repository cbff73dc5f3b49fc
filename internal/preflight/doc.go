// Package preflight provides readiness checks for the executables, paths, and
// external services vidingest depends on.
//
// These checks run in two contexts:
//   - "vidingest serve" calls RunAll before starting the daemon and refuses
//     to start when a required check fails.
//   - "vidingest deps" prints the individual results for operators.
//
// Each service check is gated by its config toggle; disabled features are
// skipped.
package preflight
