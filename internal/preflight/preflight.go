package preflight

import (
	"context"

	"vidingest/internal/config"
)

// minFreeBytes is the floor below which the storage root is reported as full
// regardless of any particular download.
const minFreeBytes = 1 << 30

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	for _, status := range CheckSystemDeps(cfg) {
		result := Result{Name: status.Name, Passed: status.Available, Optional: status.Optional, Detail: status.Command}
		if !status.Available {
			result.Detail = status.Detail
		}
		results = append(results, result)
	}

	results = append(results,
		CheckDirectoryAccess("Storage root", cfg.Paths.StorageRoot),
		CheckDirectoryAccess("Model directory", cfg.Paths.ModelDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDiskSpace("Storage free space", cfg.Paths.StorageRoot, minFreeBytes),
	)

	// The extractor fallback covers a missing key, so the API is optional.
	if cfg.Metadata.APIKey != "" {
		check := CheckMetadataAPI(ctx, cfg.Metadata.BaseURL, cfg.Metadata.APIKey)
		check.Optional = cfg.Metadata.FallbackEnabled
		results = append(results, check)
	}

	if cfg.Progress.RedisEnabled {
		check := CheckRedis(ctx, cfg.Progress.RedisAddr, cfg.Progress.RedisPassword, cfg.Progress.RedisDB)
		check.Optional = true
		results = append(results, check)
	}

	return results
}

// Blocking reports the required checks that failed.
func Blocking(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed && !result.Optional {
			failed = append(failed, result)
		}
	}
	return failed
}
