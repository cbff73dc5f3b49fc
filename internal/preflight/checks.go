package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sys/unix"

	"vidingest/internal/config"
	"vidingest/internal/deps"
	"vidingest/internal/services"
	"vidingest/internal/services/youtube"
)

// probeVideoID is a long-lived public video used to exercise the Data API.
const probeVideoID = "jNQXAC9IVRw"

// CheckMetadataAPI verifies that the Data API is reachable and the key is
// accepted. It uses a short timeout and a single attempt.
func CheckMetadataAPI(ctx context.Context, baseURL, apiKey string) Result {
	const name = "Metadata API"
	if apiKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := youtube.NewClient(apiKey, baseURL, 10*time.Second)
	_, err := client.Video(checkCtx, probeVideoID)
	switch {
	case err == nil:
		return Result{Name: name, Passed: true, Detail: "API reachable"}
	case services.IsKind(err, services.KindNotFound), services.IsKind(err, services.KindAgeRestricted):
		return Result{Name: name, Passed: true, Detail: "API reachable (probe video unavailable)"}
	case services.IsKind(err, services.KindAccessDenied):
		return Result{Name: name, Detail: "auth failed (invalid api key or quota exhausted)"}
	case errors.Is(err, context.DeadlineExceeded):
		return Result{Name: name, Detail: "health check timed out"}
	default:
		return Result{Name: name, Detail: err.Error()}
	}
}

// CheckRedis verifies that the progress broker answers a ping.
func CheckRedis(ctx context.Context, addr, password string, db int) Result {
	const name = "Redis"
	if addr == "" {
		return Result{Name: name, Detail: "missing address"}
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	defer client.Close()

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(checkCtx).Err(); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", addr, err)}
	}
	return Result{Name: name, Passed: true, Detail: addr + " (ping ok)"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDiskSpace verifies the filesystem holding path has at least minBytes free.
func CheckDiskSpace(name, path string, minBytes uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s free of %s", humanize.IBytes(free), humanize.IBytes(stat.Blocks*uint64(stat.Bsize)))
	if free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s (need at least %s)", detail, humanize.IBytes(minBytes))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSystemDeps evaluates the external executables for the given config.
// Both the daemon and the CLI deps command use this to avoid duplicating
// the requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.Requirements(cfg))
}
