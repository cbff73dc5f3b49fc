package deps

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Requirement defines an external executable vidingest relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// ErrToolNotFound is returned when a configured tool cannot be located.
var ErrToolNotFound = errors.New("tool not found")

// ResolveTool turns a configured tool value into an absolute executable path.
// A value containing a path separator is used as-is and must be executable;
// a bare name is looked up on PATH. No other locations are searched.
func ResolveTool(configured string) (string, error) {
	command := strings.TrimSpace(configured)
	if command == "" {
		return "", fmt.Errorf("%w: command not configured", ErrToolNotFound)
	}
	if strings.ContainsRune(command, filepath.Separator) {
		info, err := os.Stat(command)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrToolNotFound, command, err)
		}
		if !isExecutable(command, info) {
			return "", fmt.Errorf("%w: %s is not executable", ErrToolNotFound, command)
		}
		return command, nil
	}
	resolved, err := exec.LookPath(command)
	if err != nil {
		return "", fmt.Errorf("%w: binary %q not on PATH", ErrToolNotFound, command)
	}
	if abs, err := filepath.Abs(resolved); err == nil {
		resolved = abs
	}
	return resolved, nil
}

// CheckBinaries evaluates the provided requirements and reports availability.
// Available entries carry the resolved path in Command.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := Status{
			Name:        req.Name,
			Command:     strings.TrimSpace(req.Command),
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		resolved, err := ResolveTool(req.Command)
		if err != nil {
			status.Detail = err.Error()
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

func isExecutable(path string, info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	return unix.Access(path, unix.X_OK) == nil
}
