package command_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidingest/internal/services/command"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestRunStreamsStdoutAndCapturesStderr(t *testing.T) {
	script := writeScript(t, "echo one\necho two\necho warn >&2\n")
	var lines []string
	result, err := command.NewExecutor().Run(context.Background(), command.Spec{
		Binary:   script,
		OnStdout: func(line string) { lines = append(lines, line) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Join(lines, ",") != "one,two" {
		t.Fatalf("unexpected streamed lines %v", lines)
	}
	if strings.TrimSpace(result.Stderr) != "warn" {
		t.Fatalf("unexpected stderr %q", result.Stderr)
	}
	if result.ExitCode != 0 {
		t.Fatalf("unexpected exit code %d", result.ExitCode)
	}
}

func TestRunReportsExitError(t *testing.T) {
	script := writeScript(t, "echo 'Invalid data found when processing input' >&2\nexit 3\n")
	result, err := command.NewExecutor().Run(context.Background(), command.Spec{Binary: script})
	var exitErr *command.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %v", err)
	}
	if exitErr.ExitCode != 3 || result.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d/%d", exitErr.ExitCode, result.ExitCode)
	}
	if !strings.Contains(exitErr.Stderr, "Invalid data") {
		t.Fatalf("expected stderr captured, got %q", exitErr.Stderr)
	}
}

func TestRunKillsProcessOnCancel(t *testing.T) {
	script := writeScript(t, "sleep 30\n")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := command.NewExecutor().Run(ctx, command.Spec{Binary: script})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("process was not terminated promptly (%v)", elapsed)
	}
}

func TestRecorderCapturesCalls(t *testing.T) {
	rec := &command.Recorder{Handler: func(_ context.Context, spec command.Spec) (command.Result, error) {
		return command.Result{Stdout: spec.Args[0]}, nil
	}}
	res, err := rec.Run(context.Background(), command.Spec{Binary: "ffmpeg", Args: []string{"-version"}})
	if err != nil || res.Stdout != "-version" {
		t.Fatalf("unexpected result %+v %v", res, err)
	}
	calls := rec.Calls()
	if len(calls) != 1 || calls[0].Binary != "ffmpeg" {
		t.Fatalf("unexpected calls %+v", calls)
	}
}
