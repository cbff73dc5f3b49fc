// Package command runs external tools with streamed output, captured stderr,
// and prompt termination on context cancellation.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// maxStderrBytes bounds the stderr tail kept for diagnostics.
	maxStderrBytes = 64 * 1024
	// maxStdoutBytes bounds captured stdout; yt-dlp JSON dumps run to a few MB.
	maxStdoutBytes = 32 * 1024 * 1024
)

// waitDelay caps how long Wait blocks on output after the process is killed.
const waitDelay = 5 * time.Second

// Spec describes one process invocation.
type Spec struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string
	// OnStdout and OnStderr receive each output line as it arrives.
	OnStdout func(line string)
	OnStderr func(line string)
}

// Result captures what a finished process produced.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// ExitError reports a process that ran but exited non-zero.
type ExitError struct {
	Binary   string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Binary, e.ExitCode)
}

func (e *ExitError) Unwrap() error { return e.Err }

// OSExecutor runs real processes.
type OSExecutor struct{}

// NewExecutor returns the process-backed Executor.
func NewExecutor() Executor {
	return OSExecutor{}
}

// Run starts the process, streams its output, and always waits for it to
// exit. When ctx ends the process group is killed and ctx.Err() is returned.
func (OSExecutor) Run(ctx context.Context, spec Spec) (Result, error) {
	binary := strings.TrimSpace(spec.Binary)
	if binary == "" {
		return Result{}, errors.New("command: empty binary")
	}
	cmd := exec.CommandContext(ctx, binary, spec.Args...) //nolint:gosec
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}
	// Own process group so helpers spawned by the tool (yt-dlp runs ffmpeg)
	// die with it.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	stdout := &lineWriter{forward: spec.OnStdout, tail: tailBuffer{limit: maxStdoutBytes}}
	stderr := &lineWriter{forward: spec.OnStderr, tail: tailBuffer{limit: maxStderrBytes}}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	started := time.Now()
	runErr := cmd.Run()
	stdout.Flush()
	stderr.Flush()

	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return result, &ExitError{Binary: binary, ExitCode: result.ExitCode, Stderr: result.Stderr, Err: runErr}
		}
		return result, fmt.Errorf("run %s: %w", binary, runErr)
	}
	return result, nil
}

// lineWriter splits process output into lines, forwards each one, and keeps
// a bounded tail for diagnostics.
type lineWriter struct {
	mu      sync.Mutex
	forward func(string)
	partial []byte
	tail    tailBuffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.partial = append(w.partial, p...)
	for {
		idx := bytes.IndexByte(w.partial, '\n')
		if idx < 0 {
			break
		}
		w.emit(string(bytes.TrimRight(w.partial[:idx], "\r")))
		w.partial = w.partial[idx+1:]
	}
	return len(p), nil
}

// Flush emits any trailing output that did not end in a newline.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		w.emit(string(bytes.TrimRight(w.partial, "\r")))
		w.partial = nil
	}
}

func (w *lineWriter) emit(line string) {
	w.tail.WriteLine(line)
	if w.forward != nil {
		w.forward(line)
	}
}

func (w *lineWriter) String() string {
	return w.tail.String()
}

type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) WriteLine(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, line...)
	b.buf = append(b.buf, '\n')
	if over := len(b.buf) - b.limit; b.limit > 0 && over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
