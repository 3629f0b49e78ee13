package forensics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// External tool names.
const (
	ToolFFmpeg  = "ffmpeg"
	ToolFFprobe = "ffprobe"
)

// Default subprocess timeouts.
const (
	DefaultProbeTimeout = 20 * time.Second
	DefaultFrameTimeout = 30 * time.Second
)

// CommandResult is the outcome of one external tool invocation.
// A timeout is reported like any other non-zero exit.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Failed reports whether the command did not exit cleanly.
func (r CommandResult) Failed() bool {
	return r.ExitCode != 0 || r.TimedOut
}

// Toolchain abstracts the external executables used for video work so tests
// can simulate missing or failing tools.
type Toolchain interface {
	// Available reports whether the named tool can be invoked on this host.
	Available(name string) bool

	// Run invokes the named tool and waits at most timeout for it to exit.
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) CommandResult
}

// ExecToolchain runs tools from PATH, or from explicit per-tool paths.
type ExecToolchain struct {
	// Paths overrides the executable for a tool name.
	Paths map[string]string
}

// NewExecToolchain returns a toolchain using the given ffmpeg and ffprobe
// binaries. Empty values resolve through PATH.
func NewExecToolchain(ffmpegPath, ffprobePath string) *ExecToolchain {
	paths := make(map[string]string)
	if ffmpegPath != "" {
		paths[ToolFFmpeg] = ffmpegPath
	}
	if ffprobePath != "" {
		paths[ToolFFprobe] = ffprobePath
	}
	return &ExecToolchain{Paths: paths}
}

func (t *ExecToolchain) binary(name string) string {
	if t != nil {
		if p, ok := t.Paths[name]; ok && p != "" {
			return p
		}
	}
	return name
}

// Available looks the tool up on every call; nothing is cached.
func (t *ExecToolchain) Available(name string) bool {
	_, err := exec.LookPath(t.binary(name))
	return err == nil
}

// Run executes the tool with a bounded timeout.
func (t *ExecToolchain) Run(ctx context.Context, timeout time.Duration, name string, args ...string) CommandResult {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, t.binary(name), args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = -1
		if res.Stderr == "" {
			res.Stderr = fmt.Sprintf("%s timed out after %s", name, timeout)
		}
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res
	}

	res.ExitCode = -1
	if res.Stderr == "" {
		res.Stderr = err.Error()
	}
	return res
}
