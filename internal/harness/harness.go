// Package harness invokes the external aah harness subprocess and reports
// its exit code back to the runner (spec §4.1f, §6).
package harness

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/NicolasGomez1117/regime-admission-control/internal/taskfile"
)

// Binary is the executable name invoked for every harness run. It is a var,
// not a const, so tests can point it at a stub.
var Binary = "aah"

// LogDir returns the directory harness logs are written under inside
// runtimeRoot, creating it if necessary.
func LogDir(runtimeRoot string) (string, error) {
	dir := filepath.Join(runtimeRoot, "logs", "harness")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("harness: creating log dir: %w", err)
	}
	return dir, nil
}

// LogPath returns the per-task harness log path under runtimeRoot.
func LogPath(runtimeRoot, taskID string) (string, error) {
	dir, err := LogDir(runtimeRoot)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, taskID+".jsonl"), nil
}

// Result is the outcome of one harness invocation.
type Result struct {
	ExitCode int
	LogPath  string
}

// Run invokes: aah run --repo <payload.RepoPath> --log <logPath> --label
// <label> -- <payload.Argv...>, where label falls back to taskID when the
// payload didn't supply one (spec §4.1f / §6's harness contract).
func Run(ctx context.Context, runtimeRoot, taskID string, payload *taskfile.Payload) (*Result, error) {
	logPath, err := LogPath(runtimeRoot, taskID)
	if err != nil {
		return nil, err
	}

	label := payload.Label
	if label == "" {
		label = taskID
	}

	args := []string{"run", "--repo", payload.RepoPath, "--log", logPath, "--label", label, "--"}
	args = append(args, payload.Argv...)

	cmd := exec.CommandContext(ctx, Binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("harness: starting %s: %w", Binary, runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	return &Result{ExitCode: exitCode, LogPath: logPath}, nil
}
