package harness

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/NicolasGomez1117/regime-admission-control/internal/taskfile"
)

func stubBinary(t *testing.T, dir string, exitCode int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub binary uses a POSIX shell script")
	}
	path := filepath.Join(dir, "aah-stub.sh")
	script := "#!/bin/sh\nexit " + itoa(exitCode) + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestRun_SuccessExitCode(t *testing.T) {
	dir := t.TempDir()
	Binary = stubBinary(t, dir, 0)
	defer func() { Binary = "aah" }()

	payload := &taskfile.Payload{RepoPath: dir, Argv: []string{"x"}}
	result, err := Run(context.Background(), dir, "t1", payload)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", result.ExitCode)
	}
	if filepath.Dir(result.LogPath) != filepath.Join(dir, "logs", "harness") {
		t.Fatalf("unexpected log path: %s", result.LogPath)
	}
}

func TestRun_NonZeroExitCodeIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	Binary = stubBinary(t, dir, 7)
	defer func() { Binary = "aah" }()

	payload := &taskfile.Payload{RepoPath: dir, Argv: []string{"x"}}
	result, err := Run(context.Background(), dir, "t1", payload)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 7 {
		t.Fatalf("expected exit 7, got %d", result.ExitCode)
	}
}

func TestRun_LogPathUsesTaskID(t *testing.T) {
	dir := t.TempDir()
	Binary = stubBinary(t, dir, 0)
	defer func() { Binary = "aah" }()

	payload := &taskfile.Payload{RepoPath: dir, Argv: []string{"x"}}
	result, err := Run(context.Background(), dir, "fallback-id", payload)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := filepath.Join(dir, "logs", "harness", "fallback-id.jsonl")
	if result.LogPath != want {
		t.Fatalf("expected log path %s, got %s", want, result.LogPath)
	}
}
