package journal

import (
	"os"
	"testing"
)

func writeRaw(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writeRaw: %v", err)
	}
}
