package queue

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads every line of path as a Task. The runner calls this on its own
// queue file, which it assumes is well-formed (spec §4.1.1); a line that
// isn't even syntactically valid JSON is treated as a fatal environmental
// failure and returned as an error, matching spec §7's "inability to load
// the queue file at all".
func Load(path string) ([]*Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("queue: open %s: %w", path, err)
	}
	defer f.Close()

	var tasks []*Task
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		trimmed := bytesTrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		var t Task
		if err := json.Unmarshal(trimmed, &t); err != nil {
			return nil, fmt.Errorf("queue: %s line %d: %w", path, lineNo, err)
		}
		tasks = append(tasks, &t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("queue: reading %s: %w", path, err)
	}
	return tasks, nil
}

// LoadTolerant reads path the way the consistency validator does: a missing
// file or any I/O error yields an empty slice, and individual lines that are
// blank, not valid JSON, or not a JSON object are silently skipped (spec §4.5).
func LoadTolerant(path string) []*Task {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var tasks []*Task
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytesTrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal(line, &raw); err != nil || raw == nil {
			continue
		}
		var t Task
		if err := json.Unmarshal(line, &t); err != nil {
			continue
		}
		tasks = append(tasks, &t)
	}
	if err := scanner.Err(); err != nil {
		return nil
	}
	return tasks
}

// WriteAtomic writes tasks to path by writing a temp file in the same
// directory, flushing it, and renaming it over the destination (spec
// §4.1.1): partial states are never observable to a concurrent reader.
func WriteAtomic(path string, tasks []*Task) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("queue: creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("queue: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, t := range tasks {
		b, err := json.Marshal(t)
		if err != nil {
			_ = tmp.Close()
			return fmt.Errorf("queue: encoding task %s: %w", t.TaskID, err)
		}
		if _, err := w.Write(b); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("queue: writing task %s: %w", t.TaskID, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("queue: writing task %s: %w", t.TaskID, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("queue: flushing: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("queue: syncing: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("queue: closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("queue: renaming into place: %w", err)
	}
	cleanup = false
	return nil
}

func bytesTrimSpace(b []byte) []byte {
	start := 0
	for start < len(b) && isSpace(b[start]) {
		start++
	}
	end := len(b)
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
