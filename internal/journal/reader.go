package journal

import (
	"bufio"
	"encoding/json"
	"os"
)

// GetEvents returns every well-formed event line in path, in file order. A
// missing file, unreadable file, or malformed/non-object line is not an
// error: it's simply excluded, matching acp_event_reader.py's tolerant scan
// (the journal is diagnostic, not authoritative — the queue file is).
func GetEvents(path string) []Event {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		trimmed := bytesTrimSpace(line)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events
}

// GetEventsForTask returns the subset of GetEvents(path) whose TaskID
// exactly matches taskID, preserving file order.
func GetEventsForTask(path, taskID string) []Event {
	all := GetEvents(path)
	var out []Event
	for _, e := range all {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out
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
