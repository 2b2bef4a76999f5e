package transcript

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestLoggerWritesPerUserNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	global := filepath.Join(dir, "all", "all.ndjson")
	logger, err := New(Config{
		Enabled:       true,
		Dir:           dir,
		GlobalEnabled: true,
		GlobalPath:    global,
		QueueSize:     16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Log(Event{User: "Mario Rossi", Channel: ChannelHTTP, Direction: DirectionInbound, ContentRaw: "ciao"})
	logger.Log(Event{User: "Mario Rossi", Channel: ChannelHTTP, Direction: DirectionOutbound, Topic: "malware", ContentRaw: "riga 1<br>riga 2"})
	logger.Log(Event{User: "Lucia", Channel: ChannelWebsocket, Direction: DirectionInbound, ContentRaw: "salve"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLines(t, filepath.Join(dir, FileName("Mario Rossi")))
	if len(lines) != 2 {
		t.Fatalf("Mario has %d lines, want 2", len(lines))
	}
	var got Event
	if err := json.Unmarshal([]byte(lines[1]), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Content != "riga 1\nriga 2" || got.Topic != "malware" || got.Timestamp == "" {
		t.Errorf("outbound event = %+v", got)
	}

	if n := len(readLines(t, global)); n != 3 {
		t.Errorf("global transcript has %d lines, want 3", n)
	}

	// Events after Close are ignored.
	logger.Log(Event{User: "Lucia", ContentRaw: "late"})
	if n := len(readLines(t, filepath.Join(dir, FileName("Lucia")))); n != 1 {
		t.Errorf("Lucia has %d lines, want 1", n)
	}
}

func TestDisabledIsNop(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Log(Event{User: "x"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestFileName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Mario":         "Mario-61c8e16a.ndjson",
		"Mario Rossi":   "Mario_Rossi-312fbf44.ndjson",
		"../etc/passwd": "etc_passwd-7fef78f5.ndjson",
		"   ":           "anonymous-0aad7da7.ndjson",
		"Anonymous":     "Anonymous-e7a8aa2d.ndjson",
	}
	for in, want := range tests {
		if got := FileName(in); got != want {
			t.Errorf("FileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileNameDistinguishesSanitizedCollisions(t *testing.T) {
	t.Parallel()

	seen := map[string]string{}
	for _, user := range []string{"mario rossi", "mario_rossi", "mario/rossi", "mario  rossi"} {
		name := FileName(user)
		if prev, ok := seen[name]; ok {
			t.Fatalf("%q and %q both map to %s", prev, user, name)
		}
		if !strings.HasPrefix(name, "mario_rossi-") {
			t.Errorf("FileName(%q) = %s, want readable mario_rossi stem", user, name)
		}
		seen[name] = user
	}
}
