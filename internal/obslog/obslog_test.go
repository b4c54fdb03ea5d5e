package obslog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewJSONConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: "json", Console: true, Stdout: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("engine best move", zap.String("move", "e2e4"))
	_ = logger.Sync()

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if entry["level"] != "debug" || entry["move"] != "e2e4" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestLevelFiltersAndFileCore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tutor.log")
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: "legacy", Console: true, Stdout: &buf, ToFile: true, FilePath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	_ = logger.Sync()

	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "WARN | ") {
		t.Fatalf("unexpected console output: %q", buf.String())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), "kept") {
		t.Fatalf("file core missing entry: %q", raw)
	}
}

func TestSetGlobalIgnoresNil(t *testing.T) {
	before := L()
	SetGlobal(nil)
	if L() != before {
		t.Fatalf("nil logger replaced the global")
	}
}
