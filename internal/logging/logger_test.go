package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_WritesJSONToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	log, err := NewLogger(dir, "debug")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	log.Debug("test_message_from_logging_test")
	_ = log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "botwatch.log"))
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"msg":"test_message_from_logging_test"`) || !strings.Contains(line, `"ts":`) {
		t.Fatalf("unexpected log line: %s", line)
	}
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	dir := t.TempDir()
	log, err := NewLogger(dir, "warn")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Info("dropped")
	log.Warn("kept")
	_ = log.Sync()

	data, _ := os.ReadFile(filepath.Join(dir, "botwatch.log"))
	if strings.Contains(string(data), "dropped") || !strings.Contains(string(data), "kept") {
		t.Fatalf("level not applied: %s", data)
	}
}

func TestNewLogger_BadLevel(t *testing.T) {
	if _, err := NewLogger(t.TempDir(), "loud"); err == nil {
		t.Fatal("want error for unknown level")
	}
}
