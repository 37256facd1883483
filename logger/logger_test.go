package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cryptodash/config"

	"go.uber.org/zap"
)

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestJSONEncoding(t *testing.T) {
	var buf bytes.Buffer
	log, err := build(config.LogConfig{Level: "info", Format: "json", Environment: "prod"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Debug("hidden")
	log.Info("feed started", zap.String("feed", "listing"))
	log.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("stdout is not JSON: %v", err)
	}
	if entry["msg"] != "feed started" || entry["feed"] != "listing" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestConsoleEncodingInDev(t *testing.T) {
	var buf bytes.Buffer
	log, err := build(config.LogConfig{Level: "debug", Format: "json", Environment: "dev"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hello")
	log.Sync()

	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("dev should use console encoding, got %q", buf.String())
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	var buf bytes.Buffer
	log, err := build(config.LogConfig{Level: "info", Format: "console", OutputFile: path}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Warn("refresh failed")
	log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("file log is not JSON: %v", err)
	}
	if entry["level"] != "warn" {
		t.Errorf("level: got %v", entry["level"])
	}
}
