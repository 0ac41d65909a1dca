package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(newHandler(&buf, "json", &slog.HandlerOptions{}))
	l.Info("hello", "itemId", "R1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not JSON: %v (%s)", err, buf.String())
	}
	if rec["itemId"] != "R1" {
		t.Errorf("itemId = %v", rec["itemId"])
	}
}

func TestInit_WritesToDataDir(t *testing.T) {
	t.Setenv("LOG_FILE", "")
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	closer := Init(Config{DataDir: dir, Level: "info"})
	slog.Info("written to file")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "server.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file = %q", data)
	}
}

func TestLogPanic_IncludesStack(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	func() {
		defer func() {
			if r := recover(); r != nil {
				LogPanic(r, "worker crashed", "itemId", "R1")
			}
		}()
		panic("boom")
	}()

	out := buf.String()
	if !strings.Contains(out, "boom") || !strings.Contains(out, "stack=") || !strings.Contains(out, "itemId=R1") {
		t.Errorf("log = %s", out)
	}
}
