package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"meshforge/internal/config"
	"meshforge/internal/logging"
	"meshforge/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello file")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "meshforge.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello file") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerRendersComponentAndItem(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithItem(context.Background(), "chair")
	ctx = services.WithStage(ctx, "preview")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "batch")).Info("item completed", logging.Int("faces", 12))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, want := range []string{"batch [chair]: item completed", "stage=preview", "faces=12"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestJSONLoggerIncludesContextFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithRunID(context.Background(), "run-1")
	logging.ErrorWithContext(logging.WithContext(ctx, logger), "item failed", "item_failed")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &payload); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if payload["run_id"] != "run-1" || payload["event_type"] != "item_failed" || payload["level"] != "error" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if _, ok := payload[logging.FieldErrorHint]; !ok {
		t.Fatalf("expected default error hint in %v", payload)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	if logging.NewNop().Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected nop logger to be disabled")
	}
}

func TestDurationsRenderAsSeconds(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "json.log")
	consolePath := filepath.Join(dir, "console.log")
	jsonLogger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{jsonPath}})
	if err != nil {
		t.Fatal(err)
	}
	consoleLogger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{consolePath}})
	if err != nil {
		t.Fatal(err)
	}
	jsonLogger.Info("stage finished", logging.Duration("elapsed", 1500*time.Millisecond))
	consoleLogger.Info("stage finished", logging.Duration("elapsed", 1500*time.Millisecond))

	content, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &payload); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if payload["elapsed"] != 1.5 {
		t.Fatalf("expected elapsed=1.5 seconds, got %v", payload["elapsed"])
	}

	content, err = os.ReadFile(consolePath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "elapsed=1.5s") {
		t.Fatalf("expected elapsed=1.5s in %q", content)
	}
}

func TestWarnWithContextKeepsCallerHint(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatal(err)
	}
	logging.WarnWithContext(logger, "format degraded", "format_degraded", logging.String(logging.FieldErrorHint, "install blender"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &payload); err != nil {
		t.Fatal(err)
	}
	if payload[logging.FieldErrorHint] != "install blender" || payload[logging.FieldEventType] != "format_degraded" {
		t.Fatalf("unexpected payload %v", payload)
	}
}
