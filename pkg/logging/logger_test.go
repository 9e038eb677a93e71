package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		enable slog.Level
		quiet  slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug, slog.LevelDebug - 4},
		{"warn level", "warn", slog.LevelWarn, slog.LevelInfo},
		{"warning alias", "WARNING", slog.LevelWarn, slog.LevelInfo},
		{"error level", "error", slog.LevelError, slog.LevelWarn},
		{"default info", "", slog.LevelInfo, slog.LevelDebug},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Enabled(ctx, tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
			if logger.Enabled(ctx, tt.quiet) {
				t.Fatalf("expected level %s to be disabled", tt.quiet)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	logger := Default()
	logger.Info("test message", "key", "value")

	ctx := context.Background()
	if !logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("Default() should enable info level")
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("Default() should not enable debug level (info is higher)")
	}
	if logger == Default() {
		t.Error("Default() returned the same instance twice - expected new instances")
	}
}

func TestWithCarriesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("info", &buf).With("component", "appointments")
	logger.Info("status updated", "appointment_id", "a-1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record["component"] != "appointments" {
		t.Fatalf("expected component attribute, got %#v", record)
	}
	if record["appointment_id"] != "a-1" {
		t.Fatalf("expected appointment_id attribute, got %#v", record)
	}
	if record["msg"] != "status updated" {
		t.Fatalf("unexpected msg %v", record["msg"])
	}
}

func TestWithOnNilLogger(t *testing.T) {
	var logger *Logger
	if child := logger.With("k", "v"); child == nil || child.Logger == nil {
		t.Fatal("expected nil receiver to fall back to a default logger")
	}
}
