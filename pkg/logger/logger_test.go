package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize text logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := Init(WithFormat("yaml")); err == nil {
		t.Error("expected error for unknown format")
	}
	if err := Init(WithLevel("loud")); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithFormat(FormatJSON), WithOutput(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = Init() }()

	Named("store").Info(context.Background(), "prix applied", String("prix_id", "p1"), Int("players", 4),
		Strings("origins", []string{"https://a.example", "https://b.example"}))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "prix applied" {
		t.Errorf("expected msg %q, got %v", "prix applied", entry["msg"])
	}
	if entry["logger"] != "store" {
		t.Errorf("expected logger name store, got %v", entry["logger"])
	}
	if entry["prix_id"] != "p1" {
		t.Errorf("expected prix_id p1, got %v", entry["prix_id"])
	}
	if origins, _ := entry["origins"].([]any); len(origins) != 2 || origins[1] != "https://b.example" {
		t.Errorf("expected both origins as a list, got %v", entry["origins"])
	}
	source, _ := entry["source"].(string)
	if !strings.Contains(source, "logger_test.go:") {
		t.Errorf("expected source to point at the caller, got %q", source)
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf), WithLevel("warn")); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = Init() }()

	ctx := context.Background()
	Get().Info(ctx, "hidden")
	Get().Debug(ctx, "hidden")
	Get().Warn(ctx, "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info and debug should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn should be logged: %q", out)
	}

	if err := setLevel("debug"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Get().Debug(ctx, "now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("debug should be logged after lowering the level")
	}
}

func TestLoggerNamed(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	namedLogger := Named("test")
	if namedLogger == nil {
		t.Fatal("named logger is nil")
	}
	namedLogger.Info(context.Background(), "test message")
}
