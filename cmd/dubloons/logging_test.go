package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", false)
	logger.Debug("hidden")
	logger.Info("shown", "driver", "sqlite")

	line := strings.TrimSpace(buf.String())
	if strings.Contains(line, "hidden") {
		t.Fatal("debug record logged at info level")
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("not json: %v: %q", err, line)
	}
	if rec["driver"] != "sqlite" {
		t.Fatalf("unexpected record %v", rec)
	}

	if !newLogger(&buf, "text", true).Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug not enabled")
	}
}
