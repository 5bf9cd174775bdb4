package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Info("answer recorded", "message_id", 42)

	out := buf.String()
	if !strings.Contains(out, "answer recorded") {
		t.Errorf("log output missing message, got %q", out)
	}
	if !strings.Contains(out, "message_id=42") {
		t.Errorf("log output missing attribute, got %q", out)
	}
}

func TestNewWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{JSON: true})

	logger.Info("search complete", "chunks", 3)

	out := buf.String()
	if !strings.Contains(out, `"msg":"search complete"`) {
		t.Errorf("JSON output missing msg field, got %q", out)
	}
	if !strings.Contains(out, `"chunks":3`) {
		t.Errorf("JSON output missing attribute, got %q", out)
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})

	logger.Debug("should be dropped")
	logger.Info("should be dropped too")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("below-level entries were not filtered, got %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn entry missing, got %q", out)
	}
}

func TestNewNop_DiscardsOutput(t *testing.T) {
	logger := NewNop()
	// Must not panic and must accept structured attributes.
	logger.Error("ignored", "error", "nothing")
}
