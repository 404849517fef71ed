package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_Format(t *testing.T) {
	var jsonBuf, textBuf bytes.Buffer

	New(&jsonBuf, "info", "json").Info("hello", "k", "v")
	New(&textBuf, "info", "text").Info("hello", "k", "v")

	if !strings.Contains(jsonBuf.String(), `"msg":"hello"`) {
		t.Errorf("json output = %s", jsonBuf.String())
	}
	if !strings.Contains(textBuf.String(), "msg=hello") {
		t.Errorf("text output = %s", textBuf.String())
	}
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer

	logger := New(&buf, "warn", "json")
	logger.Info("dropped")
	logger.Warn("kept")

	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Errorf("output = %s", buf.String())
	}
}
