package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetup_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, "json", slog.LevelInfo)

	l.Info("member created", slog.String("id", "m1"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON log output, got error: %v\nraw output: %s", err, buf.String())
	}
	if entry["msg"] != "member created" {
		t.Errorf("msg = %q, want %q", entry["msg"], "member created")
	}
	if entry["id"] != "m1" {
		t.Errorf("id = %q, want %q", entry["id"], "m1")
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in JSON log output")
	}
}

func TestSetup_Text(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, "text", slog.LevelInfo)

	l.Warn("session expired", slog.String("account_id", "a1"))

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "account_id=a1") {
		t.Errorf("unexpected text output: %s", out)
	}
}

func TestSetup_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, "json", slog.LevelWarn)

	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %s", buf.String())
	}
	l.Error("kept")
	if buf.Len() == 0 {
		t.Error("error should pass at warn level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
