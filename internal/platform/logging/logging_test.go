package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewWithWriterWritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "homebook", "debug")
	logger.WithField("step", "migrate").Debug("running")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry %q: %v", buf.String(), err)
	}
	if entry["service"] != "homebook" {
		t.Fatalf("expected service field, got %v", entry["service"])
	}
	if entry["step"] != "migrate" {
		t.Fatalf("expected step field, got %v", entry["step"])
	}
	if entry["msg"] != "running" {
		t.Fatalf("expected message, got %v", entry["msg"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"", DefaultLevel},
		{"warn", logrus.WarnLevel},
		{" DEBUG ", logrus.DebugLevel},
		{"verbose", DefaultLevel},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("expected discard logger for nil")
	}
	logger := Discard()
	if OrDiscard(logger) != logger {
		t.Fatal("expected provided logger to be returned")
	}
}
