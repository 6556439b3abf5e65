package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestInitJSONDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := initTo(&buf, "api", "")
	logger.Info("hello", "k", "v")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected json log line, got %q: %v", buf.String(), err)
	}
	if rec["service"] != "api" || rec["k"] != "v" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestInitUnknownFormatWarns(t *testing.T) {
	var buf bytes.Buffer
	initTo(&buf, "worker", "yaml")
	if !strings.Contains(buf.String(), "unknown log format") {
		t.Fatalf("expected warning, got %q", buf.String())
	}
}

func TestInitText(t *testing.T) {
	var buf bytes.Buffer
	logger := initTo(&buf, "webhook", "TEXT")
	logger.Info("hello")
	if !strings.Contains(buf.String(), "service=webhook") {
		t.Fatalf("expected text output, got %q", buf.String())
	}
}
