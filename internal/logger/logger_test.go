package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json", "warn")
	l.Info("dropped")
	l.Warn("kept", "field", "city")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["msg"] != "kept" || rec["field"] != "city" {
		t.Fatalf("record=%v", rec)
	}
}

func TestSetIgnoresNil(t *testing.T) {
	prev := L
	Set(nil)
	if L != prev {
		t.Fatalf("nil logger replaced L")
	}
}
