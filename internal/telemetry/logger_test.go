package telemetry

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_WritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefault(&buf, "collector")
	l.Info("crash_received", map[string]any{"crash_id": "abc"})

	var ev Event
	if err := json.Unmarshal(buf.Bytes(), &ev); err != nil {
		t.Fatalf("log line is not valid JSON: %v (%q)", err, buf.String())
	}
	if ev.Msg != "crash_received" || ev.Service != "collector" || ev.Level != LevelInfo {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if len(ev.Fields) != 1 || ev.Fields[0].K != "crash_id" || ev.Fields[0].V != "abc" {
		t.Fatalf("unexpected fields: %+v", ev.Fields)
	}
}

func TestLogger_LevelGating(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Options{Service: "collector", Level: LevelWarn})
	l.Debug("should not appear", nil)
	l.Info("also should not appear", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected no output below configured level, got %q", buf.String())
	}
	l.Warn("this should appear", nil)
	if !strings.Contains(buf.String(), "this should appear") {
		t.Fatalf("expected warn line to be written, got %q", buf.String())
	}
}

func TestLogger_TruncatesOversizeMessage(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefault(&buf, "collector")
	long := strings.Repeat("a", MaxMessageLen+100)
	l.Info(long, nil)

	var ev Event
	_ = json.Unmarshal(buf.Bytes(), &ev)
	if len(ev.Msg) != MaxMessageLen {
		t.Fatalf("expected message truncated to %d, got %d", MaxMessageLen, len(ev.Msg))
	}
}

func TestNop_DiscardsOutput(t *testing.T) {
	Nop.Info("anything", map[string]any{"k": "v"})
}
