package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapEmitter_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	emitter := NewZapEmitter(zap.New(core))

	emitter.Emit(Event{ExecutionID: "exec-1", InterruptID: "int-1", Msg: "interrupt_registered", Meta: map[string]interface{}{"type": "PAUSE_ALL"}})
	emitter.Emit(Event{ExecutionID: "exec-1", Msg: "interrupt_conflict", Meta: map[string]interface{}{"reason": "already has"}})
	emitter.Emit(Event{ExecutionID: "exec-1", NodeID: "n1", Msg: "node_status_noop"})
	emitter.Emit(Event{ExecutionID: "exec-1", Msg: "bulk_discontinue_failed", Meta: map[string]interface{}{"error": "boom"}})

	entries := logs.AllUntimed()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	want := []zapcore.Level{zapcore.InfoLevel, zapcore.WarnLevel, zapcore.DebugLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != want[i] {
			t.Errorf("entry %d (%s): level = %v, want %v", i, e.Message, e.Level, want[i])
		}
	}

	fields := entries[0].ContextMap()
	if fields["execution_id"] != "exec-1" || fields["interrupt_id"] != "int-1" || fields["type"] != "PAUSE_ALL" {
		t.Errorf("fields = %v", fields)
	}
	if _, ok := fields["node_id"]; ok {
		t.Error("empty node_id should be omitted")
	}
}

func TestZapEmitter_LevelFiltering(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	emitter := NewZapEmitter(zap.New(core))

	emitter.Emit(Event{ExecutionID: "exec-1", Msg: "node_status_noop"})
	if logs.Len() != 0 {
		t.Errorf("debug event logged at info level: %d entries", logs.Len())
	}
}

func TestZapEmitter_NilLogger(t *testing.T) {
	emitter := NewZapEmitter(nil)
	emitter.Emit(Event{ExecutionID: "exec-1", Msg: "interrupt_registered"})
	_ = emitter.Sync()
}

func TestNewZapLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZapLogger(&buf, "warn", true)
	emitter := NewZapEmitter(logger)

	emitter.Emit(Event{ExecutionID: "exec-1", Msg: "interrupt_registered"})
	emitter.Emit(Event{ExecutionID: "exec-1", Msg: "interrupt_conflict"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line at warn level, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry["message"] != "interrupt_conflict" || entry["lvl"] != "WARN" {
		t.Errorf("entry = %v", entry)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"unknown": zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
