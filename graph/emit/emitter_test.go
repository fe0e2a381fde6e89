package emit

import "testing"

// TestEmitter_Implementations verifies every emitter satisfies Emitter.
func TestEmitter_Implementations(t *testing.T) {
	var _ Emitter = (*NullEmitter)(nil)
	var _ Emitter = (*LogEmitter)(nil)
	var _ Emitter = (*BufferedEmitter)(nil)
	var _ Emitter = (*OTelEmitter)(nil)
	var _ Emitter = (*ZapEmitter)(nil)
	var _ Emitter = (*MultiEmitter)(nil)
}

func TestMultiEmitter(t *testing.T) {
	a := NewBufferedEmitter()
	b := NewBufferedEmitter()
	multi := NewMultiEmitter(a, nil, b)

	multi.Emit(Event{ExecutionID: "exec-1", Msg: "interrupt_registered"})
	multi.Emit(Event{ExecutionID: "exec-1", Msg: "interrupt_processed"})

	for name, buf := range map[string]*BufferedEmitter{"a": a, "b": b} {
		got := buf.GetHistory("exec-1")
		if len(got) != 2 {
			t.Fatalf("emitter %s received %d events, want 2", name, len(got))
		}
		if got[0].Msg != "interrupt_registered" || got[1].Msg != "interrupt_processed" {
			t.Errorf("emitter %s received events out of order: %+v", name, got)
		}
	}
}

func TestEvent_IsError(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  bool
	}{
		{"no meta", Event{Msg: "x"}, false},
		{"other meta", Event{Meta: map[string]interface{}{"type": "ABORT_ALL"}}, false},
		{"error meta", Event{Meta: map[string]interface{}{"error": "store unavailable"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.IsError(); got != tt.want {
				t.Errorf("IsError() = %v, want %v", got, tt.want)
			}
		})
	}
}
