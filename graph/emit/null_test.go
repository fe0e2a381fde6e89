package emit

import "testing"

func TestNullEmitter(t *testing.T) {
	emitter := NewNullEmitter()
	if emitter == nil {
		t.Fatal("NewNullEmitter returned nil")
	}

	// Must not panic on any input, including nil meta.
	emitter.Emit(Event{})
	emitter.Emit(Event{ExecutionID: "exec-1", Msg: "interrupt_registered", Meta: map[string]interface{}{"error": "x"}})
}
