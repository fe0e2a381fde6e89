package emit

import (
	"sync"
	"testing"
)

func TestBufferedEmitter_History(t *testing.T) {
	emitter := NewBufferedEmitter()

	emitter.Emit(Event{ExecutionID: "exec-1", InterruptID: "int-1", Msg: "interrupt_registered"})
	emitter.Emit(Event{ExecutionID: "exec-1", InterruptID: "int-1", NodeID: "n1", Msg: "node_status_updated"})
	emitter.Emit(Event{ExecutionID: "exec-1", InterruptID: "int-2", NodeID: "n2", Msg: "node_status_noop"})
	emitter.Emit(Event{ExecutionID: "exec-2", Msg: "interrupt_registered"})

	t.Run("all events in order", func(t *testing.T) {
		got := emitter.GetHistory("exec-1")
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		if got[0].Msg != "interrupt_registered" || got[2].Msg != "node_status_noop" {
			t.Errorf("unexpected order: %+v", got)
		}
	})

	t.Run("unknown execution", func(t *testing.T) {
		got := emitter.GetHistory("missing")
		if got == nil || len(got) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", got)
		}
	})

	t.Run("filters", func(t *testing.T) {
		tests := []struct {
			name   string
			filter HistoryFilter
			want   int
		}{
			{"by node", HistoryFilter{NodeID: "n1"}, 1},
			{"by interrupt", HistoryFilter{InterruptID: "int-1"}, 2},
			{"by msg", HistoryFilter{Msg: "node_status_noop"}, 1},
			{"combined", HistoryFilter{InterruptID: "int-1", Msg: "node_status_noop"}, 0},
			{"empty", HistoryFilter{}, 3},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := emitter.GetHistoryWithFilter("exec-1", tt.filter); len(got) != tt.want {
					t.Errorf("len = %d, want %d", len(got), tt.want)
				}
			})
		}
	})

	t.Run("count", func(t *testing.T) {
		if got := emitter.Count("exec-1", "interrupt_registered"); got != 1 {
			t.Errorf("Count = %d, want 1", got)
		}
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		got := emitter.GetHistory("exec-1")
		got[0].Msg = "mutated"
		if emitter.GetHistory("exec-1")[0].Msg != "interrupt_registered" {
			t.Error("history was modified through returned slice")
		}
	})
}

func TestBufferedEmitter_Clear(t *testing.T) {
	emitter := NewBufferedEmitter()
	emitter.Emit(Event{ExecutionID: "exec-1", Msg: "a"})
	emitter.Emit(Event{ExecutionID: "exec-2", Msg: "b"})

	emitter.Clear("exec-1")
	if len(emitter.GetHistory("exec-1")) != 0 {
		t.Error("exec-1 not cleared")
	}
	if len(emitter.GetHistory("exec-2")) != 1 {
		t.Error("exec-2 should be untouched")
	}

	emitter.Clear("")
	if len(emitter.GetHistory("exec-2")) != 0 {
		t.Error("Clear(\"\") should remove everything")
	}
}

func TestBufferedEmitter_Concurrent(t *testing.T) {
	emitter := NewBufferedEmitter()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			emitter.Emit(Event{ExecutionID: "exec-1", Msg: "node_status_updated"})
			_ = emitter.GetHistory("exec-1")
		}()
	}
	wg.Wait()

	if got := emitter.Count("exec-1", "node_status_updated"); got != 100 {
		t.Errorf("Count = %d, want 100", got)
	}
}
