package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory.
//
// Events are grouped by execution ID and can be queried with a filter. It
// backs the engine's tests and is handy for inspecting what a single
// interrupt did.
//
// Warning: This emitter stores all events in memory. Call Clear for
// executions you no longer need.
//
// Example usage:
//
//	emitter := emit.NewBufferedEmitter()
//	engine, _ := graph.New(stores, graph.WithEmitter(emitter))
//
//	engine.Interrupt(ctx, model.Interrupt{Type: model.AbortAll, ExecutionID: "exec-1"})
//
//	noops := emitter.GetHistoryWithFilter("exec-1", emit.HistoryFilter{Msg: "node_status_noop"})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // executionID -> events
}

// HistoryFilter specifies criteria for filtering execution history.
//
// All fields are optional and combined with AND logic.
type HistoryFilter struct {
	NodeID      string // Filter by node ID (empty = no filter)
	InterruptID string // Filter by interrupt ID (empty = no filter)
	Msg         string // Filter by message (empty = no filter)
}

// NewBufferedEmitter creates a new BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.ExecutionID] = append(b.events[event.ExecutionID], event)
}

// GetHistory returns a copy of every event of an execution in emission
// order. Unknown executions yield an empty slice.
func (b *BufferedEmitter) GetHistory(executionID string) []Event {
	return b.GetHistoryWithFilter(executionID, HistoryFilter{})
}

// GetHistoryWithFilter returns the events of an execution matching filter.
func (b *BufferedEmitter) GetHistoryWithFilter(executionID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[executionID] {
		if filter.matches(event) {
			result = append(result, event)
		}
	}
	return result
}

// Count returns the number of events of an execution with the given Msg.
func (b *BufferedEmitter) Count(executionID, msg string) int {
	return len(b.GetHistoryWithFilter(executionID, HistoryFilter{Msg: msg}))
}

func (f HistoryFilter) matches(event Event) bool {
	if f.NodeID != "" && event.NodeID != f.NodeID {
		return false
	}
	if f.InterruptID != "" && event.InterruptID != f.InterruptID {
		return false
	}
	if f.Msg != "" && event.Msg != f.Msg {
		return false
	}
	return true
}

// Clear removes stored events for executionID, or for every execution when
// executionID is empty.
func (b *BufferedEmitter) Clear(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if executionID == "" {
		b.events = make(map[string][]Event)
	} else {
		delete(b.events, executionID)
	}
}
