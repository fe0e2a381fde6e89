// Package emit delivers observability events from the interrupt engine to
// logs, traces and in-memory buffers.
package emit

// Emitter receives observability events from the interrupt engine.
//
// Implementations should be:
//   - Non-blocking: Emit is called on the interrupt path
//   - Thread-safe: handlers and wait callbacks emit concurrently
//   - Resilient: never panic, never return errors to the caller
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	Emit(event Event)
}

// MultiEmitter fans every event out to several emitters in order.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter combines emitters. Nil entries are skipped.
//
// Example:
//
//	emitter := emit.NewMultiEmitter(
//	    emit.NewZapEmitter(logger),
//	    emit.NewOTelEmitter(otel.Tracer("interruptgraph")),
//	)
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	m := &MultiEmitter{}
	for _, e := range emitters {
		if e != nil {
			m.emitters = append(m.emitters, e)
		}
	}
	return m
}

// Emit forwards event to every wrapped emitter.
func (m *MultiEmitter) Emit(event Event) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}
