package emit

// Event is an observability record produced by the interrupt engine.
//
// Events describe control-plane activity:
//   - Interrupt registration, conflicts and dispatch
//   - Node status transitions and stale no-ops
//   - Bulk discontinue results
//   - Completion of waits (resume, subtree conclusion)
type Event struct {
	// ExecutionID identifies the plan execution the event belongs to.
	ExecutionID string

	// NodeID identifies the execution node, if any.
	// Empty for plan-scoped events.
	NodeID string

	// InterruptID identifies the interrupt being processed, if any.
	InterruptID string

	// Msg is a short machine-friendly name, e.g. "interrupt_registered".
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "type": interrupt type
	//   - "state": interrupt state after the event
	//   - "from", "to": node or plan status transition
	//   - "affected": rows touched by a bulk update
	//   - "reason": conflict reason
	//   - "error": error details
	Meta map[string]interface{}
}

// IsError reports whether the event carries an "error" entry.
func (e Event) IsError() bool {
	_, ok := e.Meta["error"]
	return ok
}
