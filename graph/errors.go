// Package graph provides the interrupt control plane for pipeline executions.
//
// An Engine registers control-plane requests (ABORT_ALL, EXPIRE_ALL,
// PAUSE_ALL, RESUME_ALL and the single-node corrections) against a running
// execution tree, rejects conflicting ones, and dispatches each accepted
// interrupt to the handler for its type. Node status changes are always
// compare-and-set, so an interrupt racing a node's own completion never
// overwrites a terminal status.
package graph

import (
	"errors"
	"fmt"

	"github.com/dshills/interruptgraph-go/graph/model"
)

// ErrConflict is matched by every *ConflictError.
var ErrConflict = errors.New("interrupt conflict")

// ErrUnsupportedOperation is returned when a handler is asked for a scope it
// does not serve, such as a plan-scoped PAUSE_ALL passed to HandleInterrupt.
var ErrUnsupportedOperation = errors.New("unsupported operation")

// ErrUnknownInterruptType is returned for types outside the closed set.
var ErrUnknownInterruptType = errors.New("unknown interrupt type")

// ErrNodeScopeRequired is returned when a node-only type has no NodeID.
var ErrNodeScopeRequired = errors.New("interrupt type requires a node id")

// ErrNotDiscontinuing is returned by Discontinue for a node that was not
// asked to stop.
var ErrNotDiscontinuing = errors.New("node is not discontinuing")

// ConflictError reports a candidate interrupt rejected by the registrar.
// Conflicts are never retried.
type ConflictError struct {
	Type        model.InterruptType
	ExecutionID string
	NodeID      string
	Reason      string
}

func (e *ConflictError) Error() string {
	return "interrupt conflict: " + e.Reason
}

// Is makes errors.Is(err, ErrConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// EngineError represents an error from the engine with a code.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

func unsupported(t model.InterruptType, reason string) error {
	return fmt.Errorf("%s: %s: %w", t, reason, ErrUnsupportedOperation)
}

// forNode renders the optional " for node N" suffix of conflict reasons.
func forNode(nodeID string) string {
	if nodeID == "" {
		return ""
	}
	return " for node " + nodeID
}
