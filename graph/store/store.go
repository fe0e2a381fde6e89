package store

import (
	"context"
	"errors"

	"github.com/dshills/interruptgraph-go/graph/model"
)

// ErrNotFound is returned when a requested node, interrupt or plan does not exist.
var ErrNotFound = errors.New("not found")

// ErrPlanFinished is returned by UpdatePlanStatus when the plan already has a
// terminal status. The returned plan carries that status unchanged.
var ErrPlanFinished = errors.New("plan execution already finished")

// ErrDuplicate is returned when saving a record whose ID already exists.
var ErrDuplicate = errors.New("duplicate id")

// NodeStore persists the execution tree.
//
// Every status mutation is either a compare-and-set on the current status or
// an atomic predicate-scoped bulk update. There is no blind overwrite.
type NodeStore interface {
	// SaveNode inserts a new node. The node's Leaf flag is computed by the
	// store, and the parent (if any) is marked as no longer a leaf in the
	// same write.
	SaveNode(ctx context.Context, node model.ExecutionNode) error

	// GetNode returns ErrNotFound for unknown IDs.
	GetNode(ctx context.Context, nodeID string) (model.ExecutionNode, error)

	// ListNodes returns every node of an execution in insertion order.
	ListNodes(ctx context.Context, executionID string) ([]model.ExecutionNode, error)

	// BulkMarkDiscontinuing moves every node of executionID that is a leaf or
	// QUEUED, and whose status is in eligible, to DISCONTINUING. When scope is
	// non-nil only nodes whose ID is in scope are considered.
	//
	// The update is a single atomic statement: the status predicate is
	// evaluated and written together, so a node that reached a terminal status
	// first is never touched. Returns the number of nodes updated.
	BulkMarkDiscontinuing(ctx context.Context, executionID string, eligible []model.Status, scope []string) (int64, error)

	// CompareAndSetStatus moves nodeID to newStatus only if its current status
	// is in expected, bumping Version. A miss returns the current node with
	// applied=false and a nil error. Unknown IDs return ErrNotFound.
	CompareAndSetStatus(ctx context.Context, nodeID string, expected []model.Status, newStatus model.Status) (node model.ExecutionNode, applied bool, err error)
}

// InterruptStore persists interrupt records. Records are never deleted.
type InterruptStore interface {
	// SaveInterrupt inserts a new record. Returns ErrDuplicate if the ID exists.
	SaveInterrupt(ctx context.Context, interrupt model.Interrupt) (model.Interrupt, error)

	// GetInterrupt returns ErrNotFound for unknown IDs.
	GetInterrupt(ctx context.Context, id string) (model.Interrupt, error)

	// FetchActive returns REGISTERED and PROCESSING interrupts of an
	// execution, oldest first.
	FetchActive(ctx context.Context, executionID string) ([]model.Interrupt, error)

	// FetchAll returns every interrupt of an execution, oldest first.
	FetchAll(ctx context.Context, executionID string) ([]model.Interrupt, error)

	// UpdateInterruptState moves id to state `to` only if its current state is
	// in from. A miss returns the current record with applied=false.
	UpdateInterruptState(ctx context.Context, id string, from []model.InterruptState, to model.InterruptState) (interrupt model.Interrupt, applied bool, err error)

	// MarkProcessed moves an active interrupt to a PROCESSED_* state. Already
	// processed records are returned unchanged.
	MarkProcessed(ctx context.Context, id string, terminal model.InterruptState) (model.Interrupt, error)
}

// PlanStore persists plan executions.
type PlanStore interface {
	SavePlan(ctx context.Context, plan model.PlanExecution) error
	GetPlan(ctx context.Context, executionID string) (model.PlanExecution, error)

	// UpdatePlanStatus never leaves a terminal status: in that case the
	// current plan is returned together with ErrPlanFinished.
	UpdatePlanStatus(ctx context.Context, executionID string, status model.PlanStatus) (model.PlanExecution, error)
}

// Backend is a store implementing all three record families.
type Backend interface {
	NodeStore
	InterruptStore
	PlanStore
	Close() error
}

// markProcessed is shared by the backends' MarkProcessed implementations.
func markProcessed(ctx context.Context, s InterruptStore, id string, terminal model.InterruptState) (model.Interrupt, error) {
	if !terminal.Final() {
		return model.Interrupt{}, errors.New("MarkProcessed requires a PROCESSED_* state, got " + string(terminal))
	}
	in, _, err := s.UpdateInterruptState(ctx, id, model.ActiveStates, terminal)
	return in, err
}
