package graph

import (
	"context"
	"fmt"

	"github.com/dshills/interruptgraph-go/graph/emit"
	"github.com/dshills/interruptgraph-go/graph/model"
)

// RegisterInterrupt validates candidate against the active interrupts of its
// execution and persists it as REGISTERED.
//
// Rejections:
//   - unknown type: ErrUnknownInterruptType
//   - node-only type without NodeID: ErrNodeScopeRequired
//   - missing plan or node: store.ErrNotFound
//   - finished plan or a conflicting active interrupt: *ConflictError
//
// A RESUME_ALL consumes the PAUSE_ALL it matches: the pause is marked
// PROCESSED_SUCCESSFULLY and every node waiting on it is released.
//
// Registration is serialized per ExecutionID; different executions register
// concurrently.
func (e *Engine) RegisterInterrupt(ctx context.Context, candidate model.Interrupt) (model.Interrupt, error) {
	return e.register(ctx, candidate, nil)
}

// register is RegisterInterrupt with a hook that runs on the saved record
// while the execution is still locked. The hook's result is returned.
func (e *Engine) register(ctx context.Context, candidate model.Interrupt, onSaved func(context.Context, model.Interrupt) (model.Interrupt, error)) (model.Interrupt, error) {
	if !candidate.Type.Valid() {
		return model.Interrupt{}, fmt.Errorf("%w: %q", ErrUnknownInterruptType, candidate.Type)
	}
	if candidate.ExecutionID == "" {
		return model.Interrupt{}, &EngineError{Message: "interrupt has no execution id", Code: "MISSING_EXECUTION"}
	}
	if candidate.Type.NodeOnly() && candidate.NodeID == "" {
		return model.Interrupt{}, fmt.Errorf("%s: %w", candidate.Type, ErrNodeScopeRequired)
	}

	unlock := e.locks.Lock(candidate.ExecutionID)
	defer unlock()

	plan, err := e.plans.GetPlan(ctx, candidate.ExecutionID)
	if err != nil {
		return model.Interrupt{}, fmt.Errorf("failed to load plan execution %s: %w", candidate.ExecutionID, err)
	}
	if plan.Status.IsTerminal() {
		return model.Interrupt{}, e.reject(candidate, "Plan Execution is already finished")
	}

	if candidate.NodeID != "" {
		node, err := e.nodes.GetNode(ctx, candidate.NodeID)
		if err != nil {
			return model.Interrupt{}, fmt.Errorf("failed to load node %s: %w", candidate.NodeID, err)
		}
		if node.PlanExecutionID != candidate.ExecutionID {
			return model.Interrupt{}, &EngineError{
				Message: fmt.Sprintf("node %s belongs to execution %s, not %s", node.ID, node.PlanExecutionID, candidate.ExecutionID),
				Code:    "NODE_EXECUTION_MISMATCH",
			}
		}
	}

	active, err := e.interrupts.FetchActive(ctx, candidate.ExecutionID)
	if err != nil {
		return model.Interrupt{}, fmt.Errorf("failed to fetch active interrupts: %w", err)
	}
	pause, reason := conflictFor(candidate, active)
	if reason != "" {
		return model.Interrupt{}, e.reject(candidate, reason)
	}

	now := e.now()
	in := candidate
	if in.ID == "" {
		in.ID = e.newID()
	}
	in.State = model.StateRegistered
	in.CreatedAt = now
	in.UpdatedAt = now

	saved, err := e.interrupts.SaveInterrupt(ctx, in)
	if err != nil {
		return model.Interrupt{}, fmt.Errorf("failed to save interrupt: %w", err)
	}
	e.metrics.RecordRegistered(string(saved.Type))
	e.emitInterrupt(saved, "interrupt_registered", nil)

	if pause != nil {
		if err := e.consumePause(ctx, *pause, saved); err != nil {
			// The resume cannot act without its pause.
			_, _ = e.finish(ctx, saved, model.StateProcessedUnsuccessfully)
			return model.Interrupt{}, err
		}
	}
	if onSaved != nil {
		return onSaved(ctx, saved)
	}
	return saved, nil
}

// consumePause closes the PAUSE_ALL matched by a RESUME_ALL and releases
// every wait registered on it.
func (e *Engine) consumePause(ctx context.Context, pause, resume model.Interrupt) error {
	if _, err := e.finish(ctx, pause, model.StateProcessedSuccessfully); err != nil {
		return err
	}
	e.notifier.DoneWith(ctx, pause.ID, resume.ID)
	e.observePending()
	e.emitInterrupt(pause, "pause_released", map[string]interface{}{"resume_id": resume.ID})
	return nil
}

func (e *Engine) reject(candidate model.Interrupt, reason string) error {
	e.metrics.RecordConflict(string(candidate.Type))
	e.emitter.Emit(emit.Event{
		ExecutionID: candidate.ExecutionID,
		NodeID:      candidate.NodeID,
		InterruptID: candidate.ID,
		Msg:         "interrupt_conflict",
		Meta: map[string]interface{}{
			"type":   string(candidate.Type),
			"reason": reason,
		},
	})
	return &ConflictError{
		Type:        candidate.Type,
		ExecutionID: candidate.ExecutionID,
		NodeID:      candidate.NodeID,
		Reason:      reason,
	}
}

// conflictFor applies the registration rules of candidate's type to the
// active interrupts of its execution. It returns a non-empty reason when the
// candidate must be rejected, and for RESUME_ALL the PAUSE_ALL it consumes.
func conflictFor(candidate model.Interrupt, active []model.Interrupt) (*model.Interrupt, string) {
	if candidate.Type != model.ResumeAll {
		if a, ok := endingOverlap(candidate, active); ok {
			return nil, "Execution already has " + string(a.Type) + " interrupt" + forNode(a.NodeID)
		}
	}

	switch candidate.Type {
	case model.AbortAll, model.ExpireAll:
		return nil, ""

	case model.PauseAll:
		if a, ok := sameScope(candidate, active, model.PauseAll); ok {
			return nil, "Execution already has PAUSE_ALL interrupt" + forNode(a.NodeID)
		}
		return nil, ""

	case model.ResumeAll:
		pause, ok := sameScope(candidate, active, model.PauseAll)
		if !ok {
			return nil, "No PAUSE_ALL interrupt present" + forNode(candidate.NodeID)
		}
		if a, ok := sameScope(candidate, active, model.ResumeAll); ok {
			return nil, "Execution already has RESUME_ALL interrupt" + forNode(a.NodeID)
		}
		return &pause, ""
	}

	// Node-only corrections.
	if a, ok := sameScope(candidate, active, candidate.Type); ok {
		return nil, "Execution already has " + string(a.Type) + " interrupt" + forNode(a.NodeID)
	}
	return nil, ""
}

// endingOverlap finds an active ABORT_ALL or EXPIRE_ALL whose scope overlaps
// the candidate's: either one is plan-scoped, or both name the same node.
func endingOverlap(candidate model.Interrupt, active []model.Interrupt) (model.Interrupt, bool) {
	for _, a := range active {
		if !a.Type.PlanEnding() {
			continue
		}
		if a.PlanScoped() || candidate.PlanScoped() || a.NodeID == candidate.NodeID {
			return a, true
		}
	}
	return model.Interrupt{}, false
}

func sameScope(candidate model.Interrupt, active []model.Interrupt, t model.InterruptType) (model.Interrupt, bool) {
	for _, a := range active {
		if a.Type == t && a.SameScope(candidate) {
			return a, true
		}
	}
	return model.Interrupt{}, false
}

