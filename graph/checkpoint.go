package graph

import (
	"context"
	"fmt"
	"slices"

	"github.com/dshills/interruptgraph-go/graph/model"
)

// Decision tells a worker what to do at a checkpoint.
type Decision int

const (
	// DecisionProceed means no interrupt applies; continue with the next step.
	DecisionProceed Decision = iota
	// DecisionSuspend means the node is PAUSED. Stop and call Checkpoint
	// again later; the node is moved back to RUNNING on RESUME_ALL.
	DecisionSuspend
	// DecisionDiscontinue means the node must stop. If it is DISCONTINUING
	// the worker confirms with Engine.Discontinue.
	DecisionDiscontinue
)

func (d Decision) String() string {
	switch d {
	case DecisionProceed:
		return "proceed"
	case DecisionSuspend:
		return "suspend"
	case DecisionDiscontinue:
		return "discontinue"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

// Checkpoint is called by a node's worker before each step. It applies any
// active PAUSE_ALL whose scope covers the node (plan scope, the node itself or
// an ancestor) and reports what the worker should do.
//
// A node created after an ABORT_ALL or EXPIRE_ALL already ran its bulk update
// is moved to DISCONTINUING here.
func (e *Engine) Checkpoint(ctx context.Context, nodeID string) (Decision, error) {
	node, err := e.nodes.GetNode(ctx, nodeID)
	if err != nil {
		return DecisionProceed, fmt.Errorf("failed to load node %s: %w", nodeID, err)
	}
	switch {
	case node.Status == model.StatusDiscontinuing, node.Status.IsTerminal():
		return DecisionDiscontinue, nil
	case node.Status == model.StatusPaused:
		return DecisionSuspend, nil
	}

	covering, err := e.covering(ctx, node)
	if err != nil {
		return DecisionProceed, err
	}

	for _, in := range covering {
		if !in.Type.PlanEnding() {
			continue
		}
		updated, _, err := e.UpdateStatusWithSideEffects(ctx, nodeID, model.FinalizableStatuses, model.StatusDiscontinuing, in.ID)
		if err != nil {
			return DecisionProceed, err
		}
		return decisionFor(updated.Status), nil
	}

	for _, in := range covering {
		if in.Type != model.PauseAll {
			continue
		}
		if err := e.HandleInterruptForNodeExecution(ctx, in, nodeID); err != nil {
			return DecisionProceed, err
		}
		updated, err := e.nodes.GetNode(ctx, nodeID)
		if err != nil {
			return DecisionProceed, err
		}
		if updated.Status == model.StatusPaused && in.PlanScoped() {
			e.settlePlanPause(ctx, in)
		}
		return decisionFor(updated.Status), nil
	}
	return DecisionProceed, nil
}

func decisionFor(s model.Status) Decision {
	switch {
	case s == model.StatusPaused:
		return DecisionSuspend
	case s == model.StatusDiscontinuing, s.IsTerminal():
		return DecisionDiscontinue
	}
	return DecisionProceed
}

// Discontinue confirms that the worker of a DISCONTINUING node has stopped.
// The node becomes ABORTED or EXPIRED according to the plan-ending interrupt
// covering it, ABORTED when none is active any more.
func (e *Engine) Discontinue(ctx context.Context, nodeID string) (model.ExecutionNode, bool, error) {
	node, err := e.nodes.GetNode(ctx, nodeID)
	if err != nil {
		return node, false, fmt.Errorf("failed to load node %s: %w", nodeID, err)
	}
	if node.Status.IsTerminal() {
		return node, false, nil
	}
	if node.Status != model.StatusDiscontinuing {
		return node, false, fmt.Errorf("node %s is %s: %w", nodeID, node.Status, ErrNotDiscontinuing)
	}

	to, interruptID := model.StatusAborted, ""
	covering, err := e.covering(ctx, node)
	if err != nil {
		return node, false, err
	}
	for _, in := range covering {
		if in.Type.PlanEnding() {
			to, interruptID = in.Type.DiscontinuedStatus(), in.ID
			break
		}
	}
	return e.UpdateStatusWithSideEffects(ctx, nodeID, []model.Status{model.StatusDiscontinuing}, to, interruptID)
}

// Complete records a worker finishing its node with a terminal status. A node
// that is already terminal is left unchanged and applied is false.
func (e *Engine) Complete(ctx context.Context, nodeID string, status model.Status) (model.ExecutionNode, bool, error) {
	if !status.IsTerminal() {
		return model.ExecutionNode{}, false, &EngineError{
			Message: fmt.Sprintf("cannot complete node %s with non-terminal status %s", nodeID, status),
			Code:    "INVALID_STATUS",
		}
	}
	return e.UpdateStatusWithSideEffects(ctx, nodeID, model.FinalizableStatuses, status, "")
}

// covering returns the active interrupts of the node's execution whose scope
// includes the node, oldest first.
func (e *Engine) covering(ctx context.Context, node model.ExecutionNode) ([]model.Interrupt, error) {
	active, err := e.interrupts.FetchActive(ctx, node.PlanExecutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active interrupts: %w", err)
	}

	var ancestors []string
	loaded := false
	var out []model.Interrupt
	for _, in := range active {
		if in.PlanScoped() || in.NodeID == node.ID {
			out = append(out, in)
			continue
		}
		if !loaded {
			nodes, err := e.nodes.ListNodes(ctx, node.PlanExecutionID)
			if err != nil {
				return nil, fmt.Errorf("failed to list nodes: %w", err)
			}
			ancestors = model.Ancestors(nodes, node.ID)
			loaded = true
		}
		if slices.Contains(ancestors, in.NodeID) {
			out = append(out, in)
		}
	}
	return out, nil
}

// settlePlanPause moves a PAUSING plan to PAUSED once no leaf is still
// working.
func (e *Engine) settlePlanPause(ctx context.Context, pause model.Interrupt) {
	unlock := e.locks.Lock(pause.ExecutionID)
	defer unlock()
	e.settlePlanPauseLocked(ctx, pause)
}

// settlePlanPauseLocked is settlePlanPause for callers holding the execution
// lock.
func (e *Engine) settlePlanPauseLocked(ctx context.Context, pause model.Interrupt) {
	plan, err := e.plans.GetPlan(ctx, pause.ExecutionID)
	if err != nil || plan.Status != model.PlanPausing {
		return
	}
	nodes, err := e.nodes.ListNodes(ctx, pause.ExecutionID)
	if err != nil {
		return
	}
	working := []model.Status{model.StatusRunning, model.StatusAsyncWaiting, model.StatusPausing}
	for _, n := range nodes {
		if n.Leaf && n.Status.In(working) {
			return
		}
	}
	e.setPlanStatus(ctx, pause, model.PlanPaused)
}
