package graph

import (
	"context"

	"github.com/dshills/interruptgraph-go/graph/emit"
	"github.com/dshills/interruptgraph-go/graph/model"
)

// pauseHandler suspends nodes. A plan-scoped PAUSE_ALL is not handled here:
// Engine.Interrupt moves the plan to PAUSING and each node applies the pause
// to itself at its next Checkpoint.
type pauseHandler struct {
	e *Engine
}

func (h *pauseHandler) HandleInterrupt(ctx context.Context, in model.Interrupt) (model.Interrupt, error) {
	if in.PlanScoped() {
		return in, unsupported(in.Type, "not required for overall Plan")
	}
	if err := h.HandleInterruptForNodeExecution(ctx, in, in.NodeID); err != nil {
		return in, err
	}
	return h.e.interrupts.GetInterrupt(ctx, in.ID)
}

// HandleInterruptForNodeExecution pauses nodeID if it is pausable and parks
// it on a wait keyed by the pause interrupt. The interrupt stays PROCESSING
// until a RESUME_ALL consumes it.
func (h *pauseHandler) HandleInterruptForNodeExecution(ctx context.Context, in model.Interrupt, nodeID string) error {
	if in.State == model.StateRegistered {
		var err error
		if in, err = h.e.transition(ctx, in, model.StateRegistered, model.StateProcessing); err != nil {
			return err
		}
	}

	node, applied, err := h.e.UpdateStatusWithSideEffects(ctx, nodeID, model.PausableStatuses, model.StatusPaused, in.ID)
	if err != nil || !applied {
		return err
	}

	pauseID := in.ID
	_, err = h.e.notifier.WaitForAllOn(ctx, []string{pauseID}, func(ctx context.Context, results map[string]any) {
		h.e.resumeNode(ctx, node, pauseID, results[pauseID])
	}, pauseID)
	if err != nil {
		return err
	}
	h.e.observePending()
	h.e.emitter.Emit(emit.Event{
		ExecutionID: node.PlanExecutionID,
		NodeID:      nodeID,
		InterruptID: pauseID,
		Msg:         "node_suspended",
	})
	return nil
}

// resumeNode is the callback of a pause wait.
func (e *Engine) resumeNode(ctx context.Context, node model.ExecutionNode, pauseID string, resumeID any) {
	e.observePending()
	e.emitter.Emit(emit.Event{
		ExecutionID: node.PlanExecutionID,
		NodeID:      node.ID,
		InterruptID: pauseID,
		Msg:         "pause_wait_released",
		Meta:        map[string]interface{}{"resume_id": resumeID},
	})
	id, _ := resumeID.(string)
	if _, _, err := e.UpdateStatusWithSideEffects(ctx, node.ID, model.ResumableStatuses, model.StatusRunning, id); err != nil {
		e.emitter.Emit(emit.Event{
			ExecutionID: node.PlanExecutionID,
			NodeID:      node.ID,
			InterruptID: pauseID,
			Msg:         "node_resume_failed",
			Meta:        map[string]interface{}{"error": err.Error()},
		})
	}
}

// resumeHandler moves PAUSED nodes back to RUNNING. The node is read first
// and no write is issued unless it is PAUSED.
type resumeHandler struct {
	e *Engine
}

func (h *resumeHandler) HandleInterrupt(ctx context.Context, in model.Interrupt) (model.Interrupt, error) {
	if in.PlanScoped() {
		return in, unsupported(in.Type, "not required for overall Plan")
	}
	if err := h.HandleInterruptForNodeExecution(ctx, in, in.NodeID); err != nil {
		return in, err
	}
	return h.e.interrupts.GetInterrupt(ctx, in.ID)
}

func (h *resumeHandler) HandleInterruptForNodeExecution(ctx context.Context, in model.Interrupt, nodeID string) error {
	in, err := h.e.transition(ctx, in, model.StateRegistered, model.StateProcessing)
	if err != nil {
		return err
	}

	node, err := h.e.nodes.GetNode(ctx, nodeID)
	if err != nil {
		_, _ = h.e.finish(ctx, in, model.StateProcessedUnsuccessfully)
		return err
	}

	if node.Status != model.StatusPaused {
		h.e.emitter.Emit(emit.Event{
			ExecutionID: node.PlanExecutionID,
			NodeID:      nodeID,
			InterruptID: in.ID,
			Msg:         "node_status_noop",
			Meta: map[string]interface{}{
				"to":     string(model.StatusRunning),
				"status": string(node.Status),
			},
		})
	} else if _, _, err := h.e.UpdateStatusWithSideEffects(ctx, nodeID, model.ResumableStatuses, model.StatusRunning, in.ID); err != nil {
		_, _ = h.e.finish(ctx, in, model.StateProcessedUnsuccessfully)
		return err
	}

	_, err = h.e.finish(ctx, in, model.StateProcessedSuccessfully)
	return err
}
