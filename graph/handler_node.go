package graph

import (
	"context"

	"github.com/dshills/interruptgraph-go/graph/model"
)

// nodeStatusHandler serves the single-shot corrections: IGNORE_FAILED,
// MARK_EXPIRED, CUSTOM_FAILURE and RETRY. Each is one compare-and-set on one
// node.
type nodeStatusHandler struct {
	e        *Engine
	typ      model.InterruptType
	expected []model.Status
	to       model.Status
}

func (h *nodeStatusHandler) HandleInterrupt(_ context.Context, in model.Interrupt) (model.Interrupt, error) {
	return in, unsupported(h.typ, "not required for overall Plan")
}

func (h *nodeStatusHandler) HandleInterruptForNodeExecution(ctx context.Context, in model.Interrupt, nodeID string) error {
	in, err := h.e.transition(ctx, in, model.StateRegistered, model.StateProcessing)
	if err != nil {
		return err
	}

	_, applied, err := h.e.UpdateStatusWithSideEffects(ctx, nodeID, h.expected, h.to, in.ID)
	if err != nil {
		_, _ = h.e.finish(ctx, in, model.StateProcessedUnsuccessfully)
		return err
	}

	state := model.StateProcessedSuccessfully
	if !applied {
		state = model.StateProcessedUnsuccessfully
	}
	_, err = h.e.finish(ctx, in, state)
	return err
}
