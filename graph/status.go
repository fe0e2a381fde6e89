package graph

import (
	"context"
	"fmt"

	"github.com/dshills/interruptgraph-go/graph/emit"
	"github.com/dshills/interruptgraph-go/graph/model"
)

// UpdateStatusWithSideEffects moves nodeID to `to` if its current status is in
// expected. It is the only path by which handlers and workers change a single
// node.
//
// On success it emits node_status_updated, counts the transition and, when
// `to` is terminal, signals nodeID on the notifier so waits fanning up the
// tree observe it. A node leaving a terminal status (RETRY) has its signal
// purged. A miss emits node_status_noop and returns applied=false with a nil
// error: the node moved on first and the request is stale.
//
// interruptID is recorded on the emitted event and may be empty.
func (e *Engine) UpdateStatusWithSideEffects(ctx context.Context, nodeID string, expected []model.Status, to model.Status, interruptID string) (model.ExecutionNode, bool, error) {
	var (
		node    model.ExecutionNode
		applied bool
	)
	err := e.withRetry(ctx, func() error {
		var err error
		node, applied, err = e.nodes.CompareAndSetStatus(ctx, nodeID, expected, to)
		return err
	})
	if err != nil {
		return node, false, fmt.Errorf("failed to move node %s to %s: %w", nodeID, to, err)
	}
	e.metrics.RecordTransition(string(to), applied)

	if !applied {
		e.emitter.Emit(emit.Event{
			ExecutionID: node.PlanExecutionID,
			NodeID:      nodeID,
			InterruptID: interruptID,
			Msg:         "node_status_noop",
			Meta: map[string]interface{}{
				"to":     string(to),
				"status": string(node.Status),
			},
		})
		return node, false, nil
	}

	e.emitter.Emit(emit.Event{
		ExecutionID: node.PlanExecutionID,
		NodeID:      nodeID,
		InterruptID: interruptID,
		Msg:         "node_status_updated",
		Meta: map[string]interface{}{
			"to":      string(to),
			"version": node.Version,
		},
	})

	if to.IsTerminal() {
		e.notifier.DoneWith(ctx, nodeID, to)
		e.observePending()
	} else if e.notifier.IsDone(nodeID) {
		e.notifier.Purge(nodeID)
	}
	return node, true, nil
}
