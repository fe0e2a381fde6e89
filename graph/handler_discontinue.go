package graph

import (
	"context"
	"fmt"

	"github.com/dshills/interruptgraph-go/graph/emit"
	"github.com/dshills/interruptgraph-go/graph/model"
)

// discontinueHandler serves ABORT_ALL and EXPIRE_ALL.
//
// The handler issues exactly one bulk update that moves every finalizable
// leaf (and every QUEUED node) in scope to DISCONTINUING. Workers observe
// DISCONTINUING at their next Checkpoint and call Engine.Discontinue. Interior
// nodes are concluded by the completion fan-in once all their children are
// terminal, and the interrupt finishes when the scope roots have concluded.
type discontinueHandler struct {
	e   *Engine
	typ model.InterruptType
}

// HandleInterrupt discontinues the whole execution, or the subtree of
// in.NodeID when the interrupt is node-scoped.
func (h *discontinueHandler) HandleInterrupt(ctx context.Context, in model.Interrupt) (model.Interrupt, error) {
	return h.discontinue(ctx, in, in.NodeID)
}

// HandleInterruptForNodeExecution discontinues the subtree of nodeID.
func (h *discontinueHandler) HandleInterruptForNodeExecution(ctx context.Context, in model.Interrupt, nodeID string) error {
	if nodeID == "" {
		return fmt.Errorf("%s: %w", h.typ, ErrNodeScopeRequired)
	}
	_, err := h.discontinue(ctx, in, nodeID)
	return err
}

func (h *discontinueHandler) discontinue(ctx context.Context, in model.Interrupt, rootID string) (model.Interrupt, error) {
	e := h.e
	in, err := e.transition(ctx, in, model.StateRegistered, model.StateProcessing)
	if err != nil {
		return in, err
	}

	affected, err := h.bulk(ctx, in, rootID)
	if err == nil && affected < 0 {
		err = fmt.Errorf("bulk update reported %d rows", affected)
	}
	if err != nil {
		// Persistence failures end the interrupt; they are not surfaced.
		e.emitInterrupt(in, "bulk_discontinue_failed", map[string]interface{}{"error": err.Error()})
		return e.finish(ctx, in, model.StateProcessedUnsuccessfully)
	}

	e.metrics.RecordDiscontinued(string(h.typ), affected)
	e.emitInterrupt(in, "bulk_discontinued", map[string]interface{}{"affected": affected})

	nodes, err := e.nodes.ListNodes(ctx, in.ExecutionID)
	if err != nil {
		e.emitInterrupt(in, "fan_in_failed", map[string]interface{}{"error": err.Error()})
		return e.finish(ctx, in, model.StateProcessedUnsuccessfully)
	}
	scope := scopeOf(nodes, rootID)

	// Interior nodes are never bulk-updated, so a scope can hold open
	// parents even when no row was affected.
	if !anyOpen(nodes, scope) {
		if rootID == "" {
			e.setPlanStatus(ctx, in, h.typ.DiscontinuedPlanStatus())
			e.supersede(ctx, in)
		}
		return e.finish(ctx, in, model.StateProcessedSuccessfully)
	}

	if rootID == "" {
		e.setPlanStatus(ctx, in, model.PlanDiscontinuing)
	}
	if err := h.fanIn(ctx, in, nodes, scope, rootID); err != nil {
		e.emitInterrupt(in, "fan_in_failed", map[string]interface{}{"error": err.Error()})
	}
	// The fan-in may already have finished the interrupt.
	if current, err := e.interrupts.GetInterrupt(ctx, in.ID); err == nil {
		return current, nil
	}
	return in, nil
}

// scopeOf returns the IDs covered by a discontinue rooted at rootID, every
// node when rootID is empty.
func scopeOf(nodes []model.ExecutionNode, rootID string) map[string]bool {
	inScope := make(map[string]bool, len(nodes))
	if rootID == "" {
		for _, n := range nodes {
			inScope[n.ID] = true
		}
		return inScope
	}
	for _, id := range model.Subtree(nodes, rootID) {
		inScope[id] = true
	}
	return inScope
}

func anyOpen(nodes []model.ExecutionNode, inScope map[string]bool) bool {
	for _, n := range nodes {
		if inScope[n.ID] && !n.Status.IsTerminal() {
			return true
		}
	}
	return false
}

// bulk issues the single predicate-scoped update for the scope.
func (h *discontinueHandler) bulk(ctx context.Context, in model.Interrupt, rootID string) (int64, error) {
	var scope []string
	if rootID != "" {
		nodes, err := h.e.nodes.ListNodes(ctx, in.ExecutionID)
		if err != nil {
			return 0, err
		}
		scope = model.Subtree(nodes, rootID)
		if scope == nil {
			scope = []string{}
		}
	}
	var affected int64
	err := h.e.withRetry(ctx, func() error {
		var err error
		affected, err = h.e.nodes.BulkMarkDiscontinuing(ctx, in.ExecutionID, model.FinalizableStatuses, scope)
		return err
	})
	return affected, err
}

// fanIn registers the completion waits for a discontinued scope. Each
// non-terminal parent waits on its non-terminal children and is concluded
// when they are all terminal; a parent with none left concludes at once. A
// final wait on the scope roots finishes the interrupt.
func (h *discontinueHandler) fanIn(ctx context.Context, in model.Interrupt, nodes []model.ExecutionNode, inScope map[string]bool, rootID string) error {
	e := h.e
	children := model.Children(nodes)
	var roots []string
	for _, n := range nodes {
		if !inScope[n.ID] {
			continue
		}
		if n.ID == rootID || (rootID == "" && n.Root()) {
			if !n.Status.IsTerminal() {
				roots = append(roots, n.ID)
			}
		}
		kids := children[n.ID]
		if len(kids) == 0 || n.Status.IsTerminal() {
			continue
		}
		var keys []string
		for _, c := range kids {
			if !c.Status.IsTerminal() {
				keys = append(keys, c.ID)
			}
		}
		parent := n
		_, err := e.notifier.WaitForAllOn(ctx, keys, func(ctx context.Context, _ map[string]any) {
			h.conclude(ctx, in, parent)
		}, in.ID)
		if err != nil {
			return err
		}
	}

	_, err := e.notifier.WaitForAllOn(ctx, roots, func(ctx context.Context, _ map[string]any) {
		h.complete(ctx, in, rootID)
	}, in.ID)
	e.observePending()
	return err
}

// conclude moves an interior node whose children are all terminal to the
// discontinued status. A node that already finished on its own is still
// signalled so its parent's wait can fire.
func (h *discontinueHandler) conclude(ctx context.Context, in model.Interrupt, node model.ExecutionNode) {
	e := h.e
	current, applied, err := e.UpdateStatusWithSideEffects(ctx, node.ID, model.FinalizableStatuses, h.typ.DiscontinuedStatus(), in.ID)
	if err != nil {
		e.emitter.Emit(emit.Event{
			ExecutionID: in.ExecutionID,
			NodeID:      node.ID,
			InterruptID: in.ID,
			Msg:         "node_conclude_failed",
			Meta:        map[string]interface{}{"error": err.Error()},
		})
		return
	}
	if !applied && current.Status.IsTerminal() {
		e.notifier.DoneWith(ctx, node.ID, current.Status)
	}
}

// complete finishes the interrupt once every scope root is terminal.
func (h *discontinueHandler) complete(ctx context.Context, in model.Interrupt, rootID string) {
	e := h.e
	if rootID == "" {
		e.setPlanStatus(ctx, in, h.typ.DiscontinuedPlanStatus())
		e.supersede(ctx, in)
	}
	if _, err := e.finish(ctx, in, model.StateProcessedSuccessfully); err != nil {
		e.emitInterrupt(in, "interrupt_finish_failed", map[string]interface{}{"error": err.Error()})
	}
	e.observePending()
}

// supersede closes the interrupts left active when a plan-scoped ABORT_ALL
// or EXPIRE_ALL ends the execution, and drops the pause waits they own.
func (e *Engine) supersede(ctx context.Context, ending model.Interrupt) {
	active, err := e.interrupts.FetchActive(ctx, ending.ExecutionID)
	if err != nil {
		e.emitInterrupt(ending, "supersede_failed", map[string]interface{}{"error": err.Error()})
		return
	}
	for _, a := range active {
		if a.ID == ending.ID {
			continue
		}
		if a.Type == model.PauseAll {
			e.notifier.CancelGroup(a.ID)
		}
		if _, err := e.finish(ctx, a, model.StateProcessedUnsuccessfully); err != nil {
			e.emitInterrupt(a, "supersede_failed", map[string]interface{}{"error": err.Error()})
		}
	}
	e.observePending()
}
