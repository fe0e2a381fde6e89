package graph

import (
	"context"
	"fmt"

	"github.com/dshills/interruptgraph-go/graph/model"
)

// Handler processes one interrupt type.
type Handler interface {
	// HandleInterrupt processes a plan-scoped interrupt, or a node-scoped one
	// over the subtree of its NodeID where the type supports it. Types that
	// act only per node return ErrUnsupportedOperation for plan scope.
	HandleInterrupt(ctx context.Context, in model.Interrupt) (model.Interrupt, error)

	// HandleInterruptForNodeExecution applies the interrupt to nodeID.
	HandleInterruptForNodeExecution(ctx context.Context, in model.Interrupt, nodeID string) error
}

// HandlerFor returns the handler for t.
func (e *Engine) HandlerFor(t model.InterruptType) (Handler, error) {
	switch t {
	case model.AbortAll, model.ExpireAll:
		return &discontinueHandler{e: e, typ: t}, nil
	case model.PauseAll:
		return &pauseHandler{e: e}, nil
	case model.ResumeAll:
		return &resumeHandler{e: e}, nil
	case model.IgnoreFailed:
		return &nodeStatusHandler{e: e, typ: t, expected: model.BrokeStatuses, to: model.StatusIgnoreFailed}, nil
	case model.MarkExpired:
		return &nodeStatusHandler{e: e, typ: t, expected: model.FinalizableStatuses, to: model.StatusExpired}, nil
	case model.CustomFailure:
		return &nodeStatusHandler{e: e, typ: t, expected: model.FinalizableStatuses, to: model.StatusFailed}, nil
	case model.Retry:
		return &nodeStatusHandler{e: e, typ: t, expected: model.BrokeStatuses, to: model.StatusQueued}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownInterruptType, t)
}

// HandleInterrupt dispatches in to the handler for its type.
func (e *Engine) HandleInterrupt(ctx context.Context, in model.Interrupt) (model.Interrupt, error) {
	h, err := e.HandlerFor(in.Type)
	if err != nil {
		return in, err
	}
	return h.HandleInterrupt(ctx, in)
}

// HandleInterruptForNodeExecution dispatches in to the handler for its type,
// applied to nodeID.
func (e *Engine) HandleInterruptForNodeExecution(ctx context.Context, in model.Interrupt, nodeID string) error {
	h, err := e.HandlerFor(in.Type)
	if err != nil {
		return err
	}
	return h.HandleInterruptForNodeExecution(ctx, in, nodeID)
}
