package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/interruptgraph-go/graph/model"
)

func processedKey(interruptID string) string {
	return "processed:" + interruptID
}

// AwaitInterrupt blocks until the interrupt reaches a PROCESSED_* state and
// returns the final record. A timeout of 0 waits until ctx is done.
//
// An ABORT_ALL that discontinued running nodes finishes only after their
// workers have confirmed, so callers that need the plan to be over wait here.
func (e *Engine) AwaitInterrupt(ctx context.Context, interruptID string, timeout time.Duration) (model.Interrupt, error) {
	in, err := e.interrupts.GetInterrupt(ctx, interruptID)
	if err != nil {
		return in, err
	}
	if in.State.Final() {
		return in, nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan model.Interrupt, 1)
	group := processedKey(interruptID) + "/" + e.newID()
	_, err = e.notifier.WaitForAllOn(ctx, []string{processedKey(interruptID)}, func(_ context.Context, results map[string]any) {
		final, _ := results[processedKey(interruptID)].(model.Interrupt)
		done <- final
	}, group)
	if err != nil {
		return in, err
	}
	e.observePending()

	// The signal is purged once it fires, so an interrupt processed before
	// the wait was registered shows up only in the record.
	if current, err := e.interrupts.GetInterrupt(ctx, interruptID); err == nil && current.State.Final() {
		e.notifier.CancelGroup(group)
		e.observePending()
		return current, nil
	}

	select {
	case final := <-done:
		return final, nil
	case <-ctx.Done():
		e.notifier.CancelGroup(group)
		e.observePending()
		if ctx.Err() == context.DeadlineExceeded && timeout > 0 {
			return in, &EngineError{
				Message: fmt.Sprintf("interrupt %s not processed within %v", interruptID, timeout),
				Code:    "AWAIT_TIMEOUT",
			}
		}
		return in, ctx.Err()
	}
}

// ReleaseExecution purges every signal the notifier retains for an
// execution: its node completions, its pause releases and its processed
// interrupts. The engine calls it when an ABORT_ALL or EXPIRE_ALL ends the
// plan. Callers that finish executions on their own call it once the plan
// is over; waits still pending on those keys are not affected.
func (e *Engine) ReleaseExecution(ctx context.Context, executionID string) error {
	nodes, err := e.nodes.ListNodes(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to list nodes: %w", err)
	}
	interrupts, err := e.interrupts.FetchAll(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to fetch interrupts: %w", err)
	}

	keys := make([]string, 0, len(nodes)+2*len(interrupts))
	for _, n := range nodes {
		keys = append(keys, n.ID)
	}
	for _, in := range interrupts {
		keys = append(keys, in.ID, processedKey(in.ID))
	}
	e.notifier.Purge(keys...)
	return nil
}
