package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/interruptgraph-go/graph/emit"
	"github.com/dshills/interruptgraph-go/graph/model"
	"github.com/dshills/interruptgraph-go/graph/notify"
	"github.com/dshills/interruptgraph-go/graph/store"
)

// Stores bundles the three record families the engine consumes.
type Stores struct {
	Nodes      store.NodeStore
	Interrupts store.InterruptStore
	Plans      store.PlanStore
}

// StoresFrom uses one backend for every record family.
func StoresFrom(b store.Backend) Stores {
	return Stores{Nodes: b, Interrupts: b, Plans: b}
}

// Engine is the interrupt control plane for any number of executions.
//
// The Engine:
//   - Registers interrupts, rejecting candidates that conflict with an active one
//   - Dispatches accepted interrupts to the handler for their type
//   - Moves node statuses only by compare-and-set or predicate-scoped bulk update
//   - Suspends paused nodes on the notifier and resumes them on RESUME_ALL
//   - Concludes discontinued subtrees bottom-up and finishes the interrupt
//   - Emits an event for every decision through the configured emitter
//
// Registration is serialized per execution; everything else runs concurrently.
//
// Example:
//
//	backend := store.NewMemStore()
//	engine, err := graph.New(graph.StoresFrom(backend))
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	in, err := engine.Interrupt(ctx, model.Interrupt{
//	    Type:        model.AbortAll,
//	    ExecutionID: "exec-1",
//	})
type Engine struct {
	nodes      store.NodeStore
	interrupts store.InterruptStore
	plans      store.PlanStore

	emitter  emit.Emitter
	metrics  *PrometheusMetrics
	notifier *notify.Notifier
	now      func() time.Time
	newID    func() string
	retry    *RetryPolicy

	// locks serializes registration per execution ID.
	locks keyedMutex

	ownsNotifier bool
	closers      []io.Closer
}

// New creates an Engine over stores.
func New(stores Stores, opts ...Option) (*Engine, error) {
	if stores.Nodes == nil || stores.Interrupts == nil || stores.Plans == nil {
		return nil, &EngineError{Message: "node, interrupt and plan stores are required", Code: "MISSING_STORE"}
	}

	cfg := engineConfig{}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	e := &Engine{
		nodes:      stores.Nodes,
		interrupts: stores.Interrupts,
		plans:      stores.Plans,
		emitter:    cfg.emitter,
		metrics:    cfg.metrics,
		notifier:   cfg.notifier,
		now:        cfg.now,
		newID:      cfg.newID,
		retry:      cfg.retry,
	}
	if e.emitter == nil {
		e.emitter = emit.NewNullEmitter()
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	if e.notifier == nil {
		n, err := notify.New()
		if err != nil {
			return nil, err
		}
		e.notifier = n
		e.ownsNotifier = true
	}
	return e, nil
}

// Notifier exposes the wait/signal engine so callers can register their own
// waits on node IDs.
func (e *Engine) Notifier() *notify.Notifier {
	return e.notifier
}

// Close releases the notifier if the engine created it, then any resources
// handed over by NewFromConfig.
func (e *Engine) Close() error {
	var errs []error
	if e.ownsNotifier {
		errs = append(errs, e.notifier.Close())
	}
	for _, c := range e.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Interrupt registers candidate and dispatches it.
//
// Plan-scoped PAUSE_ALL moves the plan to PAUSING and leaves the interrupt
// PROCESSING; nodes pause at their next Checkpoint, and the plan is PAUSED
// as soon as no leaf is working. Plan-scoped RESUME_ALL moves the plan back
// to RUNNING; paused nodes are resumed by the release of their waits during
// registration. Both plan updates happen before registration lets go of the
// execution. ABORT_ALL and EXPIRE_ALL go to HandleInterrupt; node-scoped
// interrupts go to HandleInterruptForNodeExecution.
//
// The returned record reflects the state after dispatch.
func (e *Engine) Interrupt(ctx context.Context, candidate model.Interrupt) (model.Interrupt, error) {
	var onSaved func(context.Context, model.Interrupt) (model.Interrupt, error)
	if candidate.PlanScoped() {
		switch candidate.Type {
		case model.PauseAll:
			onSaved = e.pausePlan
		case model.ResumeAll:
			onSaved = e.resumePlan
		}
	}

	in, err := e.register(ctx, candidate, onSaved)
	if err != nil || onSaved != nil {
		return in, err
	}

	if in.Type.PlanEnding() {
		return e.HandleInterrupt(ctx, in)
	}
	if err := e.HandleInterruptForNodeExecution(ctx, in, in.NodeID); err != nil {
		return in, err
	}
	return e.interrupts.GetInterrupt(ctx, in.ID)
}

// pausePlan runs under the execution lock.
func (e *Engine) pausePlan(ctx context.Context, in model.Interrupt) (model.Interrupt, error) {
	in, err := e.transition(ctx, in, model.StateRegistered, model.StateProcessing)
	if err != nil {
		return in, err
	}
	e.setPlanStatus(ctx, in, model.PlanPausing)
	e.settlePlanPauseLocked(ctx, in)
	return in, nil
}

// resumePlan runs under the execution lock, after the pause was consumed.
func (e *Engine) resumePlan(ctx context.Context, in model.Interrupt) (model.Interrupt, error) {
	e.setPlanStatus(ctx, in, model.PlanRunning)
	return e.finish(ctx, in, model.StateProcessedSuccessfully)
}

// ActiveInterrupts returns the REGISTERED and PROCESSING interrupts of an
// execution, oldest first.
func (e *Engine) ActiveInterrupts(ctx context.Context, executionID string) ([]model.Interrupt, error) {
	return e.interrupts.FetchActive(ctx, executionID)
}

// History returns every interrupt ever registered for an execution.
func (e *Engine) History(ctx context.Context, executionID string) ([]model.Interrupt, error) {
	return e.interrupts.FetchAll(ctx, executionID)
}

// transition moves an interrupt between states. A miss is not an error: the
// current record is returned.
func (e *Engine) transition(ctx context.Context, in model.Interrupt, from, to model.InterruptState) (model.Interrupt, error) {
	updated, applied, err := e.interrupts.UpdateInterruptState(ctx, in.ID, []model.InterruptState{from}, to)
	if err != nil {
		return in, fmt.Errorf("failed to move interrupt %s to %s: %w", in.ID, to, err)
	}
	if applied {
		e.emitInterrupt(updated, "interrupt_dispatched", nil)
	}
	return updated, nil
}

// finish marks an active interrupt PROCESSED_* and reports it. An interrupt
// that is already processed is returned unchanged and reported nowhere.
func (e *Engine) finish(ctx context.Context, in model.Interrupt, state model.InterruptState) (model.Interrupt, error) {
	updated, applied, err := e.interrupts.UpdateInterruptState(ctx, in.ID, model.ActiveStates, state)
	if err != nil {
		return in, fmt.Errorf("failed to mark interrupt %s %s: %w", in.ID, state, err)
	}
	if !applied {
		return updated, nil
	}
	e.metrics.RecordProcessed(string(updated.Type), string(state))
	e.emitInterrupt(updated, "interrupt_processed", nil)
	// Waiters registered so far are released; later ones read the record.
	e.notifier.DoneWith(ctx, processedKey(updated.ID), updated)
	e.notifier.Purge(processedKey(updated.ID))
	return updated, nil
}

// setPlanStatus updates the plan of a plan-scoped interrupt. A finished plan
// is left alone. Ending the plan releases its retained signals.
func (e *Engine) setPlanStatus(ctx context.Context, in model.Interrupt, status model.PlanStatus) {
	plan, err := e.plans.UpdatePlanStatus(ctx, in.ExecutionID, status)
	switch {
	case errors.Is(err, store.ErrPlanFinished):
		e.emitInterrupt(in, "plan_status_noop", map[string]interface{}{
			"to":     string(status),
			"status": string(plan.Status),
		})
	case err != nil:
		e.emitInterrupt(in, "plan_status_failed", map[string]interface{}{
			"to":    string(status),
			"error": err.Error(),
		})
	default:
		e.emitInterrupt(in, "plan_status_updated", map[string]interface{}{
			"to": string(plan.Status),
		})
		if plan.Status.IsTerminal() {
			if err := e.ReleaseExecution(ctx, in.ExecutionID); err != nil {
				e.emitInterrupt(in, "release_failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

func (e *Engine) emitInterrupt(in model.Interrupt, msg string, meta map[string]interface{}) {
	if meta == nil {
		meta = make(map[string]interface{}, 2)
	}
	meta["type"] = string(in.Type)
	if _, ok := meta["state"]; !ok {
		meta["state"] = string(in.State)
	}
	e.emitter.Emit(emit.Event{
		ExecutionID: in.ExecutionID,
		NodeID:      in.NodeID,
		InterruptID: in.ID,
		Msg:         msg,
		Meta:        meta,
	})
}

func (e *Engine) observePending() {
	e.metrics.SetPendingWaits(e.notifier.Pending())
}
