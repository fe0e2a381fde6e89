package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/interruptgraph-go/graph/emit"
	"github.com/dshills/interruptgraph-go/graph/model"
	"github.com/dshills/interruptgraph-go/graph/store"
)

const testExec = "exec"

// countingStore wraps a MemStore, counting node writes and optionally
// failing the bulk update.
type countingStore struct {
	*store.MemStore

	mu          sync.Mutex
	bulkCalls   int
	casCalls    int
	bulkErrs    []error // consumed one per bulk call
	bulkAffects *int64  // overrides the reported row count
}

func (c *countingStore) BulkMarkDiscontinuing(ctx context.Context, executionID string, eligible []model.Status, scope []string) (int64, error) {
	c.mu.Lock()
	c.bulkCalls++
	var err error
	if len(c.bulkErrs) > 0 {
		err, c.bulkErrs = c.bulkErrs[0], c.bulkErrs[1:]
	}
	override := c.bulkAffects
	c.mu.Unlock()

	if err != nil {
		return 0, err
	}
	affected, err := c.MemStore.BulkMarkDiscontinuing(ctx, executionID, eligible, scope)
	if override != nil {
		return *override, err
	}
	return affected, err
}

func (c *countingStore) CompareAndSetStatus(ctx context.Context, nodeID string, expected []model.Status, newStatus model.Status) (model.ExecutionNode, bool, error) {
	c.mu.Lock()
	c.casCalls++
	c.mu.Unlock()
	return c.MemStore.CompareAndSetStatus(ctx, nodeID, expected, newStatus)
}

func (c *countingStore) counts() (bulk, cas int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bulkCalls, c.casCalls
}

func (c *countingStore) resetCounts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bulkCalls, c.casCalls = 0, 0
}

type testEnv struct {
	engine  *Engine
	store   *countingStore
	emitter *emit.BufferedEmitter
}

// newTestEnv creates an engine over a fresh store holding one RUNNING plan.
func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	st := &countingStore{MemStore: store.NewMemStore()}
	emitter := emit.NewBufferedEmitter()

	var ids atomic.Int64
	base := []Option{
		WithEmitter(emitter),
		WithIDGenerator(func() string {
			return fmt.Sprintf("int-%02d", ids.Add(1))
		}),
		WithClock(func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }),
	}
	e, err := New(StoresFrom(st), append(base, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })

	if err := st.SavePlan(context.Background(), model.PlanExecution{ID: testExec, Status: model.PlanRunning}); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}
	return &testEnv{engine: e, store: st, emitter: emitter}
}

func (env *testEnv) addNode(t *testing.T, id, parent string, status model.Status) {
	t.Helper()
	node := model.ExecutionNode{ID: id, ParentID: parent, PlanExecutionID: testExec, Status: status}
	if err := env.store.SaveNode(context.Background(), node); err != nil {
		t.Fatalf("SaveNode(%s) failed: %v", id, err)
	}
}

// seedTree builds:
//
//	root (RUNNING)
//	├── a (RUNNING)
//	│   ├── a1 (RUNNING)
//	│   └── a2 (SUCCEEDED)
//	├── b (QUEUED)
//	└── c (FAILED)
func (env *testEnv) seedTree(t *testing.T) {
	t.Helper()
	env.addNode(t, "root", "", model.StatusRunning)
	env.addNode(t, "a", "root", model.StatusRunning)
	env.addNode(t, "a1", "a", model.StatusRunning)
	env.addNode(t, "a2", "a", model.StatusSucceeded)
	env.addNode(t, "b", "root", model.StatusQueued)
	env.addNode(t, "c", "root", model.StatusFailed)
}

func (env *testEnv) status(t *testing.T, nodeID string) model.Status {
	t.Helper()
	node, err := env.store.GetNode(context.Background(), nodeID)
	if err != nil {
		t.Fatalf("GetNode(%s) failed: %v", nodeID, err)
	}
	return node.Status
}

func (env *testEnv) planStatus(t *testing.T) model.PlanStatus {
	t.Helper()
	plan, err := env.store.GetPlan(context.Background(), testExec)
	if err != nil {
		t.Fatalf("GetPlan failed: %v", err)
	}
	return plan.Status
}

func (env *testEnv) interrupt(t *testing.T, id string) model.Interrupt {
	t.Helper()
	in, err := env.store.GetInterrupt(context.Background(), id)
	if err != nil {
		t.Fatalf("GetInterrupt(%s) failed: %v", id, err)
	}
	return in
}

func planInterrupt(t model.InterruptType) model.Interrupt {
	return model.Interrupt{Type: t, ExecutionID: testExec}
}

func nodeInterrupt(t model.InterruptType, nodeID string) model.Interrupt {
	return model.Interrupt{Type: t, ExecutionID: testExec, NodeID: nodeID}
}

func wantConflict(t *testing.T, err error, reason string) {
	t.Helper()
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConflictError, got %T", err)
	}
	if ce.Reason != reason {
		t.Errorf("Reason = %q, want %q", ce.Reason, reason)
	}
}

// eventually polls cond until it holds or a second has passed.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
