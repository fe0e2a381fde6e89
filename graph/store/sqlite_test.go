package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dshills/interruptgraph-go/graph/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return st
}

// TestSQLiteStore_Persistence verifies records survive closing and reopening
// the database file.
func TestSQLiteStore_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	st, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	_ = st.SavePlan(ctx, model.PlanExecution{ID: "exec", Status: model.PlanRunning})
	_ = st.SaveNode(ctx, model.ExecutionNode{ID: "root", PlanExecutionID: "exec", Status: model.StatusRunning})
	_ = st.SaveNode(ctx, model.ExecutionNode{ID: "leaf", ParentID: "root", PlanExecutionID: "exec", Status: model.StatusRunning})
	if _, err := st.SaveInterrupt(ctx, model.Interrupt{
		ID: "int-1", Type: model.ExpireAll, ExecutionID: "exec", State: model.StateRegistered,
	}); err != nil {
		t.Fatalf("SaveInterrupt failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	root, err := reopened.GetNode(ctx, "root")
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if root.Leaf {
		t.Error("root should not be a leaf after reopen")
	}
	active, err := reopened.FetchActive(ctx, "exec")
	if err != nil {
		t.Fatalf("FetchActive failed: %v", err)
	}
	if len(active) != 1 || active[0].Type != model.ExpireAll {
		t.Errorf("FetchActive after reopen = %+v", active)
	}
}

// TestSQLiteStore_ChildBeforeParent verifies the leaf flag is correct when a
// child row is written before its parent.
func TestSQLiteStore_ChildBeforeParent(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLiteStore(t)
	defer st.Close()

	_ = st.SaveNode(ctx, model.ExecutionNode{ID: "child", ParentID: "parent", PlanExecutionID: "exec", Status: model.StatusQueued})
	_ = st.SaveNode(ctx, model.ExecutionNode{ID: "parent", PlanExecutionID: "exec", Status: model.StatusRunning})

	parent, err := st.GetNode(ctx, "parent")
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if parent.Leaf {
		t.Error("parent saved after its child must not be a leaf")
	}
}

// TestSQLiteStore_DoubleClose verifies Close is idempotent.
func TestSQLiteStore_DoubleClose(t *testing.T) {
	st := newTestSQLiteStore(t)
	if err := st.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := st.Ping(context.Background()); err == nil {
		t.Error("Ping on closed store should fail")
	}
}

func TestSQLiteStore_Timestamps(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLiteStore(t)
	defer st.Close()

	_ = st.SaveNode(ctx, model.ExecutionNode{ID: "n", PlanExecutionID: "exec", Status: model.StatusRunning})
	before, _ := st.GetNode(ctx, "n")
	if before.CreatedAt.IsZero() || before.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not set: %+v", before)
	}

	after, ok, err := st.CompareAndSetStatus(ctx, "n", []model.Status{model.StatusRunning}, model.StatusSucceeded)
	if err != nil || !ok {
		t.Fatalf("CompareAndSetStatus: ok=%v err=%v", ok, err)
	}
	if after.UpdatedAt.Before(before.UpdatedAt) {
		t.Errorf("UpdatedAt went backwards: %v -> %v", before.UpdatedAt, after.UpdatedAt)
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", before.CreatedAt, after.CreatedAt)
	}
}
