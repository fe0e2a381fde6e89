package graph

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dshills/interruptgraph-go/graph/model"
)

func TestPrometheusMetrics_Engine(t *testing.T) {
	ctx := context.Background()
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	env := newTestEnv(t, WithMetrics(metrics))
	env.seedTree(t)

	abort, err := env.engine.Interrupt(ctx, planInterrupt(model.AbortAll))
	if err != nil {
		t.Fatalf("abort: %v", err)
	}
	_, _ = env.engine.Interrupt(ctx, planInterrupt(model.ExpireAll))

	if got := testutil.ToFloat64(metrics.registered.WithLabelValues("ABORT_ALL")); got != 1 {
		t.Errorf("registered = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.conflicts.WithLabelValues("EXPIRE_ALL")); got != 1 {
		t.Errorf("conflicts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.discontinue.WithLabelValues("ABORT_ALL")); got != 2 {
		t.Errorf("discontinued = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.pending); got != 3 {
		t.Errorf("pending waits = %v, want 3", got)
	}

	_, _, _ = env.engine.Discontinue(ctx, "a1")
	_, _, _ = env.engine.Discontinue(ctx, "b")
	_, _, _ = env.engine.Discontinue(ctx, "b")

	if got := testutil.ToFloat64(metrics.processed.WithLabelValues("ABORT_ALL", string(model.StateProcessedSuccessfully))); got != 1 {
		t.Errorf("processed = %v, want 1", got)
	}
	// a1, b, a and root.
	if got := testutil.ToFloat64(metrics.transitions.WithLabelValues("ABORTED", "applied")); got != 4 {
		t.Errorf("applied transitions = %v, want 4", got)
	}
	if got := testutil.ToFloat64(metrics.pending); got != 0 {
		t.Errorf("pending waits = %v, want 0", got)
	}
	if got := env.interrupt(t, abort.ID).State; got != model.StateProcessedSuccessfully {
		t.Errorf("abort = %s", got)
	}
}

func TestPrometheusMetrics_Disable(t *testing.T) {
	metrics := NewPrometheusMetricsWithNamespace(prometheus.NewRegistry(), "test")

	metrics.Disable()
	metrics.RecordRegistered("PAUSE_ALL")
	metrics.RecordTransition("PAUSED", true)
	if got := testutil.ToFloat64(metrics.registered.WithLabelValues("PAUSE_ALL")); got != 0 {
		t.Errorf("recorded while disabled: %v", got)
	}

	metrics.Enable()
	metrics.RecordRegistered("PAUSE_ALL")
	metrics.RecordDiscontinued("ABORT_ALL", -1)
	metrics.SetPendingWaits(5)
	if got := testutil.ToFloat64(metrics.registered.WithLabelValues("PAUSE_ALL")); got != 1 {
		t.Errorf("registered = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.discontinue.WithLabelValues("ABORT_ALL")); got != 0 {
		t.Errorf("negative row count recorded: %v", got)
	}

	metrics.Reset()
	if got := testutil.ToFloat64(metrics.pending); got != 0 {
		t.Errorf("pending after Reset = %v, want 0", got)
	}
}

func TestPrometheusMetrics_Nil(t *testing.T) {
	var metrics *PrometheusMetrics
	metrics.RecordRegistered("ABORT_ALL")
	metrics.RecordConflict("ABORT_ALL")
	metrics.RecordProcessed("ABORT_ALL", "PROCESSED_SUCCESSFULLY")
	metrics.RecordDiscontinued("ABORT_ALL", 3)
	metrics.RecordTransition("ABORTED", false)
	metrics.SetPendingWaits(1)
}

func TestPrometheusMetrics_Namespace(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetricsWithNamespace(registry, "pipelines")
	metrics.RecordConflict("RETRY")

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "pipelines_interrupt_conflicts_total" {
			found = true
		}
	}
	if !found {
		t.Error("pipelines_interrupt_conflicts_total not registered")
	}
}
