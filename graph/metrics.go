package graph

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultMetricsNamespace prefixes every metric name.
const DefaultMetricsNamespace = "interruptgraph"

// PrometheusMetrics collects control-plane metrics.
//
// Metrics exposed (namespaced, "interruptgraph_" by default):
//
//  1. interrupts_registered_total (counter): accepted interrupts. Labels: type.
//  2. interrupt_conflicts_total (counter): rejected candidates. Labels: type.
//  3. interrupts_processed_total (counter): interrupts reaching a PROCESSED_*
//     state. Labels: type, state.
//  4. nodes_discontinued_total (counter): nodes moved to DISCONTINUING by bulk
//     updates. Labels: type.
//  5. node_transitions_total (counter): compare-and-set attempts made through
//     the status-update primitive. Labels: to, result (applied/noop).
//  6. pending_waits (gauge): waits registered with the notifier that have not
//     fired.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// A nil *PrometheusMetrics records nothing, so the engine calls it
// unconditionally.
type PrometheusMetrics struct {
	registered  *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	processed   *prometheus.CounterVec
	discontinue *prometheus.CounterVec
	transitions *prometheus.CounterVec
	pending     prometheus.Gauge

	registry prometheus.Registerer

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics registers the metrics under DefaultMetricsNamespace.
// A nil registry uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	return NewPrometheusMetricsWithNamespace(registry, DefaultMetricsNamespace)
}

// NewPrometheusMetricsWithNamespace is NewPrometheusMetrics with a custom
// namespace. Registering twice on one registry panics, as with promauto.
func NewPrometheusMetricsWithNamespace(registry prometheus.Registerer, namespace string) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultMetricsNamespace
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry: registry,
		enabled:  true,
	}

	pm.registered = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "interrupts_registered_total",
		Help:      "Interrupts accepted by the registrar",
	}, []string{"type"})

	pm.conflicts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "interrupt_conflicts_total",
		Help:      "Candidate interrupts rejected because of a conflicting active interrupt",
	}, []string{"type"})

	pm.processed = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "interrupts_processed_total",
		Help:      "Interrupts that reached a PROCESSED_* state",
	}, []string{"type", "state"})

	pm.discontinue = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "nodes_discontinued_total",
		Help:      "Nodes moved to DISCONTINUING by ABORT_ALL and EXPIRE_ALL bulk updates",
	}, []string{"type"})

	pm.transitions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "node_transitions_total",
		Help:      "Compare-and-set node status transitions by target status and outcome",
	}, []string{"to", "result"}) // result: applied, noop

	pm.pending = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_waits",
		Help:      "Notifier waits that have not fired yet",
	})

	return pm
}

func (pm *PrometheusMetrics) on() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordRegistered counts an accepted interrupt.
func (pm *PrometheusMetrics) RecordRegistered(interruptType string) {
	if !pm.on() {
		return
	}
	pm.registered.WithLabelValues(interruptType).Inc()
}

// RecordConflict counts a rejected candidate.
func (pm *PrometheusMetrics) RecordConflict(interruptType string) {
	if !pm.on() {
		return
	}
	pm.conflicts.WithLabelValues(interruptType).Inc()
}

// RecordProcessed counts an interrupt reaching state.
func (pm *PrometheusMetrics) RecordProcessed(interruptType, state string) {
	if !pm.on() {
		return
	}
	pm.processed.WithLabelValues(interruptType, state).Inc()
}

// RecordDiscontinued adds the row count of one bulk update.
func (pm *PrometheusMetrics) RecordDiscontinued(interruptType string, affected int64) {
	if !pm.on() || affected <= 0 {
		return
	}
	pm.discontinue.WithLabelValues(interruptType).Add(float64(affected))
}

// RecordTransition counts one compare-and-set attempt.
func (pm *PrometheusMetrics) RecordTransition(to string, applied bool) {
	if !pm.on() {
		return
	}
	result := "noop"
	if applied {
		result = "applied"
	}
	pm.transitions.WithLabelValues(to, result).Inc()
}

// SetPendingWaits sets the pending_waits gauge.
func (pm *PrometheusMetrics) SetPendingWaits(n int) {
	if !pm.on() {
		return
	}
	pm.pending.Set(float64(n))
}

// Disable temporarily disables metric recording (useful for testing).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable().
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Reset clears the gauge. Counters are cumulative and keep their values.
func (pm *PrometheusMetrics) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.pending.Set(0)
}
