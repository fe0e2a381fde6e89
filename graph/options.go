package graph

import (
	"errors"
	"time"

	"github.com/dshills/interruptgraph-go/graph/emit"
	"github.com/dshills/interruptgraph-go/graph/notify"
)

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	engine, err := graph.New(
//	    graph.StoresFrom(backend),
//	    graph.WithEmitter(emit.NewLogEmitter(os.Stdout, true)),
//	    graph.WithMetrics(graph.NewPrometheusMetrics(prometheus.DefaultRegisterer)),
//	)
type Option func(*engineConfig) error

// engineConfig is an internal struct used to collect options before applying them to an Engine.
type engineConfig struct {
	emitter  emit.Emitter
	metrics  *PrometheusMetrics
	notifier *notify.Notifier
	now      func() time.Time
	newID    func() string
	retry    *RetryPolicy
}

// WithEmitter routes engine events to e. Default: emit.NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *engineConfig) error {
		if e == nil {
			return errors.New("emitter cannot be nil")
		}
		cfg.emitter = e
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	engine, _ := graph.New(stores, graph.WithMetrics(metrics))
func WithMetrics(m *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = m
		return nil
	}
}

// WithNotifier shares a Notifier between engines, or supplies one built with
// a callback pool. The engine does not close a notifier it did not create.
func WithNotifier(n *notify.Notifier) Option {
	return func(cfg *engineConfig) error {
		if n == nil {
			return errors.New("notifier cannot be nil")
		}
		cfg.notifier = n
		return nil
	}
}

// WithClock overrides the timestamp source for interrupt records.
func WithClock(now func() time.Time) Option {
	return func(cfg *engineConfig) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.now = now
		return nil
	}
}

// WithIDGenerator overrides how IDs are assigned to interrupts registered
// without one. Default: uuid.NewString.
func WithIDGenerator(newID func() string) Option {
	return func(cfg *engineConfig) error {
		if newID == nil {
			return errors.New("id generator cannot be nil")
		}
		cfg.newID = newID
		return nil
	}
}
