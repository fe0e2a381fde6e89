package graph

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/dshills/interruptgraph-go/graph/emit"
	"github.com/dshills/interruptgraph-go/graph/notify"
	"github.com/dshills/interruptgraph-go/graph/store"
)

// Config is the file configuration of an engine.
//
// Example:
//
//	store:
//	  driver: sqlite
//	  dsn: /var/lib/interrupts.db
//	notify:
//	  workers: 8
//	metrics:
//	  enabled: true
//	  namespace: pipelines
//	log:
//	  format: zap
//	  level: debug
type Config struct {
	Store   store.Config  `yaml:"store"`
	Notify  NotifyConfig  `yaml:"notify"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// NotifyConfig sizes the notifier's callback pool. Zero runs callbacks on
// the signalling goroutine.
type NotifyConfig struct {
	Workers int `yaml:"workers"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// LogConfig selects the event emitter.
type LogConfig struct {
	// Format is "text" or "json" (LogEmitter), "zap" or "zap-json"
	// (ZapEmitter), or "none". Empty means "text".
	Format string `yaml:"format"`

	// Level filters zap output: debug, info, warn or error.
	Level string `yaml:"level"`
}

var logFormats = []string{"", "text", "json", "zap", "zap-json", "none"}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates YAML configuration. Unknown keys are
// rejected.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field values without opening anything.
func (c Config) Validate() error {
	switch strings.ToLower(c.Store.Driver) {
	case "", "memory":
	case "sqlite", "mysql":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Notify.Workers < 0 {
		return fmt.Errorf("notify.workers must not be negative, got %d", c.Notify.Workers)
	}
	format := strings.ToLower(c.Log.Format)
	known := false
	for _, f := range logFormats {
		if f == format {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown log.format %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", emit.LevelDebug, emit.LevelInfo, emit.LevelWarn, emit.LevelError:
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	return nil
}

// Emitter builds the emitter named by Log.Format, writing to w.
func (c Config) Emitter(w io.Writer) emit.Emitter {
	switch strings.ToLower(c.Log.Format) {
	case "json":
		return emit.NewLogEmitter(w, true)
	case "zap":
		return emit.NewZapEmitter(emit.NewZapLogger(w, c.Log.Level, false))
	case "zap-json":
		return emit.NewZapEmitter(emit.NewZapLogger(w, c.Log.Level, true))
	case "none":
		return emit.NewNullEmitter()
	default:
		return emit.NewLogEmitter(w, false)
	}
}

// NewFromConfig opens the configured store and builds an Engine over it.
// Events are written to logOut; metrics, when enabled, are registered on
// registry. Closing the engine closes the store. Extra options are applied
// after the configured ones.
func NewFromConfig(cfg Config, logOut io.Writer, registry prometheus.Registerer, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	emitter := cfg.Emitter(logOut)
	base := []Option{WithEmitter(emitter)}
	if cfg.Metrics.Enabled {
		base = append(base, WithMetrics(NewPrometheusMetricsWithNamespace(registry, cfg.Metrics.Namespace)))
	}

	var ownedNotifier *notify.Notifier
	if cfg.Notify.Workers > 0 {
		ownedNotifier, err = notify.New(notify.WithPool(cfg.Notify.Workers), notify.WithPanicHandler(func(r any) {
			emitter.Emit(emit.Event{Msg: "callback_panic", Meta: map[string]interface{}{"error": fmt.Sprint(r)}})
		}))
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
		base = append(base, WithNotifier(ownedNotifier))
	}

	e, err := New(StoresFrom(backend), append(base, opts...)...)
	if err != nil {
		if ownedNotifier != nil {
			_ = ownedNotifier.Close()
		}
		_ = backend.Close()
		return nil, err
	}
	if ownedNotifier != nil {
		e.closers = append(e.closers, ownedNotifier)
	}
	if z, ok := emitter.(*emit.ZapEmitter); ok {
		e.closers = append(e.closers, syncCloser{z})
	}
	e.closers = append(e.closers, backend)
	return e, nil
}

// syncCloser flushes a zap emitter on Close. Sync errors on terminals and
// pipes are not actionable.
type syncCloser struct {
	z *emit.ZapEmitter
}

func (s syncCloser) Close() error {
	_ = s.z.Sync()
	return nil
}
