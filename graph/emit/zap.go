package emit

import (
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log level names accepted by NewZapLogger.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// ZapEmitter implements Emitter by writing structured zap log entries.
//
// The level is derived from the event:
//   - events carrying Meta["error"] log at Error
//   - "interrupt_conflict" logs at Warn
//   - stale no-ops ("*_noop") log at Debug
//   - everything else logs at Info
type ZapEmitter struct {
	logger *zap.Logger
}

// NewZapEmitter wraps logger. A nil logger discards everything.
func NewZapEmitter(logger *zap.Logger) *ZapEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapEmitter{logger: logger}
}

// Emit logs the event with its IDs and meta entries as fields.
func (z *ZapEmitter) Emit(event Event) {
	fields := make([]zap.Field, 0, 3+len(event.Meta))
	fields = append(fields, zap.String("execution_id", event.ExecutionID))
	if event.NodeID != "" {
		fields = append(fields, zap.String("node_id", event.NodeID))
	}
	if event.InterruptID != "" {
		fields = append(fields, zap.String("interrupt_id", event.InterruptID))
	}

	// Stable field order keeps log lines diffable.
	keys := make([]string, 0, len(event.Meta))
	for k := range event.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, event.Meta[k]))
	}

	if ce := z.logger.Check(levelFor(event), event.Msg); ce != nil {
		ce.Write(fields...)
	}
}

// Sync flushes buffered log entries.
func (z *ZapEmitter) Sync() error {
	return z.logger.Sync()
}

func levelFor(event Event) zapcore.Level {
	switch {
	case event.IsError():
		return zapcore.ErrorLevel
	case event.Msg == "interrupt_conflict":
		return zapcore.WarnLevel
	case strings.HasSuffix(event.Msg, "_noop"):
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel maps a level name to a zap level. Unknown names map to Info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:        "ts",
	LevelKey:       "lvl",
	NameKey:        "name",
	CallerKey:      "caller",
	MessageKey:     "message",
	StacktraceKey:  "stacktrace",
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.CapitalLevelEncoder,
	EncodeTime:     zapcore.RFC3339TimeEncoder,
	EncodeDuration: zapcore.SecondsDurationEncoder,
	EncodeCaller:   zapcore.ShortCallerEncoder,
}

// NewZapLogger builds a logger writing to w (nil means os.Stdout) at the
// given level, with a JSON or console encoder.
func NewZapLogger(w io.Writer, level string, jsonEncoding bool) *zap.Logger {
	if w == nil {
		w = os.Stdout
	}
	enc := zapcore.NewConsoleEncoder(encoderConfig)
	if jsonEncoding {
		enc = zapcore.NewJSONEncoder(encoderConfig)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(ParseLevel(level)))
	return zap.New(core)
}
