package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	sprintfLogging "github.com/core-tools/hsu-core/pkg/logging/sprintf"

	"github.com/mwonya/entrypoint/pkg/errors"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
	FormatPlain   = "plain"
)

// BackendOptions selects the sink behind a Logger
type BackendOptions struct {
	Level  string            `yaml:"level,omitempty"`
	Format string            `yaml:"format,omitempty"`
	Fields map[string]string `yaml:"-"` // static fields attached to every zap entry
}

// SyncFunc flushes buffered log entries
type SyncFunc func()

// NewBackend builds a Logger writing to w with the given options.
// The plain format delegates to the hsu-core sprintf logger, which owns its own output.
func NewBackend(options BackendOptions, w io.Writer) (Logger, SyncFunc, error) {
	level, err := ParseLevel(options.Level)
	if err != nil {
		return nil, nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	format := strings.ToLower(options.Format)
	switch format {
	case FormatConsole, FormatJSON, "":
		if format == "" {
			format = FormatConsole
		}
		zapLogger := createZapLogger(format, level, w)
		zapLogger = zapLogger.With(zapFields(options.Fields)...)
		sugar := zapLogger.Sugar()
		logger := NewLogger("", LogFuncs{
			Debugf: sugar.Debugf,
			Infof:  sugar.Infof,
			Warnf:  sugar.Warnf,
			Errorf: sugar.Errorf,
		})
		return logger, func() { _ = zapLogger.Sync() }, nil

	case FormatPlain:
		std := sprintfLogging.NewStdSprintfLogger()
		funcs := LevelFilter(level, LogFuncs{
			Debugf: std.Debugf,
			Infof:  std.Infof,
			Warnf:  std.Warnf,
			Errorf: std.Errorf,
		})
		return NewLogger(plainPrefix(options.Fields), funcs), func() {}, nil

	default:
		return nil, nil, errors.NewValidationError("unsupported log format: "+options.Format, nil).
			WithContext("supported_formats", "console, json, plain")
	}
}

func createZapLogger(format string, level int, w io.Writer) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	switch format {
	case FormatJSON:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), zapLevel(level))
	return zap.New(core)
}

func zapLevel(level int) zapcore.Level {
	switch level {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func zapFields(fields map[string]string) []zap.Field {
	keys := sortedKeys(fields)
	result := make([]zap.Field, 0, len(keys))
	for _, key := range keys {
		result = append(result, zap.String(key, fields[key]))
	}
	return result
}

// plainPrefix renders fields as "k: v , k: v , "
func plainPrefix(fields map[string]string) string {
	var b strings.Builder
	for _, key := range sortedKeys(fields) {
		fmt.Fprintf(&b, "%s: %s , ", key, fields[key])
	}
	return b.String()
}

func sortedKeys(fields map[string]string) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
