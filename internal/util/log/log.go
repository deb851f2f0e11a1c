// Package log provides the structured, leveled logger used throughout
// XyPriss. The call shape (Pairs as a map of structured fields passed
// alongside a message) keeps call sites uniform; zap is the concrete
// backend.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Pairs is a set of structured logging fields.
type Pairs map[string]interface{}

var (
	mtx    sync.RWMutex
	logger *zap.SugaredLogger
	level  = zap.NewAtomicLevelAt(zap.InfoLevel)

	onceWarnings   = map[string]bool{}
	onceWarningsMu sync.Mutex
)

func init() {
	logger = newLogger("", level)
}

func newLogger(logFile string, lvl zap.AtomicLevel) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var core zapcore.Core
	if logFile == "" {
		core = zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.Lock(zapcore.AddSync(stdout())), lvl)
	} else {
		w, err := openLogFile(logFile)
		if err != nil {
			core = zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.Lock(zapcore.AddSync(stdout())), lvl)
		} else {
			core = zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(w), lvl)
		}
	}
	return zap.New(core).Sugar()
}

// Configure installs a new base logger given a log file path (empty for
// stdout) and a minimum level name (debug|info|warn|error).
func Configure(logFile, levelName string) {
	mtx.Lock()
	defer mtx.Unlock()
	level.SetLevel(parseLevel(levelName))
	logger = newLogger(logFile, level)
}

func parseLevel(name string) zapcore.Level {
	switch name {
	case "debug", "trace":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func current() *zap.SugaredLogger {
	mtx.RLock()
	defer mtx.RUnlock()
	return logger
}

func fields(p Pairs) []interface{} {
	out := make([]interface{}, 0, len(p)*2)
	for k, v := range p {
		out = append(out, k, v)
	}
	return out
}

// Debug logs at debug level.
func Debug(msg string, p Pairs) { current().Debugw(msg, fields(p)...) }

// Info logs at info level.
func Info(msg string, p Pairs) { current().Infow(msg, fields(p)...) }

// Warn logs at warn level.
func Warn(msg string, p Pairs) { current().Warnw(msg, fields(p)...) }

// Error logs at error level.
func Error(msg string, p Pairs) { current().Errorw(msg, fields(p)...) }

// WarnOnce logs a warning identified by key exactly once per process
// lifetime.
func WarnOnce(key, msg string, p Pairs) {
	onceWarningsMu.Lock()
	defer onceWarningsMu.Unlock()
	if onceWarnings[key] {
		return
	}
	onceWarnings[key] = true
	Warn(msg, p)
}

// Fatal logs at fatal level and terminates the process.
func Fatal(msg string, p Pairs) { current().Fatalw(msg, fields(p)...) }
