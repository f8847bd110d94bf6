package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process logger used by the command layer. Components that
// log receive a *zap.Logger explicitly instead of reading this.
var Log = zap.NewNop()

// Init builds Log writing to stderr and, when logFile is set, appending
// to logFile as well.
func Init(debug bool, logFile string) error {
	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}

	if logFile != "" {
		f, err := openLogFile(logFile)
		if err != nil {
			return err
		}
		sinks = append(sinks, f)
	}

	Log = New(debug, sinks...)
	return nil
}

// New returns a logger teeing every entry to all sinks with the same
// "timestamp level message fields" line format.
func New(debug bool, sinks ...zapcore.WriteSyncer) *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := make([]zapcore.Core, 0, len(sinks))
	for _, sink := range sinks {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, level))
	}

	opts := []zap.Option{zap.ErrorOutput(zapcore.Lock(os.Stderr))}
	if debug {
		opts = append(opts, zap.AddCaller())
	}

	return zap.New(zapcore.NewTee(cores...), opts...)
}

func Sync() {
	_ = Log.Sync()
}

func openLogFile(path string) (zapcore.WriteSyncer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return zapcore.AddSync(f), nil
}
