package runner

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kvit-s/kvit-patch/internal/patch"
)

// Logger provides structured logging for patch runs.
type Logger struct {
	zap *zap.Logger
}

// NewLogger creates a Logger that appends JSON lines to logPath.
// If logPath is empty, logging is disabled.
// If development is true, debug events are kept and the encoder uses the development config.
func NewLogger(logPath string, development bool) (*Logger, error) {
	if logPath == "" {
		return &Logger{zap: zap.NewNop()}, nil
	}

	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	level := zapcore.InfoLevel
	if development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(logFile),
		level,
	)

	return &Logger{zap: zap.New(core)}, nil
}

// newLoggerWithCore is used by tests to observe events.
func newLoggerWithCore(core zapcore.Core) *Logger {
	return &Logger{zap: zap.New(core)}
}

// Close syncs the logger (should be called on shutdown).
func (l *Logger) Close() error {
	return l.zap.Sync()
}

// WithRun returns a logger that tags every event with the run id.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{zap: l.zap.With(zap.String("run_id", runID))}
}

// PatchApplied logs a successful apply (or a dry run that would have succeeded).
func (l *Logger) PatchApplied(path string, res *patch.Result, bytesBefore, bytesAfter int, written bool, duration time.Duration) {
	l.zap.Info("patch applied",
		zap.String("path", path),
		zap.Int("hunks_applied", len(res.Applied)),
		zap.Int("hunks_skipped", len(res.Skipped)),
		zap.Int("bytes_before", bytesBefore),
		zap.Int("bytes_after", bytesAfter),
		zap.Bool("newline_removed", res.NewlineRemoved),
		zap.Bool("written", written),
		zap.Duration("duration", duration),
	)
}

// HunkSkipped logs a hunk left out under the best-effort policy.
func (l *Logger) HunkSkipped(path string, skipped patch.Skipped) {
	fields := []zap.Field{
		zap.String("path", path),
		zap.Int("hunk", skipped.Index+1),
	}
	if skipped.Err != nil {
		fields = append(fields,
			zap.String("kind", skipped.Err.Kind.String()),
			zap.Int("line", skipped.Err.Line),
			zap.String("reason", skipped.Err.Msg),
		)
	}
	l.zap.Warn("hunk skipped", fields...)
}

// PatchFailed logs a rejected diff with its classification.
func (l *Logger) PatchFailed(path string, err error, duration time.Duration) {
	fields := []zap.Field{
		zap.String("path", path),
		zap.Duration("duration", duration),
		zap.Bool("retryable", patch.IsRetryable(err)),
		zap.Error(err),
	}
	if pe, ok := patch.AsError(err); ok {
		fields = append(fields, zap.String("kind", pe.Kind.String()))
		if pe.Hunk >= 0 {
			fields = append(fields, zap.Int("hunk", pe.Hunk+1))
		}
	}
	l.zap.Error("patch failed", fields...)
}

// WriteDeclined logs a run whose write the user refused at the prompt.
func (l *Logger) WriteDeclined(path string) {
	l.zap.Info("write declined", zap.String("path", path))
}

// Error logs an error.
func (l *Logger) Error(msg string, err error) {
	l.zap.Error(msg, zap.Error(err))
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, fields...)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, fields...)
}
