// Package temporal bridges the process logger into the Temporal SDK.
package temporal

import (
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

// zapLogger exposes a zap logger through Temporal's keyval interface.
// The sugared logger already knows how to pair loose keyvals.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewLogger wraps logger for client.Options.Logger. The extra
// CallerSkip keeps call sites pointing at SDK code instead of this
// adapter.
func NewLogger(logger *zap.Logger) log.Logger {
	return &zapLogger{s: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *zapLogger) Debug(msg string, keyvals ...interface{}) { l.s.Debugw(msg, keyvals...) }
func (l *zapLogger) Info(msg string, keyvals ...interface{})  { l.s.Infow(msg, keyvals...) }
func (l *zapLogger) Warn(msg string, keyvals ...interface{})  { l.s.Warnw(msg, keyvals...) }
func (l *zapLogger) Error(msg string, keyvals ...interface{}) { l.s.Errorw(msg, keyvals...) }

// With satisfies Temporal's optional enrichment interface.
func (l *zapLogger) With(keyvals ...interface{}) log.Logger {
	return &zapLogger{s: l.s.With(keyvals...)}
}
