package memory

import "go.uber.org/zap"

// Logger wraps zap.Logger with ledger events.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a new Logger. If logger is nil, uses a no-op logger.
func NewLogger(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("memory")}
}

// StrokesAdded logs an ingestion.
func (l *Logger) StrokesAdded(stored, rejected, clamped int, state string) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Debug("strokes added",
		zap.Int("stored", stored),
		zap.Int("rejected", rejected),
		zap.Int("clamped_values", clamped),
		zap.String("state", state),
	)
}

// StrokeRejected logs a malformed stroke.
func (l *Logger) StrokeRejected(index, points int) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Warn("stroke rejected", zap.Int("index", index), zap.Int("points", points))
}

func (l *Logger) PreviewConfirmed(n int) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Info("preview confirmed", zap.Int("strokes", n))
}

func (l *Logger) PreviewRejected(n int) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Info("preview rejected", zap.Int("strokes", n))
}

func (l *Logger) StrokesUndone(n int) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Info("strokes undone", zap.Int("strokes", n))
}
