package plan

import (
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/memory"
)

// Logger wraps zap.Logger with plan events.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a new Logger. If logger is nil, uses a no-op logger.
func NewLogger(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("plan")}
}

func planFields(p *memory.Plan) []zap.Field {
	return []zap.Field{
		zap.String("summary", p.Summary),
		zap.Int("current_stage", p.CurrentStage),
		zap.Int("total_stages", p.TotalStages),
	}
}

// Announced logs a stage 0 plan.
func (l *Logger) Announced(p *memory.Plan) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Info("plan announced", planFields(p)...)
}

// Advanced logs a stage commit that leaves components remaining.
func (l *Logger) Advanced(p *memory.Plan, drawn string) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Info("plan advanced", append(planFields(p), zap.String("drawn", drawn))...)
}

func (l *Logger) Completed(p *memory.Plan) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Info("plan completed", planFields(p)...)
}

func (l *Logger) Aborted(p *memory.Plan, reason error) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Warn("plan aborted", append(planFields(p), zap.Error(reason))...)
}
