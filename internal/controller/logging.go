package controller

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/validator"
)

// Logger wraps zap.Logger with controller events.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a new Logger. If logger is nil, uses a no-op logger.
func NewLogger(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("controller")}
}

// InstructionReceived logs the start of an instruction.
func (l *Logger) InstructionReceived(ctx context.Context, sessionID, instructionID, instruction string) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, sessionID, instructionID)
	fields = append(fields, zap.Int("instruction_len", len(instruction)))
	l.logger.Info("instruction received", fields...)
}

// AttemptFailed logs a generation that produced no usable reply.
func (l *Logger) AttemptFailed(ctx context.Context, sessionID, instructionID string, stage, attempt int, err error) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, sessionID, instructionID)
	fields = append(fields, zap.Int("stage", stage), zap.Int("attempt", attempt), zap.Error(err))
	l.logger.Warn("generation failed", fields...)
}

// RepairRequested logs an invalid candidate sent back for repair.
func (l *Logger) RepairRequested(ctx context.Context, sessionID, instructionID string, stage, attempt int, result validator.Result) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, sessionID, instructionID)
	fields = append(fields, zap.Int("stage", stage), zap.Int("attempt", attempt))
	fields = append(fields, resultFields(result)...)
	l.logger.Info("repair requested", fields...)
}

// StageCommitted logs a committed stage.
func (l *Logger) StageCommitted(ctx context.Context, sessionID, instructionID string, r StageResult) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, sessionID, instructionID)
	fields = append(fields,
		zap.Int("stage", r.Index),
		zap.String("component", r.Component),
		zap.Int("attempts", r.Attempts),
		zap.Float64("score", r.Score),
		zap.Bool("fallback", r.Fallback),
		zap.Int("strokes", len(r.StrokeIDs)),
		zap.String("stroke_state", string(r.StrokeState)),
	)
	if r.Fallback && !r.Valid {
		l.logger.Warn("invalid fallback committed", fields...)
		return
	}
	l.logger.Info("stage committed", fields...)
}

// Answered logs a stage whose reply carried no geometry.
func (l *Logger) Answered(ctx context.Context, sessionID, instructionID, kind string) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, sessionID, instructionID)
	fields = append(fields, zap.String("kind", kind))
	l.logger.Info("reply without strokes", fields...)
}

// NoCandidate logs an instruction that ended without geometry.
func (l *Logger) NoCandidate(ctx context.Context, sessionID, instructionID string, err error) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, sessionID, instructionID)
	fields = append(fields, zap.Error(err))
	l.logger.Error("no candidate produced", fields...)
}

// Overrun logs a chain cut by max_chain.
func (l *Logger) Overrun(ctx context.Context, sessionID, instructionID string, err error) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, sessionID, instructionID)
	fields = append(fields, zap.Error(err))
	l.logger.Warn("plan chain overrun", fields...)
}

// ExecutionFailed logs chunks that failed to draw. Memory is kept.
func (l *Logger) ExecutionFailed(ctx context.Context, sessionID, instructionID string, failed int) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, sessionID, instructionID)
	fields = append(fields, zap.Int("failed_chunks", failed))
	l.logger.Error("execution incomplete, memory kept", fields...)
}

// Control logs stop and resume commands.
func (l *Logger) Control(ctx context.Context, sessionID, command string) {
	if l == nil || l.logger == nil {
		return
	}
	fields := l.baseFields(ctx, sessionID, "")
	fields = append(fields, zap.String("command", command))
	l.logger.Info("control command", fields...)
}

// Debug logs a low-priority message.
func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Debug(msg, append(fields, l.traceFields(ctx)...)...)
}

func resultFields(r validator.Result) []zap.Field {
	return []zap.Field{
		zap.Float64("score", r.Score),
		zap.Int("errors", r.ErrorCount()),
		zap.Int("warnings", r.WarningCount()),
	}
}

func (l *Logger) baseFields(ctx context.Context, sessionID, instructionID string) []zap.Field {
	fields := []zap.Field{zap.String("session_id", sessionID)}
	if instructionID != "" {
		fields = append(fields, zap.String("instruction_id", instructionID))
	}
	return append(fields, l.traceFields(ctx)...)
}

func (l *Logger) traceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}
