// Package logging builds the process-wide zap logger for sketchd.
//
// The logger wraps zap with:
//   - a Trace level below Debug for per-point and per-chunk detail
//   - dual output (stdout and the OpenTelemetry log bridge)
//   - context field injection (trace_id, session.id, instruction.id)
//   - encoder-level redaction of provider API keys
//   - sampling below Error so a runaway repair loop cannot flood stdout
//
// Usage:
//
//	cfg, err := logging.ConfigFrom(appCfg.Logging)
//	logger, err := logging.NewLogger(cfg, nil)
//	defer logger.Sync()
//
//	ctx = logging.WithSessionID(ctx, "sess_123")
//	logger.Info(ctx, "instruction processed", zap.Int("stages", 2))
//
// Domain packages take a *zap.Logger; pass logger.Underlying().
package logging
