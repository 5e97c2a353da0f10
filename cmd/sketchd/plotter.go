package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/execution"
)

var plotterDelay time.Duration

func init() {
	plotterCmd.Flags().DurationVar(&plotterDelay, "segment-delay", 20*time.Millisecond, "simulated time per segment")
}

// plotterCmd runs a simulated arm on NATS
var plotterCmd = &cobra.Command{
	Use:   "plotter",
	Short: "Run a simulated drawing arm on NATS",
	Long: `Answer draw and halt requests for execution.device on NATS with a
simulated arm. Pair it with execution.backend=nats on the server.

Examples:
  sketchd plotter
  SKETCHD_EXECUTION_DEVICE=arm1 sketchd plotter --segment-delay 50ms`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		logger, err := newLogger(cfg, appOptions{})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()
		z := logger.Underlying()

		nc, err := connectNATS(cfg.NATS.URL, z)
		if err != nil {
			return err
		}
		defer nc.Close()

		agent, err := execution.NewAgent(nc, cfg.NATS.SubjectPrefix, cfg.Execution.Device,
			execution.NewSimulatedExecutor(z, plotterDelay), z)
		if err != nil {
			return err
		}
		if err := agent.Start(ctx); err != nil {
			return err
		}
		defer agent.Stop()

		logger.Info(ctx, "plotter ready",
			zap.String("device", cfg.Execution.Device),
			zap.String("prefix", cfg.NATS.SubjectPrefix))
		<-ctx.Done()
		return nil
	},
}
