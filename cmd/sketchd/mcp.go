package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/sketchd/internal/mcp"
)

var mcpSessionID string

func init() {
	mcpCmd.Flags().StringVar(&mcpSessionID, "session", "", "resume this session id by default")
}

// mcpCmd serves drawing tools over MCP stdio
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve drawing tools over MCP stdio",
	Long: `Serve the drawing tools (draw, drawing_state, drawing_confirm, ...) to an
MCP client over stdin and stdout. Logs go to stderr.

Examples:
  # Register with an MCP client
  sketchd mcp

  # Continue an earlier drawing
  sketchd mcp --session sess_0d1c...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg, appOptions{stderrLogs: true})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		srv, err := mcp.NewServer(&mcp.Config{
			Name:      "sketchd",
			Version:   version,
			Logger:    a.logger.Underlying(),
			SessionID: mcpSessionID,
		}, a.sessions)
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}

		// stdout carries the protocol
		fmt.Fprintf(os.Stderr, "sketchd MCP stdio server started (oracle %s)\n", a.oracle.Name())
		return srv.Run(cmd.Context())
	},
}
