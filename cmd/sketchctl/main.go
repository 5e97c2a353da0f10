// Package main implements sketchctl, a command-line client for the sketchd
// HTTP server.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/sketchd/internal/client"
)

var (
	// serverURL is the base URL for the sketchd HTTP server
	serverURL string
	// sessionID selects the session for per-session commands
	sessionID string
	// timeout bounds each request
	timeout time.Duration
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sketchctl",
	Short: "CLI for the sketchd drawing server",
	Long: `sketchctl talks to a running sketchd server. It creates drawing sessions,
sends instructions, confirms or rejects previews and watches a session live.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("SKETCHD_SERVER", "http://127.0.0.1:8642"), "sketchd server URL")
	rootCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", os.Getenv("SKETCHD_SESSION"), "session id")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", client.DefaultTimeout, "request timeout")
}

func newClient() *client.Client {
	return client.New(serverURL, timeout)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
