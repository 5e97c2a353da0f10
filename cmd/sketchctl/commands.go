package main

import (
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/sketchd/internal/monitor"
)

var (
	undoCount     int
	watchInterval time.Duration
)

func init() {
	sessionCmd.AddCommand(sessionNewCmd, sessionListCmd, sessionRmCmd)
	undoCmd.Flags().IntVarP(&undoCount, "count", "n", 1, "number of strokes to remove")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "refresh interval")

	rootCmd.AddCommand(healthCmd, sessionCmd, stateCmd, confirmCmd, rejectCmd,
		undoCmd, stopCmd, resumeCmd, watchCmd)
}

// errNoSession is returned when a per-session command has no --session.
var errNoSession = errors.New("no session selected: pass --session or set SKETCHD_SESSION")

func requireSession() (string, error) {
	if sessionID == "" {
		return "", errNoSession
	}
	return sessionID, nil
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check sketchd server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := newClient().Health(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Server Status: %s\n", h.Status)
		fmt.Fprintf(out, "Server URL: %s\n", serverURL)
		fmt.Fprintf(out, "Version: %s\n", h.Version)
		fmt.Fprintf(out, "Active Sessions: %d\n", h.ActiveSessions)
		fmt.Fprintf(out, "Event Stream: %t\n", h.Events)
		return nil
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage drawing sessions",
}

var sessionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a drawing session and print its id",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newClient().CreateSession(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s.ID)
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := newClient().ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, s := range list {
			fmt.Fprintf(out, "%s\t%d strokes\t%s\n", s.ID, s.Strokes, s.UpdatedAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient().DeleteSession(cmd.Context(), args[0])
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show a session's strokes, labels and plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := requireSession()
		if err != nil {
			return err
		}
		s, err := newClient().State(cmd.Context(), id)
		if err != nil {
			return err
		}
		printState(cmd.OutOrStdout(), s.ID, s.Stopped, s.State)
		return nil
	},
}

var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Confirm preview strokes and send them to the arm",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := requireSession()
		if err != nil {
			return err
		}
		res, err := newClient().Confirm(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), assistantStyle.Render(res.Message))
		return nil
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject",
	Short: "Discard preview strokes",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := requireSession()
		if err != nil {
			return err
		}
		n, err := newClient().Reject(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rejected %d preview stroke(s).\n", n)
		return nil
	},
}

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Remove the most recent strokes",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := requireSession()
		if err != nil {
			return err
		}
		res, err := newClient().Undo(cmd.Context(), id, undoCount)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stroke(s).\n", len(res.Removed))
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the arm and refuse instructions until resumed",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := requireSession()
		if err != nil {
			return err
		}
		return newClient().Stop(cmd.Context(), id)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Clear the stop signal",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := requireSession()
		if err != nil {
			return err
		}
		return newClient().Resume(cmd.Context(), id)
	},
}

// watchCmd opens the live dashboard
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a session in a live terminal dashboard",
	Long: `Open a dashboard that redraws the session canvas, plan progress and
stroke history every --interval.

Keys: q quit, r refresh, s stop or resume.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := requireSession()
		if err != nil {
			return err
		}
		model := monitor.NewModel(newClient(), id, watchInterval)
		_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
		return err
	},
}
