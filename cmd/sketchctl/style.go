package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/sketchd/internal/controller"
	"github.com/fyrsmithlabs/sketchd/internal/memory"
)

var (
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("51")).Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// printOutcome renders an instruction outcome.
func printOutcome(w io.Writer, out *controller.Outcome) {
	if out.Message != "" {
		fmt.Fprintln(w, assistantStyle.Render(out.Message))
	}
	for _, st := range out.Stages {
		line := fmt.Sprintf("  stage %d", st.Index+1)
		if st.Component != "" {
			line += " " + st.Component
		}
		line += fmt.Sprintf(": %d stroke(s), score %.2f, %d attempt(s)", len(st.StrokeIDs), st.Score, st.Attempts)
		if st.StrokeState != "" {
			line += " [" + string(st.StrokeState) + "]"
		}
		fmt.Fprintln(w, dimStyle.Render(line))
		if st.Fallback {
			fmt.Fprintln(w, warnStyle.Render("  best attempt kept after failed validation"))
		}
		for _, is := range st.Issues {
			fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("    %s: %s", is.Severity, is.Message)))
		}
		if st.Execution != nil && len(st.Execution.Failed) > 0 {
			fmt.Fprintln(w, errStyle.Render(fmt.Sprintf("  %d chunk(s) failed on the arm", len(st.Execution.Failed))))
		}
	}
	if out.Plan != nil {
		if rest := out.Plan.Remaining(); len(rest) > 0 {
			names := make([]string, 0, len(rest))
			for _, c := range rest {
				names = append(names, c.Name)
			}
			fmt.Fprintln(w, labelStyle.Render("  next: ")+strings.Join(names, " → "))
		}
	}
	if out.Question != "" {
		fmt.Fprintln(w, warnStyle.Render("? "+out.Question))
	}
	if out.Overrun {
		fmt.Fprintln(w, warnStyle.Render("  plan paused, say 'continue' to draw the rest"))
	}
}

// printState renders a session ledger.
func printState(w io.Writer, id string, stopped bool, snap memory.Snapshot) {
	status := "ready"
	if stopped {
		status = errStyle.Render("stopped")
	}
	fmt.Fprintf(w, "%s %s (%s)\n", labelStyle.Render("session"), id, status)
	fmt.Fprintf(w, "%s %d confirmed, %d preview\n", labelStyle.Render("strokes"), len(snap.Confirmed()), len(snap.Preview()))
	for _, g := range snap.Groups {
		c := g.Bounds.Center()
		state := "preview"
		if g.Confirmed {
			state = "confirmed"
		}
		fmt.Fprintf(w, "  %-16s %d stroke(s) at (%.2f, %.2f) %s\n", g.Label, len(g.StrokeIDs), c.X, c.Y, dimStyle.Render(state))
	}
	if p := snap.Plan; p != nil {
		fmt.Fprintf(w, "%s %s, stage %d/%d\n", labelStyle.Render("plan"), p.Summary, p.CurrentStage, p.TotalStages)
	}
	if snap.PendingQuestion != "" {
		fmt.Fprintln(w, warnStyle.Render("? "+snap.PendingQuestion))
	}
}
