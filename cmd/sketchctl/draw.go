package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/sketchd/internal/client"
	"github.com/fyrsmithlabs/sketchd/internal/controller"
	"github.com/fyrsmithlabs/sketchd/internal/memory"
)

// errAborted is returned when the user interrupts a prompt.
var errAborted = errors.New("aborted")

// prompter asks the user for input. The survey implementation is swapped
// for a scripted one in tests.
type prompter interface {
	Input(message string) (string, error)
	Confirm(message string, def bool) (bool, error)
}

type surveyPrompter struct{}

func (surveyPrompter) Input(message string) (string, error) {
	var out string
	if err := survey.AskOne(&survey.Input{Message: message}, &out); err != nil {
		return "", translateSurveyErr(err)
	}
	return out, nil
}

func (surveyPrompter) Confirm(message string, def bool) (bool, error) {
	var out bool
	if err := survey.AskOne(&survey.Confirm{Message: message, Default: def}, &out); err != nil {
		return false, translateSurveyErr(err)
	}
	return out, nil
}

func translateSurveyErr(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return errAborted
	}
	return err
}

var askConfirm bool

func init() {
	drawCmd.Flags().BoolVar(&askConfirm, "ask", true, "ask before executing preview strokes")
	rootCmd.AddCommand(drawCmd)
}

// drawCmd sends instructions, one-shot or interactively
var drawCmd = &cobra.Command{
	Use:   "draw [instruction...]",
	Short: "Draw from natural language instructions",
	Long: `Send a drawing instruction. Without arguments, start an interactive
session that asks whether to execute each preview.

Examples:
  # One instruction on a new session
  sketchctl draw "a house with a chimney"

  # Interactive drawing on an existing session
  sketchctl draw --session sess_0d1c...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r := &repl{
			client: newClient(),
			prompt: surveyPrompter{},
			out:    cmd.OutOrStdout(),
			ask:    askConfirm,
			id:     sessionID,
		}
		if len(args) > 0 {
			return r.once(cmd.Context(), strings.Join(args, " "))
		}
		return r.run(cmd.Context())
	},
}

// repl drives one session from the terminal.
type repl struct {
	client *client.Client
	prompt prompter
	out    io.Writer
	ask    bool
	id     string
}

func (r *repl) ensureSession(ctx context.Context) error {
	if r.id != "" {
		return nil
	}
	s, err := r.client.CreateSession(ctx)
	if err != nil {
		return err
	}
	r.id = s.ID
	fmt.Fprintln(r.out, dimStyle.Render("session "+s.ID))
	return nil
}

// once sends a single instruction without prompting.
func (r *repl) once(ctx context.Context, instruction string) error {
	if err := r.ensureSession(ctx); err != nil {
		return err
	}
	out, err := r.client.Instruct(ctx, r.id, instruction)
	if err != nil {
		return err
	}
	printOutcome(r.out, out)
	return nil
}

// run loops until the user quits. "quit" and "exit" leave; every other
// line is sent to the server, which also interprets stop, continue and
// confirm words.
func (r *repl) run(ctx context.Context) error {
	if err := r.ensureSession(ctx); err != nil {
		return err
	}
	fmt.Fprintln(r.out, assistantStyle.Render("What would you like to draw? (quit to exit)"))

	for {
		line, err := r.prompt.Input("draw>")
		if errors.Is(err, errAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			return nil
		}

		out, err := r.client.Instruct(ctx, r.id, line)
		if err != nil {
			fmt.Fprintln(r.out, errStyle.Render(err.Error()))
			continue
		}
		printOutcome(r.out, out)

		if !r.ask || !hasPreview(out.Stages) {
			continue
		}
		if err := r.review(ctx); err != nil {
			return err
		}
	}
}

// review asks whether to execute or discard the preview.
func (r *repl) review(ctx context.Context) error {
	ok, err := r.prompt.Confirm("Execute the preview on the arm?", true)
	if errors.Is(err, errAborted) {
		return nil
	}
	if err != nil {
		return err
	}
	if ok {
		res, err := r.client.Confirm(ctx, r.id)
		if err != nil {
			fmt.Fprintln(r.out, errStyle.Render(err.Error()))
			return nil
		}
		fmt.Fprintln(r.out, assistantStyle.Render(res.Message))
		return nil
	}
	n, err := r.client.Reject(ctx, r.id)
	if err != nil {
		fmt.Fprintln(r.out, errStyle.Render(err.Error()))
		return nil
	}
	fmt.Fprintln(r.out, dimStyle.Render(fmt.Sprintf("Discarded %d preview stroke(s).", n)))
	return nil
}

func hasPreview(stages []controller.StageResult) bool {
	for _, st := range stages {
		if st.StrokeState == memory.StatePreview && len(st.StrokeIDs) > 0 {
			return true
		}
	}
	return false
}
