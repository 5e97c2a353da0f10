package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/client"
	"github.com/fyrsmithlabs/sketchd/internal/controller"
	"github.com/fyrsmithlabs/sketchd/internal/coords"
	api "github.com/fyrsmithlabs/sketchd/internal/http"
	"github.com/fyrsmithlabs/sketchd/internal/memory"
	"github.com/fyrsmithlabs/sketchd/internal/oracle"
	"github.com/fyrsmithlabs/sketchd/internal/session"
	"github.com/fyrsmithlabs/sketchd/internal/store"
	"github.com/fyrsmithlabs/sketchd/internal/validator"
)

const squareReply = `{"strokes": [[[0.4,0.4],[0.6,0.4],[0.6,0.6],[0.4,0.6],[0.4,0.4]]],
 "labels": {"stroke_0": "square"}, "assistant_message": "Drew a square.", "done": true}`

func startServer(t *testing.T) string {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	val, err := validator.New(validator.DefaultConfig())
	require.NoError(t, err)
	llm := oracle.NewFakeLLM()
	llm.Fallback = &oracle.FakeReply{Text: squareReply}
	orc := oracle.New(llm, oracle.DefaultConfig())

	factory := func(id string, mem *memory.Memory) (*controller.Controller, error) {
		return controller.New(mem, orc, val, controller.WithSessionID(id))
	}
	mgr, err := session.NewManager(st, factory, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })

	srv, err := api.NewServer(mgr, zap.NewNop(), &api.Config{Version: "test"})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

// scriptedPrompter replays inputs and confirmations.
type scriptedPrompter struct {
	inputs   []string
	confirms []bool
}

func (p *scriptedPrompter) Input(string) (string, error) {
	if len(p.inputs) == 0 {
		return "", errAborted
	}
	in := p.inputs[0]
	p.inputs = p.inputs[1:]
	return in, nil
}

func (p *scriptedPrompter) Confirm(string, bool) (bool, error) {
	if len(p.confirms) == 0 {
		return false, errAborted
	}
	c := p.confirms[0]
	p.confirms = p.confirms[1:]
	return c, nil
}

func newTestREPL(t *testing.T, p prompter) (*repl, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return &repl{
		client: client.New(startServer(t), time.Second*5),
		prompt: p,
		out:    &buf,
		ask:    true,
	}, &buf
}

func TestREPL_ConfirmThenQuit(t *testing.T) {
	ctx := context.Background()
	r, buf := newTestREPL(t, &scriptedPrompter{
		inputs:   []string{"", "draw a square", "quit"},
		confirms: []bool{true},
	})

	require.NoError(t, r.run(ctx))
	require.NotEmpty(t, r.id)
	assert.Contains(t, buf.String(), "Drew a square.")

	s, err := r.client.State(ctx, r.id)
	require.NoError(t, err)
	require.Len(t, s.State.Strokes, 1)
	assert.Equal(t, memory.StateConfirmed, s.State.Strokes[0].State)
}

func TestREPL_RejectDiscardsPreview(t *testing.T) {
	ctx := context.Background()
	r, buf := newTestREPL(t, &scriptedPrompter{
		inputs:   []string{"draw a square"},
		confirms: []bool{false},
	})

	require.NoError(t, r.run(ctx))
	assert.Contains(t, buf.String(), "Discarded 1 preview stroke(s).")

	s, err := r.client.State(ctx, r.id)
	require.NoError(t, err)
	assert.Empty(t, s.State.Strokes)
}

func TestREPL_ServerErrorKeepsLooping(t *testing.T) {
	r, buf := newTestREPL(t, &scriptedPrompter{inputs: []string{"draw", "exit"}})
	r.id = "missing"

	require.NoError(t, r.run(context.Background()))
	assert.Contains(t, buf.String(), "404")
}

func TestREPL_Once(t *testing.T) {
	r, buf := newTestREPL(t, &scriptedPrompter{})
	require.NoError(t, r.once(context.Background(), "draw a square"))
	assert.True(t, strings.HasPrefix(r.id, "sess_"))
	assert.Contains(t, buf.String(), "Drew a square.")
}

func TestHasPreview(t *testing.T) {
	assert.False(t, hasPreview(nil))
	assert.False(t, hasPreview([]controller.StageResult{{StrokeState: memory.StateConfirmed, StrokeIDs: []int{1}}}))
	assert.False(t, hasPreview([]controller.StageResult{{StrokeState: memory.StatePreview}}))
	assert.True(t, hasPreview([]controller.StageResult{{StrokeState: memory.StatePreview, StrokeIDs: []int{2}}}))
}

func TestPrintOutcome(t *testing.T) {
	var buf bytes.Buffer
	printOutcome(&buf, &controller.Outcome{
		Message: "Drew the walls.",
		Stages: []controller.StageResult{{
			Index: 0, Component: "walls", Attempts: 2, Score: 0.9,
			StrokeIDs: []int{1, 2}, StrokeState: memory.StatePreview, Fallback: true,
		}},
		Plan: &memory.Plan{
			Summary:      "house",
			Components:   []memory.Component{{Name: "walls"}, {Name: "roof"}},
			CurrentStage: 1,
			TotalStages:  2,
		},
		Question: "Add a door?",
		Overrun:  true,
	})

	out := buf.String()
	assert.Contains(t, out, "Drew the walls.")
	assert.Contains(t, out, "stage 1 walls: 2 stroke(s), score 0.90, 2 attempt(s) [preview]")
	assert.Contains(t, out, "best attempt kept")
	assert.Contains(t, out, "next:")
	assert.Contains(t, out, "roof")
	assert.Contains(t, out, "? Add a door?")
	assert.Contains(t, out, "plan paused")
}

func TestPrintState(t *testing.T) {
	var buf bytes.Buffer
	pts := []coords.Point{coords.Pt(0.4, 0.4), coords.Pt(0.6, 0.6)}
	printState(&buf, "sess_1", false, memory.Snapshot{
		Strokes: []memory.Stroke{{ID: 1, Label: "square", State: memory.StateConfirmed, Points: pts}},
		Groups: []memory.Group{{
			Label: "square", StrokeIDs: []int{1}, Bounds: coords.Bounds(pts), Confirmed: true,
		}},
	})

	out := buf.String()
	assert.Contains(t, out, "sess_1")
	assert.Contains(t, out, "1 confirmed, 0 preview")
	assert.Contains(t, out, "(0.50, 0.50)")
}

func TestCommands_AgainstServer(t *testing.T) {
	url := startServer(t)

	run := func(args ...string) string {
		var buf bytes.Buffer
		rootCmd.SetOut(&buf)
		rootCmd.SetArgs(append([]string{"--server", url}, args...))
		require.NoError(t, rootCmd.Execute(), "sketchctl %v", args)
		return buf.String()
	}
	t.Cleanup(func() { sessionID = "" })

	assert.Contains(t, run("health"), "Server Status: ok")

	id := strings.TrimSpace(run("session", "new"))
	require.NotEmpty(t, id)

	run("draw", "--session", id, "a", "square")
	assert.Contains(t, run("state", "--session", id), "0 confirmed, 1 preview")
	run("confirm", "--session", id)
	assert.Contains(t, run("state", "--session", id), "1 confirmed, 0 preview")
	assert.Contains(t, run("undo", "--session", id, "-n", "1"), "Removed 1 stroke(s).")
	assert.Contains(t, run("session", "list"), id)
}

func TestRequireSession(t *testing.T) {
	sessionID = ""
	_, err := requireSession()
	assert.ErrorIs(t, err, errNoSession)
}
