package oracle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
	"github.com/fyrsmithlabs/sketchd/internal/memory"
	"github.com/fyrsmithlabs/sketchd/internal/validator"
)

const squareReply = `{
  "strokes": [[[0.4,0.4],[0.6,0.4],[0.6,0.6],[0.4,0.6],[0.4,0.4]]],
  "anchors": {"square_center": [0.5, 0.5]},
  "labels": {"stroke_0": "square"},
  "assistant_message": "Drew a square.",
  "done": true
}`

func TestParse_Valid(t *testing.T) {
	resp, err := Parse("test", squareReply, DefaultLimits())
	require.NoError(t, err)

	require.Len(t, resp.Strokes, 1)
	assert.Len(t, resp.Strokes[0], 5)
	assert.Equal(t, map[int]string{0: "square"}, resp.Labels)
	assert.Equal(t, coords.Pt(0.5, 0.5), resp.Anchors["square_center"])
	assert.Equal(t, "Drew a square.", resp.AssistantMessage)
	assert.True(t, resp.Done)
	assert.True(t, resp.HasStrokes())
	assert.Nil(t, resp.Plan)
}

func TestParse_ExtractsFromProse(t *testing.T) {
	text := "Sure! Here you go:\n```json\n" + squareReply + "\n```\nLet me know {if} you need more."

	resp, err := Parse("test", text, DefaultLimits())
	require.NoError(t, err)
	assert.Len(t, resp.Strokes, 1)
}

func TestParse_PlanAndProgress(t *testing.T) {
	resp, err := Parse("test", `{
		"strokes": [],
		"plan": {"summary": "a cat", "components": ["body", {"name": "head", "size": "small", "position": "above body"}]},
		"component_drawn": "",
		"components_remaining": ["body", "head"],
		"current_stage": 0
	}`, DefaultLimits())
	require.NoError(t, err)

	require.NotNil(t, resp.Plan)
	assert.Equal(t, []memory.Component{{Name: "body"}, {Name: "head", Size: "small", Position: "above body"}}, resp.Plan.Components)
	assert.Equal(t, []string{"body", "head"}, resp.ComponentsRemaining)
	assert.False(t, resp.HasStrokes())
	assert.Equal(t, DefaultAssistantMessage, resp.AssistantMessage)
}

func TestParse_PlanDropsStrokes(t *testing.T) {
	resp, err := Parse("test", `{
		"strokes": [[[0.3,0.3],[0.7,0.3],[0.7,0.5],[0.3,0.5],[0.3,0.3]]],
		"labels": {"stroke_0": "body"},
		"plan": {"summary": "a cat", "components": ["body", "head"]}
	}`, DefaultLimits())
	require.NoError(t, err)

	require.NotNil(t, resp.Plan)
	assert.False(t, resp.HasStrokes())
	assert.Empty(t, resp.Labels)
}

func TestResponse_CandidateIsClamped(t *testing.T) {
	resp := &Response{
		Strokes: [][]coords.Point{{{X: 0.9, Y: 0.2}, {X: 2.5, Y: -0.4}}},
		Labels:  map[int]string{0: "bar"},
	}

	c := resp.Candidate()
	assert.Equal(t, []coords.Point{{X: 0.9, Y: 0.2}, {X: 1, Y: 0}}, c.Strokes[0])
	assert.Equal(t, 2.5, resp.Strokes[0][1].X, "reply geometry is left untouched")
	assert.Equal(t, "bar", c.Labels[0])
}

func TestParse_Malformed(t *testing.T) {
	tooMany := `{"strokes": [` + strings.Repeat(`[[0,0],[1,1]],`, 20) + `[[0,0],[1,1]]]}`
	longStroke := `{"strokes": [[` + strings.Repeat(`[0.5,0.5],`, 50) + `[0.5,0.5]]]}`

	tests := []struct {
		name string
		text string
	}{
		{"empty", "   "},
		{"no json", "I cannot draw that"},
		{"unbalanced", `{"strokes": [`},
		{"point with three numbers", `{"strokes": [[[0.1,0.2,0.3],[0.4,0.5]]]}`},
		{"point as object", `{"strokes": [[{"x":0.1,"y":0.2},[0.4,0.5]]]}`},
		{"string coordinate", `{"strokes": [[["a",0.2],[0.4,0.5]]]}`},
		{"done as string", `{"strokes": [], "done": "yes"}`},
		{"label out of range", `{"strokes": [[[0,0],[1,1]]], "labels": {"stroke_1": "x"}}`},
		{"label key not index", `{"strokes": [[[0,0],[1,1]]], "labels": {"first": "x"}}`},
		{"plan without components", `{"plan": {"summary": "x", "components": []}}`},
		{"plan component without name", `{"plan": {"summary": "x", "components": [{"size": "big"}]}}`},
		{"too many strokes", tooMany},
		{"too many points", longStroke},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("test", tt.text, DefaultLimits())
			require.Error(t, err)
			var oerr *OracleError
			require.True(t, errors.As(err, &oerr))
			assert.Equal(t, KindMalformed, oerr.Kind)
			assert.True(t, errors.Is(err, ErrOracle))
		})
	}
}

func TestExtractJSON_BracesInStrings(t *testing.T) {
	got, err := ExtractJSON(`note {"assistant_message": "use } and { freely \" ok", "done": true} trailing }`)
	require.NoError(t, err)
	assert.Equal(t, `{"assistant_message": "use } and { freely \" ok", "done": true}`, got)
}

func TestOracle_Generate(t *testing.T) {
	fake := NewFakeLLM(squareReply)
	o := New(fake, DefaultConfig())

	resp, err := o.Generate(context.Background(), &Request{Instruction: "draw a square", Snapshot: memory.New().Summary(), Attempt: 1})
	require.NoError(t, err)
	assert.Len(t, resp.Strokes, 1)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, SystemPrompt, calls[0].System)
	assert.Contains(t, calls[0].Prompt, "INSTRUCTION: draw a square")
	assert.Contains(t, calls[0].Prompt, "canvas is empty")
}

func TestOracle_GenerateFailures(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		fake := &FakeLLM{}
		fake.Push(FakeReply{Text: squareReply, Delay: time.Second})
		o := New(fake, Config{Timeout: 20 * time.Millisecond, Limits: DefaultLimits()})

		_, err := o.Generate(context.Background(), &Request{Instruction: "x"})
		var oerr *OracleError
		require.True(t, errors.As(err, &oerr))
		assert.Equal(t, KindTimeout, oerr.Kind)
	})

	t.Run("transport", func(t *testing.T) {
		fake := &FakeLLM{}
		fake.Push(FakeReply{Err: errors.New("connection refused")})
		o := New(fake, DefaultConfig())

		_, err := o.Generate(context.Background(), &Request{Instruction: "x"})
		var oerr *OracleError
		require.True(t, errors.As(err, &oerr))
		assert.Equal(t, KindTransport, oerr.Kind)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("malformed", func(t *testing.T) {
		o := New(NewFakeLLM("not json"), DefaultConfig())
		_, err := o.Generate(context.Background(), &Request{Instruction: "x"})
		assert.True(t, errors.Is(err, ErrNoJSON))
	})
}

func TestBuildPrompt(t *testing.T) {
	mem := memory.New()
	mem.SetPendingQuestion("Which side?")
	p, err := memory.NewPlan("a cat", []memory.Component{{Name: "body"}, {Name: "head"}})
	require.NoError(t, err)
	p.CurrentStage = 1
	require.NoError(t, mem.SetPlan(p))

	req := &Request{
		Instruction: "the left side",
		Snapshot:    mem.Summary(),
		Plan:        mem.Plan(),
		Issues:      []validator.Issue{{Category: validator.CategoryOverlap, Severity: validator.SeverityError, Message: "head overlaps body"}},
		Attempt:     2,
	}

	prompt := BuildPrompt(req, coords.Grid{Size: 10}, DefaultLimits())

	assert.Contains(t, prompt, `YOU PREVIOUSLY ASKED: "Which side?"`)
	assert.Contains(t, prompt, `ACTIVE PLAN: a cat. Draw "head" now.`)
	assert.Contains(t, prompt, "ATTEMPT 2")
	assert.Contains(t, prompt, "1. [ERROR] OVERLAP: head overlaps body")
	assert.Contains(t, prompt, "at most 20 strokes, at most 50 points per stroke")
	assert.True(t, strings.Index(prompt, "YOU PREVIOUSLY ASKED") < strings.Index(prompt, "INSTRUCTION"))
}

type countingLLM struct {
	errs  []error
	calls int
}

func (c *countingLLM) Name() string { return "counting" }
func (c *countingLLM) Close() error { return nil }
func (c *countingLLM) Complete(ctx context.Context, system, prompt string) (string, error) {
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return "", err
	}
	return "{}", nil
}

func TestRetry(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		inner := &countingLLM{errs: []error{errors.New("503"), errors.New("503")}}
		llm := Wrap(inner, Retry(3, time.Millisecond))

		out, err := llm.Complete(context.Background(), "", "")
		require.NoError(t, err)
		assert.Equal(t, "{}", out)
		assert.Equal(t, 3, inner.calls)
	})

	t.Run("gives up", func(t *testing.T) {
		inner := &countingLLM{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
		_, err := Wrap(inner, Retry(1, time.Millisecond)).Complete(context.Background(), "", "")
		require.Error(t, err)
		assert.Equal(t, 2, inner.calls)
	})

	t.Run("permanent", func(t *testing.T) {
		inner := &countingLLM{errs: []error{&PermanentError{Err: errors.New("401")}}}
		_, err := Wrap(inner, Retry(3, time.Millisecond)).Complete(context.Background(), "", "")
		assert.True(t, IsPermanent(err))
		assert.Equal(t, 1, inner.calls)
	})
}

func TestWrap_OrderAndPassthrough(t *testing.T) {
	inner := &countingLLM{}
	llm := Wrap(inner, Logging(nil), RateLimit(1000, 10), RateLimit(0, 0), Retry(0, 0))

	assert.Equal(t, "counting", llm.Name())
	_, err := llm.Complete(context.Background(), "s", "p")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.NoError(t, llm.Close())
}

func TestRateLimit_HonoursContext(t *testing.T) {
	llm := Wrap(&countingLLM{}, RateLimit(0.001, 1))
	_, err := llm.Complete(context.Background(), "", "")
	require.NoError(t, err, "first call uses the burst")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = llm.Complete(ctx, "", "")
	assert.Error(t, err)
}

func TestNewLLM(t *testing.T) {
	ctx := context.Background()

	llm, err := NewLLM(ctx, ProviderConfig{Provider: "fake"})
	require.NoError(t, err)
	assert.Equal(t, "fake", llm.Name())

	_, err = NewLLM(ctx, ProviderConfig{Provider: "carrier-pigeon"})
	assert.True(t, errors.Is(err, ErrUnknownProvider))

	for _, p := range []string{"gemini", "openai", "openrouter", "anthropic"} {
		_, err = NewLLM(ctx, ProviderConfig{Provider: p})
		assert.True(t, errors.Is(err, ErrMissingAPIKey), p)
	}
}

func TestFakeLLM_Fallback(t *testing.T) {
	f := NewFakeLLM()
	_, err := f.Complete(context.Background(), "", "")
	assert.True(t, errors.Is(err, ErrFakeExhausted))

	f.Fallback = &FakeReply{Text: "{}"}
	out, err := f.Complete(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "{}", out)
	assert.Len(t, f.Calls(), 2)
}

type promptLLM struct{ prompt string }

func (p *promptLLM) Name() string { return "prompt" }
func (p *promptLLM) Close() error { return nil }
func (p *promptLLM) Complete(ctx context.Context, system, prompt string) (string, error) {
	p.prompt = prompt
	return "{}", nil
}

type replaceRedactor struct {
	secret string
	err    error
}

func (r replaceRedactor) Redact(content string) (string, []string, error) {
	if r.err != nil {
		return "", nil, r.err
	}
	if !strings.Contains(content, r.secret) {
		return content, nil, nil
	}
	return strings.ReplaceAll(content, r.secret, "[REDACTED]"), []string{"test-rule"}, nil
}

func TestScrub(t *testing.T) {
	t.Run("redacts prompt", func(t *testing.T) {
		inner := &promptLLM{}
		llm := Wrap(inner, Scrub(replaceRedactor{secret: "hunter2"}, nil))
		_, err := llm.Complete(context.Background(), "sys", "draw hunter2 as a tree")
		require.NoError(t, err)
		assert.Equal(t, "draw [REDACTED] as a tree", inner.prompt)
	})

	t.Run("nil redactor passes through", func(t *testing.T) {
		inner := &promptLLM{}
		llm := Wrap(inner, Scrub(nil, nil))
		assert.Same(t, inner, llm)
	})

	t.Run("redactor failure is permanent", func(t *testing.T) {
		inner := &promptLLM{}
		llm := Wrap(inner, Retry(3, time.Millisecond), Scrub(replaceRedactor{err: errors.New("boom")}, nil))
		_, err := llm.Complete(context.Background(), "", "x")
		assert.True(t, IsPermanent(err))
		assert.Empty(t, inner.prompt)
	})
}
