package oracle

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrFakeExhausted is returned when a FakeLLM has no scripted reply left.
var ErrFakeExhausted = errors.New("fake llm: no scripted reply left")

// FakeReply is one scripted completion.
type FakeReply struct {
	Text  string
	Err   error
	Delay time.Duration
}

// FakeCall records a completion request.
type FakeCall struct {
	System string
	Prompt string
}

// FakeLLM replays scripted replies in order. Once the script is used up it
// keeps returning Fallback if set.
type FakeLLM struct {
	mu       sync.Mutex
	replies  []FakeReply
	calls    []FakeCall
	Fallback *FakeReply
}

// NewFakeLLM creates a FakeLLM that returns texts in order.
func NewFakeLLM(texts ...string) *FakeLLM {
	f := &FakeLLM{}
	for _, t := range texts {
		f.replies = append(f.replies, FakeReply{Text: t})
	}
	return f
}

// Push appends scripted replies.
func (f *FakeLLM) Push(replies ...FakeReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, replies...)
}

// Calls returns the recorded requests.
func (f *FakeLLM) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}

func (f *FakeLLM) Name() string { return "fake" }
func (f *FakeLLM) Close() error { return nil }

// Complete returns the next scripted reply.
func (f *FakeLLM) Complete(ctx context.Context, system, prompt string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{System: system, Prompt: prompt})
	var r FakeReply
	switch {
	case len(f.replies) > 0:
		r = f.replies[0]
		f.replies = f.replies[1:]
	case f.Fallback != nil:
		r = *f.Fallback
	default:
		f.mu.Unlock()
		return "", ErrFakeExhausted
	}
	f.mu.Unlock()

	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if r.Err != nil {
		return "", r.Err
	}
	return r.Text, nil
}
