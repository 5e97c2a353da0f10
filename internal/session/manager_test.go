package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sketchd/internal/controller"
	"github.com/fyrsmithlabs/sketchd/internal/memory"
	"github.com/fyrsmithlabs/sketchd/internal/oracle"
	"github.com/fyrsmithlabs/sketchd/internal/store"
	"github.com/fyrsmithlabs/sketchd/internal/validator"
)

const squareReply = `{"strokes": [[[0.4,0.4],[0.6,0.4],[0.6,0.6],[0.4,0.6],[0.4,0.4]]],
 "labels": {"stroke_0": "square"}, "assistant_message": "Drew a square.", "done": true}`

func newTestManager(t *testing.T, maxActive int) (*Manager, store.Store) {
	t.Helper()
	llm := oracle.NewFakeLLM()
	llm.Fallback = &oracle.FakeReply{Text: squareReply}
	return newManagerWith(t, llm, maxActive)
}

func newManagerWith(t *testing.T, llm oracle.LLM, maxActive int) (*Manager, store.Store) {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	val, err := validator.New(validator.DefaultConfig())
	require.NoError(t, err)
	orc := oracle.New(llm, oracle.DefaultConfig())

	factory := func(id string, mem *memory.Memory) (*controller.Controller, error) {
		return controller.New(mem, orc, val,
			controller.WithSessionID(id),
			controller.WithConfig(&controller.Config{RepairBudget: 1, PreviewMode: true}),
		)
	}
	m, err := NewManager(st, factory, maxActive)
	require.NoError(t, err)
	return m, st
}

func TestManager_CreateProcessGet(t *testing.T) {
	m, _ := newTestManager(t, 4)
	ctx := context.Background()

	s, err := m.Create(ctx)
	require.NoError(t, err)
	assert.Regexp(t, `^sess_[0-9a-f-]{36}$`, s.ID)

	out, err := m.Process(ctx, s.ID, "draw a square")
	require.NoError(t, err)
	assert.Equal(t, "Drew a square.", out.Message)

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Len(t, got.Snapshot().Strokes, 1)
}

func TestManager_EvictedSessionIsRestored(t *testing.T) {
	m, st := newTestManager(t, 1)
	ctx := context.Background()

	first, err := m.Create(ctx)
	require.NoError(t, err)
	_, err = m.Process(ctx, first.ID, "draw a square")
	require.NoError(t, err)
	require.NoError(t, m.Stop(ctx, first.ID))

	second, err := m.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Active())

	rec, err := st.Load(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, rec.Snapshot.Strokes, 1)
	assert.True(t, rec.Stopped)

	restored, err := m.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.NotSame(t, first, restored)
	assert.Len(t, restored.Snapshot().Strokes, 1)
	assert.True(t, restored.Controller().StopSignal().Stopped())

	// Restoring evicted the second session in turn.
	rec, err = st.Load(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, rec.Snapshot.Strokes)
}

func TestManager_UndoRejectConfirm(t *testing.T) {
	m, _ := newTestManager(t, 4)
	ctx := context.Background()
	s, err := m.Create(ctx)
	require.NoError(t, err)

	_, err = m.Process(ctx, s.ID, "draw a square")
	require.NoError(t, err)
	n, err := m.Reject(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = m.Process(ctx, s.ID, "draw a square")
	require.NoError(t, err)
	res, err := m.Confirm(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Confirmed)

	removed, err := m.Undo(ctx, s.ID, 5)
	require.NoError(t, err)
	assert.Len(t, removed, 1)
	assert.Empty(t, s.Snapshot().Strokes)
}

func TestManager_Delete(t *testing.T) {
	m, st := newTestManager(t, 4)
	ctx := context.Background()
	s, err := m.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, s.ID))
	assert.Zero(t, m.Active())
	_, err = st.Load(ctx, s.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = m.Get(ctx, s.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestManager_GetRejectsBadIDs(t *testing.T) {
	m, _ := newTestManager(t, 4)
	_, err := m.Get(context.Background(), "../../etc")
	assert.ErrorIs(t, err, store.ErrInvalidID)
}

func TestManager_CloseSavesActive(t *testing.T) {
	m, _ := newTestManager(t, 4)
	ctx := context.Background()
	s, err := m.Create(ctx)
	require.NoError(t, err)
	_, err = m.Process(ctx, s.ID, "draw a square")
	require.NoError(t, err)

	require.NoError(t, m.Close(ctx))
	_, err = m.Create(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

// gatedLLM blocks every completion until release is closed.
type gatedLLM struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedLLM() *gatedLLM {
	return &gatedLLM{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedLLM) Name() string { return "gated" }
func (g *gatedLLM) Close() error { return nil }
func (g *gatedLLM) Complete(ctx context.Context, system, prompt string) (string, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return squareReply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestManager_BusySessionSurvivesEviction(t *testing.T) {
	llm := newGatedLLM()
	m, st := newManagerWith(t, llm, 1)
	ctx := context.Background()

	first, err := m.Create(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.Process(ctx, first.ID, "draw a square")
		done <- err
	}()
	select {
	case <-llm.started:
	case <-time.After(5 * time.Second):
		t.Fatal("instruction never reached the model")
	}

	_, err = m.Create(ctx)
	require.NoError(t, err)

	got, err := m.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Same(t, first, got, "a busy session is never rebuilt")

	require.NoError(t, m.Stop(ctx, first.ID))
	assert.True(t, first.Controller().StopSignal().Stopped())

	close(llm.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("instruction did not finish")
	}

	assert.Len(t, first.Snapshot().Strokes, 1)
	rec, err := st.Load(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, rec.Snapshot.Strokes, 1)
	assert.True(t, rec.Stopped)

	again, err := m.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Same(t, first, again)
}

func TestManager_IdleEvictedSessionIsNotParked(t *testing.T) {
	m, _ := newTestManager(t, 1)
	ctx := context.Background()

	first, err := m.Create(ctx)
	require.NoError(t, err)
	_, err = m.Process(ctx, first.ID, "draw a square")
	require.NoError(t, err)
	_, err = m.Create(ctx)
	require.NoError(t, err)

	m.mu.Lock()
	parked := len(m.parked)
	m.mu.Unlock()
	assert.Zero(t, parked)
}
