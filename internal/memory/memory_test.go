package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
)

func square(x, y, size float64) []coords.Point {
	return []coords.Point{
		coords.Pt(x, y), coords.Pt(x+size, y), coords.Pt(x+size, y+size), coords.Pt(x, y+size), coords.Pt(x, y),
	}
}

func TestAddStrokes_AssignsSequentialIDs(t *testing.T) {
	m := New()

	first, err := m.AddStrokes([][]coords.Point{square(0.1, 0.1, 0.2)}, map[int]string{0: "box"}, StateConfirmed)
	require.NoError(t, err)
	second, err := m.AddStrokes([][]coords.Point{square(0.5, 0.5, 0.2), square(0.6, 0.1, 0.1)}, nil, StatePreview)
	require.NoError(t, err)

	assert.Equal(t, []int{1}, first.IDs)
	assert.Equal(t, []int{2, 3}, second.IDs)
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, 2, m.PreviewCount())
}

func TestAddStrokes_RejectsShortStrokes(t *testing.T) {
	m := New()

	res, err := m.AddStrokes([][]coords.Point{
		{coords.Pt(0.1, 0.1)},
		square(0.2, 0.2, 0.1),
		{},
	}, map[int]string{0: "dot", 1: "box"}, StateConfirmed)
	require.NoError(t, err)

	assert.Equal(t, []int{1}, res.IDs)
	require.Len(t, res.Rejected, 2)
	assert.Equal(t, 0, res.Rejected[0].Index)
	assert.Equal(t, 2, res.Rejected[1].Index)
	assert.Contains(t, res.Rejected[0].Reason, ErrTooFewPoints.Error())
	_, ok := m.Anchor("dot", AnchorCenter)
	assert.False(t, ok, "rejected stroke must not produce anchors")
}

func TestAddStrokes_InvalidState(t *testing.T) {
	_, err := New().AddStrokes([][]coords.Point{square(0.1, 0.1, 0.1)}, nil, "drawn")
	assert.True(t, errors.Is(err, ErrInvalidState))
}

func TestAddStrokes_ClampsAndWarns(t *testing.T) {
	m := New()

	res, err := m.AddStrokes([][]coords.Point{{coords.Pt(1.5, -0.2), coords.Pt(0.5, 0.5)}}, nil, StateConfirmed)
	require.NoError(t, err)

	require.Len(t, res.BoundsWarnings, 2)
	stored := m.Strokes(res.IDs...)
	require.Len(t, stored, 1)
	assert.Equal(t, coords.Pt(1.0, 0.0), stored[0].Points[0])
}

func TestAddStrokes_DerivesAnchorsPerLabelGroup(t *testing.T) {
	m := New()

	_, err := m.AddStrokes([][]coords.Point{
		{coords.Pt(0.2, 0.2), coords.Pt(0.4, 0.2)},
		{coords.Pt(0.4, 0.2), coords.Pt(0.4, 0.6)},
	}, map[int]string{0: "house", 1: "house"}, StateConfirmed)
	require.NoError(t, err)

	top, ok := m.Anchor("house", AnchorTop)
	require.True(t, ok)
	assert.InDelta(t, 0.3, top.X, 1e-12)
	assert.InDelta(t, 0.6, top.Y, 1e-12, "top is the max y edge")

	bl, _ := m.Anchor("house", AnchorBottomLeft)
	assert.Equal(t, coords.Pt(0.2, 0.2), bl)

	groups := m.Summary().Groups
	require.Len(t, groups, 1)
	assert.Equal(t, []int{1, 2}, groups[0].StrokeIDs)
	assert.Len(t, groups[0].Anchors, len(AnchorNames))
}

func TestAddStrokes_NumbersRepeatedLabels(t *testing.T) {
	m := New()

	for i := 0; i < 3; i++ {
		res, err := m.AddStrokes([][]coords.Point{square(0.1*float64(i), 0.1, 0.05)}, map[int]string{0: "square"}, StateConfirmed)
		require.NoError(t, err)
		want := "square"
		if i > 0 {
			want = fmt.Sprintf("square_%d", i+1)
		}
		assert.Equal(t, want, res.Labels[res.IDs[0]])
	}

	_, ok := m.Anchor("square_3", AnchorCenter)
	assert.True(t, ok)
}

func TestAddStrokes_RejectedStrokeReservesNoName(t *testing.T) {
	m := New()
	_, err := m.AddStrokes([][]coords.Point{square(0.1, 0.1, 0.05)}, map[int]string{0: "square"}, StateConfirmed)
	require.NoError(t, err)

	res, err := m.AddStrokes(
		[][]coords.Point{{coords.Pt(0.5, 0.5)}, square(0.3, 0.1, 0.05)},
		map[int]string{0: "square", 1: "square_2"},
		StateConfirmed,
	)
	require.NoError(t, err)
	require.Len(t, res.Rejected, 1)
	require.Len(t, res.IDs, 1)
	assert.Equal(t, "square_2", res.Labels[res.IDs[0]])
}

func TestSummary_IsComplete(t *testing.T) {
	m := New()
	var strokes [][]coords.Point
	for i := 0; i < 40; i++ {
		line := make([]coords.Point, 60)
		for j := range line {
			line[j] = coords.Pt(float64(j)/60, float64(i)/40)
		}
		strokes = append(strokes, line)
	}
	_, err := m.AddStrokes(strokes, nil, StateConfirmed)
	require.NoError(t, err)

	snap := m.Summary()
	require.Len(t, snap.Strokes, 40)
	for i, st := range snap.Strokes {
		if diff := cmp.Diff(strokes[i], st.Points); diff != "" {
			t.Fatalf("stroke %d points differ (-want +got):\n%s", i, diff)
		}
	}

	text := snap.Render(coords.Grid{Size: coords.DefaultGridSize})
	assert.Equal(t, 40*59, strings.Count(text, " ->"), "every point must appear in the rendering")
	assert.NotContains(t, text, "...")
}

func TestSummary_ReturnsCopies(t *testing.T) {
	m := New()
	_, err := m.AddStrokes([][]coords.Point{square(0.1, 0.1, 0.1)}, nil, StateConfirmed)
	require.NoError(t, err)

	snap := m.Summary()
	snap.Strokes[0].Points[0] = coords.Pt(0.9, 0.9)

	assert.Equal(t, coords.Pt(0.1, 0.1), m.Summary().Strokes[0].Points[0])
}

func TestConfirmAndReject_NoopWhenEmpty(t *testing.T) {
	m := New()
	_, err := m.AddStrokes([][]coords.Point{square(0.1, 0.1, 0.1)}, map[int]string{0: "box"}, StateConfirmed)
	require.NoError(t, err)
	m.SetPendingQuestion("which size?")
	before, err := json.Marshal(m.Summary())
	require.NoError(t, err)

	assert.Zero(t, m.ConfirmPreviewStrokes())
	assert.Zero(t, m.RejectPreviewStrokes())

	after, err := json.Marshal(m.Summary())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestConfirmPreview(t *testing.T) {
	m := New()
	_, err := m.AddStrokes([][]coords.Point{square(0.1, 0.1, 0.1)}, nil, StateConfirmed)
	require.NoError(t, err)
	_, err = m.AddStrokes([][]coords.Point{square(0.5, 0.5, 0.1), square(0.7, 0.7, 0.1)}, nil, StatePreview)
	require.NoError(t, err)

	promoted := m.ConfirmPreview()

	require.Len(t, promoted, 2)
	assert.Equal(t, []int{2, 3}, []int{promoted[0].ID, promoted[1].ID})
	assert.Zero(t, m.PreviewCount())
	assert.Len(t, m.Summary().Confirmed(), 3)
}

func TestRejectPreview_RemovesAnchors(t *testing.T) {
	m := New()
	_, err := m.AddStrokes([][]coords.Point{square(0.1, 0.1, 0.1)}, map[int]string{0: "house"}, StateConfirmed)
	require.NoError(t, err)
	res, err := m.AddStrokes([][]coords.Point{square(0.5, 0.5, 0.1)}, map[int]string{0: "sun"}, StatePreview)
	require.NoError(t, err)
	require.Equal(t, "sun", res.Labels[res.IDs[0]])

	assert.Equal(t, 1, m.RejectPreviewStrokes())

	_, ok := m.Anchor("sun", AnchorCenter)
	assert.False(t, ok)
	_, ok = m.Anchor("house", AnchorCenter)
	assert.True(t, ok)
	assert.Equal(t, 1, m.Len())

	next, err := m.AddStrokes([][]coords.Point{square(0.5, 0.5, 0.1)}, nil, StateConfirmed)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, next.IDs, "ids are never reused")
}

func TestUndoLast(t *testing.T) {
	m := New()
	_, err := m.AddStrokes([][]coords.Point{square(0.1, 0.1, 0.1), square(0.4, 0.4, 0.1)}, map[int]string{0: "a", 1: "b"}, StateConfirmed)
	require.NoError(t, err)

	removed := m.UndoLast(1)

	require.Len(t, removed, 1)
	assert.Equal(t, "b", removed[0].Label)
	_, ok := m.Anchor("b", AnchorCenter)
	assert.False(t, ok)
	assert.Equal(t, coords.Pt(0.1, 0.1), m.LastPosition())
	assert.Nil(t, m.UndoLast(0))
	assert.Len(t, m.UndoLast(10), 1)
	assert.Equal(t, DefaultLastPosition, m.LastPosition())
}

func TestPlanLifecycle(t *testing.T) {
	m := New()

	_, err := NewPlan("cat", nil)
	assert.True(t, errors.Is(err, ErrInvalidPlan))

	p, err := NewPlan("cat", []Component{{Name: "body"}, {Name: "head"}})
	require.NoError(t, err)
	require.NoError(t, m.SetPlan(p))

	p.CurrentStage = 2
	assert.Equal(t, 0, m.Plan().CurrentStage, "memory keeps its own copy")

	bad := m.Plan()
	bad.CurrentStage = 3
	assert.Error(t, m.SetPlan(bad))

	m.ClearPlan()
	assert.Nil(t, m.Plan())
}

func TestSnapshotRestore(t *testing.T) {
	m := New()
	_, err := m.AddStrokes([][]coords.Point{square(0.1, 0.1, 0.2)}, map[int]string{0: "box"}, StateConfirmed)
	require.NoError(t, err)
	_, err = m.AddStrokes([][]coords.Point{square(0.5, 0.5, 0.2)}, map[int]string{0: "box"}, StatePreview)
	require.NoError(t, err)
	p, err := NewPlan("scene", []Component{{Name: "box"}, {Name: "tree", Position: "right"}})
	require.NoError(t, err)
	require.NoError(t, m.SetPlan(p))
	m.SetPendingQuestion("how tall?")

	data, err := json.Marshal(m.Summary())
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	restored := New()
	require.NoError(t, restored.Restore(snap))

	if diff := cmp.Diff(m.Summary(), restored.Summary()); diff != "" {
		t.Fatalf("restored ledger differs (-want +got):\n%s", diff)
	}
	res, err := restored.AddStrokes([][]coords.Point{square(0.8, 0.8, 0.1)}, nil, StateConfirmed)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, res.IDs)
}

func TestRestore_RejectsBrokenSnapshots(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
	}{
		{"decreasing ids", Snapshot{Strokes: []Stroke{
			{ID: 2, Points: square(0, 0, 0.1), State: StateConfirmed},
			{ID: 1, Points: square(0, 0, 0.1), State: StateConfirmed},
		}}},
		{"short stroke", Snapshot{Strokes: []Stroke{{ID: 1, Points: square(0, 0, 0.1)[:1], State: StateConfirmed}}}},
		{"bad state", Snapshot{Strokes: []Stroke{{ID: 1, Points: square(0, 0, 0.1), State: "wet"}}}},
		{"bad plan", Snapshot{Plan: &Plan{Summary: "x", Components: []Component{{Name: "a"}}, CurrentStage: 2, TotalStages: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New().Restore(tt.snap)
			assert.True(t, errors.Is(err, ErrInvalidSnapshot))
		})
	}
}

func TestRender(t *testing.T) {
	m := New()
	assert.Contains(t, m.Summary().Render(coords.Grid{}), "canvas is empty")

	_, err := m.AddStrokes([][]coords.Point{{coords.Pt(0.25, 0.75), coords.Pt(0.5, 0.75)}}, map[int]string{0: "line"}, StatePreview)
	require.NoError(t, err)
	p, err := NewPlan("face", []Component{{Name: "head", Size: "large"}, {Name: "eyes"}})
	require.NoError(t, err)
	p.CurrentStage = 1
	require.NoError(t, m.SetPlan(p))
	m.SetPendingQuestion("round or square eyes?")

	text := m.Summary().Render(coords.Grid{Size: 10})

	assert.Contains(t, text, "#1 preview label=line points=2: (0.250, 0.750)@[2,7] -> (0.500, 0.750)@[5,7]")
	assert.Contains(t, text, "line_top = (0.375, 0.750)")
	assert.Contains(t, text, "PLAN: face (stage 1 of 2)")
	assert.Contains(t, text, "1. head [done] size=large")
	assert.Contains(t, text, "2. eyes [todo]")
	assert.Contains(t, text, "PENDING QUESTION: round or square eyes?")
}

func TestStrokeState_Transitions(t *testing.T) {
	assert.True(t, StatePreview.CanTransitionTo(StateConfirmed))
	assert.False(t, StateConfirmed.CanTransitionTo(StatePreview))
	assert.False(t, StrokeState("bogus").Valid())
}
