package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
)

// DefaultLastPosition is where the pen is assumed to rest before the
// first stroke.
var DefaultLastPosition = coords.Pt(0.5, 0.5)

// Memory is the spatial ledger of one drawing session. It is safe for
// concurrent use; the controller additionally serializes instructions.
type Memory struct {
	mu       sync.RWMutex
	strokes  []Stroke
	nextID   int
	anchors  map[string]AnchorSet
	plan     *Plan
	question string
	logger   *Logger
}

// Option configures a Memory.
type Option func(*Memory)

// WithLogger sets the logger.
func WithLogger(l *Logger) Option {
	return func(m *Memory) {
		m.logger = l
	}
}

// New creates an empty ledger.
func New(opts ...Option) *Memory {
	m := &Memory{
		nextID:  1,
		anchors: make(map[string]AnchorSet),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = NewLogger(nil)
	}
	return m
}

// AddStrokes clamps, labels and appends strokes in input order.
//
// labels maps an input index to a label. Strokes sharing a label within
// one call form a single group; a label that already exists in the ledger
// is renamed with the next free numeric suffix. Strokes with fewer than
// two points are skipped and reported in AddResult.Rejected.
func (m *Memory) AddStrokes(strokes [][]coords.Point, labels map[int]string, state StrokeState) (AddResult, error) {
	if state != StatePreview && state != StateConfirmed {
		return AddResult{}, fmt.Errorf("%w: %q", ErrInvalidState, state)
	}

	clamped, warnings := coords.ClampStrokes(strokes)

	m.mu.Lock()
	defer m.mu.Unlock()

	result := AddResult{
		Labels:         make(map[int]string),
		BoundsWarnings: warnings,
	}
	accepted := make(map[int]string, len(labels))
	for i, label := range labels {
		if i >= 0 && i < len(clamped) && len(clamped[i]) >= 2 {
			accepted[i] = label
		}
	}
	renamed := m.renameLabels(accepted)
	touched := make(map[string]struct{})

	for i, points := range clamped {
		if len(points) < 2 {
			result.Rejected = append(result.Rejected, IngestionIssue{
				Index:  i,
				Reason: fmt.Sprintf("%v: got %d", ErrTooFewPoints, len(points)),
			})
			m.logger.StrokeRejected(i, len(points))
			continue
		}
		s := Stroke{
			ID:     m.nextID,
			Points: points,
			Label:  renamed[strings.TrimSpace(labels[i])],
			State:  state,
		}
		m.nextID++
		m.strokes = append(m.strokes, s)
		result.IDs = append(result.IDs, s.ID)
		if s.Label != "" {
			result.Labels[s.ID] = s.Label
			touched[s.Label] = struct{}{}
		}
	}

	m.recomputeAnchors(touched)
	m.logger.StrokesAdded(len(result.IDs), len(result.Rejected), len(warnings), string(state))
	return result, nil
}

// renameLabels maps each requested label to the label it will be stored
// under. Only labels of strokes that will be stored may be passed, or a
// numbered name is reserved for nothing. Caller holds the lock.
func (m *Memory) renameLabels(labels map[int]string) map[string]string {
	existing := make(map[string]struct{}, len(m.anchors))
	for _, s := range m.strokes {
		if s.Label != "" {
			existing[s.Label] = struct{}{}
		}
	}

	// Deterministic order so "square" and "square" twice in a map get stable names.
	idx := make([]int, 0, len(labels))
	for i := range labels {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	out := map[string]string{"": ""}
	for _, i := range idx {
		want := strings.TrimSpace(labels[i])
		if _, done := out[want]; done {
			continue
		}
		name := want
		for n := 2; ; n++ {
			if _, taken := existing[name]; !taken {
				break
			}
			name = fmt.Sprintf("%s_%d", want, n)
		}
		existing[name] = struct{}{}
		out[want] = name
	}
	return out
}

// recomputeAnchors rebuilds the anchor sets of the given labels from the
// strokes currently stored. Labels with no strokes left lose their anchors.
// Caller holds the lock.
func (m *Memory) recomputeAnchors(labels map[string]struct{}) {
	for label := range labels {
		var lines [][]coords.Point
		for _, s := range m.strokes {
			if s.Label == label {
				lines = append(lines, s.Points)
			}
		}
		if len(lines) == 0 {
			delete(m.anchors, label)
			continue
		}
		m.anchors[label] = DeriveAnchors(coords.Bounds(lines...))
	}
}

// ConfirmPreviewStrokes promotes every preview stroke to confirmed and
// returns how many were promoted.
func (m *Memory) ConfirmPreviewStrokes() int {
	return len(m.ConfirmPreview())
}

// ConfirmPreview promotes every preview stroke and returns copies of the
// promoted strokes in ledger order. Nothing changes when no preview
// strokes exist.
func (m *Memory) ConfirmPreview() []Stroke {
	m.mu.Lock()
	defer m.mu.Unlock()

	var promoted []Stroke
	for i := range m.strokes {
		if m.strokes[i].State.CanTransitionTo(StateConfirmed) {
			m.strokes[i].State = StateConfirmed
			promoted = append(promoted, m.strokes[i].clone())
		}
	}
	if len(promoted) > 0 {
		m.logger.PreviewConfirmed(len(promoted))
	}
	return promoted
}

// RejectPreviewStrokes removes every preview stroke and the anchors derived
// from them, returning the number removed.
func (m *Memory) RejectPreviewStrokes() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.strokes[:0:0]
	touched := make(map[string]struct{})
	removed := 0
	for _, s := range m.strokes {
		if s.State == StatePreview {
			removed++
			if s.Label != "" {
				touched[s.Label] = struct{}{}
			}
			continue
		}
		kept = append(kept, s)
	}
	if removed == 0 {
		return 0
	}
	m.strokes = kept
	m.recomputeAnchors(touched)
	m.logger.PreviewRejected(removed)
	return removed
}

// UndoLast removes the last n strokes from the ledger and returns them.
// The ink stays on paper; this only affects what later instructions see.
func (m *Memory) UndoLast(n int) []Stroke {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || len(m.strokes) == 0 {
		return nil
	}
	if n > len(m.strokes) {
		n = len(m.strokes)
	}
	cut := len(m.strokes) - n
	removed := make([]Stroke, 0, n)
	touched := make(map[string]struct{})
	for _, s := range m.strokes[cut:] {
		removed = append(removed, s.clone())
		if s.Label != "" {
			touched[s.Label] = struct{}{}
		}
	}
	m.strokes = append([]Stroke(nil), m.strokes[:cut]...)
	m.recomputeAnchors(touched)
	m.logger.StrokesUndone(len(removed))
	return removed
}

// Strokes returns copies of the strokes with the given ids, in ledger order.
func (m *Memory) Strokes(ids ...int) []Stroke {
	want := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Stroke
	for _, s := range m.strokes {
		if _, ok := want[s.ID]; ok {
			out = append(out, s.clone())
		}
	}
	return out
}

// PreviewCount returns the number of preview strokes.
func (m *Memory) PreviewCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.strokes {
		if s.State == StatePreview {
			n++
		}
	}
	return n
}

// Len returns the number of strokes in the ledger.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.strokes)
}

// Anchor looks up a single anchor, e.g. Anchor("house", "top").
func (m *Memory) Anchor(label, name string) (coords.Point, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.anchors[label][name]
	return p, ok
}

// LastPosition is the end point of the most recent stroke.
func (m *Memory) LastPosition() coords.Point {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastPosition()
}

func (m *Memory) lastPosition() coords.Point {
	if len(m.strokes) == 0 {
		return DefaultLastPosition
	}
	pts := m.strokes[len(m.strokes)-1].Points
	return pts[len(pts)-1]
}

// Plan returns a copy of the pending plan, or nil.
func (m *Memory) Plan() *Plan {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.plan.Clone()
}

// SetPlan replaces the pending plan after validating it.
func (m *Memory) SetPlan(p *Plan) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plan = p.Clone()
	return nil
}

// ClearPlan drops the pending plan.
func (m *Memory) ClearPlan() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plan = nil
}

// PendingQuestion returns the clarifying question awaiting an answer.
func (m *Memory) PendingQuestion() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.question
}

// SetPendingQuestion records a clarifying question; empty clears it.
func (m *Memory) SetPendingQuestion(q string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.question = strings.TrimSpace(q)
}

// Summary returns a complete snapshot of the ledger.
func (m *Memory) Summary() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	strokes := make([]Stroke, len(m.strokes))
	for i, s := range m.strokes {
		strokes[i] = s.clone()
	}
	return Snapshot{
		Strokes:         strokes,
		Groups:          groupStrokes(strokes),
		Plan:            m.plan.Clone(),
		PendingQuestion: m.question,
		LastPosition:    m.lastPosition(),
		NextID:          m.nextID,
	}
}

// Restore replaces the ledger with a previously taken snapshot. Anchors
// are rederived; the snapshot's groups are ignored.
func (m *Memory) Restore(s Snapshot) error {
	prev := 0
	labels := make(map[string]struct{})
	for _, st := range s.Strokes {
		if st.ID <= prev {
			return fmt.Errorf("%w: stroke ids must be strictly increasing (%d after %d)", ErrInvalidSnapshot, st.ID, prev)
		}
		if len(st.Points) < 2 {
			return fmt.Errorf("%w: stroke %d: %v", ErrInvalidSnapshot, st.ID, ErrTooFewPoints)
		}
		if !st.State.Valid() {
			return fmt.Errorf("%w: stroke %d: %v %q", ErrInvalidSnapshot, st.ID, ErrInvalidState, st.State)
		}
		prev = st.ID
		if st.Label != "" {
			labels[st.Label] = struct{}{}
		}
	}
	if s.Plan != nil {
		if err := s.Plan.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
	}

	strokes := make([]Stroke, len(s.Strokes))
	for i, st := range s.Strokes {
		st = st.clone()
		for j, p := range st.Points {
			st.Points[j], _ = coords.Clamp(p)
		}
		strokes[i] = st
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.strokes = strokes
	m.nextID = prev + 1
	if s.NextID > m.nextID {
		m.nextID = s.NextID
	}
	m.anchors = make(map[string]AnchorSet)
	m.recomputeAnchors(labels)
	m.plan = s.Plan.Clone()
	m.question = s.PendingQuestion
	return nil
}
