package memory

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
)

// StrokeState is the lifecycle state of a stroke.
type StrokeState string

const (
	StatePreview   StrokeState = "preview"
	StateConfirmed StrokeState = "confirmed"
)

// ValidTransitions defines allowed stroke state transitions.
var ValidTransitions = map[StrokeState][]StrokeState{
	StatePreview:   {StateConfirmed},
	StateConfirmed: {}, // terminal
}

// CanTransitionTo checks if a transition from s to target is valid.
func (s StrokeState) CanTransitionTo(target StrokeState) bool {
	for _, t := range ValidTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known state.
func (s StrokeState) Valid() bool {
	_, ok := ValidTransitions[s]
	return ok
}

// Stroke is a single pen-down polyline in normalized coordinates.
type Stroke struct {
	ID     int            `json:"id"`
	Points []coords.Point `json:"points"`
	Label  string         `json:"label,omitempty"`
	State  StrokeState    `json:"state"`
}

// Bounds returns the stroke's bounding box.
func (s Stroke) Bounds() coords.Rect {
	return coords.Bounds(s.Points)
}

func (s Stroke) clone() Stroke {
	s.Points = append([]coords.Point(nil), s.Points...)
	return s
}

// Anchor names, in rendering order.
const (
	AnchorCenter      = "center"
	AnchorTop         = "top"
	AnchorBottom      = "bottom"
	AnchorLeft        = "left"
	AnchorRight       = "right"
	AnchorTopLeft     = "top_left"
	AnchorTopRight    = "top_right"
	AnchorBottomLeft  = "bottom_left"
	AnchorBottomRight = "bottom_right"
)

// AnchorNames lists every derived anchor.
var AnchorNames = []string{
	AnchorCenter, AnchorTop, AnchorBottom, AnchorLeft, AnchorRight,
	AnchorTopLeft, AnchorTopRight, AnchorBottomLeft, AnchorBottomRight,
}

// Anchor is a named reference point derived from a label group.
type Anchor struct {
	Name  string       `json:"name"`
	Point coords.Point `json:"point"`
}

// AnchorSet holds the nine anchors of one label group. The canvas y axis
// grows upward, so Top sits on the box's MaxY edge.
type AnchorSet map[string]coords.Point

// DeriveAnchors computes the anchor set of a bounding box.
func DeriveAnchors(r coords.Rect) AnchorSet {
	c := r.Center()
	return AnchorSet{
		AnchorCenter:      c,
		AnchorTop:         coords.Pt(c.X, r.MaxY),
		AnchorBottom:      coords.Pt(c.X, r.MinY),
		AnchorLeft:        coords.Pt(r.MinX, c.Y),
		AnchorRight:       coords.Pt(r.MaxX, c.Y),
		AnchorTopLeft:     coords.Pt(r.MinX, r.MaxY),
		AnchorTopRight:    coords.Pt(r.MaxX, r.MaxY),
		AnchorBottomLeft:  coords.Pt(r.MinX, r.MinY),
		AnchorBottomRight: coords.Pt(r.MaxX, r.MinY),
	}
}

// Ordered returns the anchors in AnchorNames order.
func (a AnchorSet) Ordered() []Anchor {
	out := make([]Anchor, 0, len(a))
	for _, name := range AnchorNames {
		if p, ok := a[name]; ok {
			out = append(out, Anchor{Name: name, Point: p})
		}
	}
	return out
}

// Group is a derived view of the strokes sharing one label.
type Group struct {
	Label     string      `json:"label"`
	StrokeIDs []int       `json:"stroke_ids"`
	Bounds    coords.Rect `json:"bounds"`
	Anchors   AnchorSet   `json:"anchors"`
	Confirmed bool        `json:"confirmed"`
}

// Component is one planned part of a multi-stage drawing.
type Component struct {
	Name     string `json:"name"`
	Size     string `json:"size,omitempty"`
	Position string `json:"position,omitempty"`
}

// Plan is a decomposition of a complex drawing into ordered components.
// CurrentStage counts components already drawn; stage 0 means the plan
// was only announced.
type Plan struct {
	Summary      string      `json:"summary"`
	Components   []Component `json:"components"`
	CurrentStage int         `json:"current_stage"`
	TotalStages  int         `json:"total_stages"`
}

// NewPlan builds a stage 0 plan.
func NewPlan(summary string, components []Component) (*Plan, error) {
	p := &Plan{
		Summary:     summary,
		Components:  append([]Component(nil), components...),
		TotalStages: len(components),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate enforces the plan invariants.
func (p *Plan) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil plan", ErrInvalidPlan)
	}
	if len(p.Components) == 0 {
		return fmt.Errorf("%w: no components", ErrInvalidPlan)
	}
	if p.TotalStages != len(p.Components) {
		return fmt.Errorf("%w: total_stages %d does not match %d components", ErrInvalidPlan, p.TotalStages, len(p.Components))
	}
	if p.CurrentStage < 0 || p.CurrentStage > p.TotalStages {
		return fmt.Errorf("%w: current_stage %d outside [0,%d]", ErrInvalidPlan, p.CurrentStage, p.TotalStages)
	}
	for i, c := range p.Components {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: component %d has no name", ErrInvalidPlan, i)
		}
	}
	return nil
}

// Remaining returns the components not yet drawn.
func (p *Plan) Remaining() []Component {
	if p == nil || p.CurrentStage >= len(p.Components) {
		return nil
	}
	return append([]Component(nil), p.Components[p.CurrentStage:]...)
}

// Complete reports whether every component has been drawn.
func (p *Plan) Complete() bool {
	return p != nil && p.CurrentStage >= p.TotalStages
}

// Clone returns a deep copy.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.Components = append([]Component(nil), p.Components...)
	return &c
}

// IngestionIssue describes a stroke refused by AddStrokes.
type IngestionIssue struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// AddResult reports the outcome of AddStrokes.
type AddResult struct {
	// IDs of stored strokes in input order, skipping rejected ones.
	IDs []int `json:"ids"`
	// Labels maps stored stroke id to its final label.
	Labels         map[int]string       `json:"labels,omitempty"`
	Rejected       []IngestionIssue     `json:"rejected,omitempty"`
	BoundsWarnings []coords.BoundsError `json:"bounds_warnings,omitempty"`
}
