package memory

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
)

// Snapshot is a complete, immutable copy of a ledger. It is the form sent
// to the oracle, persisted by the session store and returned by the API.
type Snapshot struct {
	Strokes         []Stroke     `json:"strokes"`
	Groups          []Group      `json:"groups"`
	Plan            *Plan        `json:"plan,omitempty"`
	PendingQuestion string       `json:"pending_question,omitempty"`
	LastPosition    coords.Point `json:"last_position"`
	NextID          int          `json:"next_id"`
}

// Empty reports whether nothing has been drawn.
func (s Snapshot) Empty() bool {
	return len(s.Strokes) == 0
}

// Confirmed returns the confirmed strokes.
func (s Snapshot) Confirmed() []Stroke {
	return filter(s.Strokes, StateConfirmed)
}

// Preview returns the preview strokes.
func (s Snapshot) Preview() []Stroke {
	return filter(s.Strokes, StatePreview)
}

// ConfirmedGroups groups only the confirmed strokes. This is the geometry
// new candidates are validated against.
func (s Snapshot) ConfirmedGroups() []Group {
	return groupStrokes(s.Confirmed())
}

func filter(strokes []Stroke, state StrokeState) []Stroke {
	var out []Stroke
	for _, st := range strokes {
		if st.State == state {
			out = append(out, st)
		}
	}
	return out
}

// groupStrokes merges labeled strokes by label in order of first
// appearance. Each unlabeled stroke forms its own group without anchors.
func groupStrokes(strokes []Stroke) []Group {
	var groups []Group
	index := make(map[string]int)
	lines := make(map[int][][]coords.Point)

	for _, st := range strokes {
		if st.Label == "" {
			groups = append(groups, Group{
				StrokeIDs: []int{st.ID},
				Bounds:    st.Bounds(),
				Confirmed: st.State == StateConfirmed,
			})
			continue
		}
		i, ok := index[st.Label]
		if !ok {
			i = len(groups)
			index[st.Label] = i
			groups = append(groups, Group{Label: st.Label, Confirmed: true})
		}
		groups[i].StrokeIDs = append(groups[i].StrokeIDs, st.ID)
		groups[i].Confirmed = groups[i].Confirmed && st.State == StateConfirmed
		lines[i] = append(lines[i], st.Points)
	}
	for i, ls := range lines {
		groups[i].Bounds = coords.Bounds(ls...)
		groups[i].Anchors = DeriveAnchors(groups[i].Bounds)
	}
	return groups
}

// Name returns the group's label, or a stable name for an unlabeled stroke.
func (g Group) Name() string {
	if g.Label != "" {
		return g.Label
	}
	if len(g.StrokeIDs) > 0 {
		return fmt.Sprintf("stroke#%d", g.StrokeIDs[0])
	}
	return "unlabeled"
}

// Render produces the oracle-facing description of the snapshot. Every
// stroke is listed with all of its points; grid only adds cell annotations.
func (s Snapshot) Render(grid coords.Grid) string {
	var b strings.Builder

	b.WriteString("CANVAS: normalized [0,1]x[0,1], origin bottom-left, y grows upward")
	if grid.Size > 0 {
		fmt.Fprintf(&b, ", grid %dx%d cells shown as @[col,row]", grid.Size, grid.Size)
	}
	b.WriteString("\n")

	if s.Empty() {
		b.WriteString("DRAWN SO FAR: nothing, the canvas is empty\n")
	} else {
		fmt.Fprintf(&b, "STROKES (%d):\n", len(s.Strokes))
		for _, st := range s.Strokes {
			label := st.Label
			if label == "" {
				label = "-"
			}
			fmt.Fprintf(&b, "  #%d %s label=%s points=%d:", st.ID, st.State, label, len(st.Points))
			for i, p := range st.Points {
				if i > 0 {
					b.WriteString(" ->")
				}
				b.WriteString(" ")
				b.WriteString(grid.Annotate(p))
			}
			b.WriteString("\n")
		}

		b.WriteString("COMPONENTS:\n")
		for _, g := range s.Groups {
			state := "confirmed"
			if !g.Confirmed {
				state = "preview"
			}
			fmt.Fprintf(&b, "  %s (%s) strokes=%v bbox x[%.3f..%.3f] y[%.3f..%.3f]\n",
				g.Name(), state, g.StrokeIDs, g.Bounds.MinX, g.Bounds.MaxX, g.Bounds.MinY, g.Bounds.MaxY)
			for _, a := range g.Anchors.Ordered() {
				fmt.Fprintf(&b, "    %s_%s = %s\n", g.Label, a.Name, a.Point)
			}
		}
	}

	fmt.Fprintf(&b, "PEN POSITION: %s\n", s.LastPosition)

	if s.Plan != nil {
		fmt.Fprintf(&b, "PLAN: %s (stage %d of %d)\n", s.Plan.Summary, s.Plan.CurrentStage, s.Plan.TotalStages)
		for i, c := range s.Plan.Components {
			status := "todo"
			if i < s.Plan.CurrentStage {
				status = "done"
			}
			fmt.Fprintf(&b, "  %d. %s [%s]", i+1, c.Name, status)
			if c.Size != "" {
				fmt.Fprintf(&b, " size=%s", c.Size)
			}
			if c.Position != "" {
				fmt.Fprintf(&b, " position=%s", c.Position)
			}
			b.WriteString("\n")
		}
	}

	if s.PendingQuestion != "" {
		fmt.Fprintf(&b, "PENDING QUESTION: %s\n", s.PendingQuestion)
	}
	return b.String()
}
