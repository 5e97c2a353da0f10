package coords

import (
	"fmt"
	"math"
)

// Box is the physical drawing area in millimetres. Axes are configured
// independently.
type Box struct {
	MinX float64 `json:"min_x" koanf:"min_x"`
	MaxX float64 `json:"max_x" koanf:"max_x"`
	MinY float64 `json:"min_y" koanf:"min_y"`
	MaxY float64 `json:"max_y" koanf:"max_y"`
}

// DefaultBox is the 200mm square the arm reaches comfortably.
func DefaultBox() Box {
	return Box{MinX: 0, MaxX: 200, MinY: 0, MaxY: 200}
}

// Validate checks that each axis has a positive, finite extent.
func (b Box) Validate() error {
	for _, v := range []float64{b.MinX, b.MaxX, b.MinY, b.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite bound", ErrInvalidBox)
		}
	}
	if b.MaxX <= b.MinX {
		return fmt.Errorf("%w: max_x (%g) must exceed min_x (%g)", ErrInvalidBox, b.MaxX, b.MinX)
	}
	if b.MaxY <= b.MinY {
		return fmt.Errorf("%w: max_y (%g) must exceed min_y (%g)", ErrInvalidBox, b.MaxY, b.MinY)
	}
	return nil
}

// Mapper converts between the normalized canvas and a physical Box.
// It is immutable and safe for concurrent use.
type Mapper struct {
	box Box
}

// NewMapper creates a Mapper for box.
func NewMapper(box Box) (*Mapper, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	return &Mapper{box: box}, nil
}

// Box returns the physical box.
func (m *Mapper) Box() Box {
	return m.box
}

// clampUnit clamps v into [0,1]. NaN becomes 0.
func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Clamp forces p into the canvas and reports whether anything changed.
func Clamp(p Point) (Point, bool) {
	c := Point{X: clampUnit(p.X), Y: clampUnit(p.Y)}
	return c, c != p || math.IsNaN(p.X) || math.IsNaN(p.Y)
}

// ClampStrokes clamps every point of every stroke. The input is not
// modified. One BoundsError is produced per clamped axis value.
func ClampStrokes(strokes [][]Point) ([][]Point, []BoundsError) {
	out := make([][]Point, len(strokes))
	var warnings []BoundsError
	for i, stroke := range strokes {
		line := make([]Point, len(stroke))
		for j, p := range stroke {
			c, changed := Clamp(p)
			if changed {
				if c.X != p.X || math.IsNaN(p.X) {
					warnings = append(warnings, BoundsError{Stroke: i, Point: j, Axis: "x", Original: p.X, Clamped: c.X})
				}
				if c.Y != p.Y || math.IsNaN(p.Y) {
					warnings = append(warnings, BoundsError{Stroke: i, Point: j, Axis: "y", Original: p.Y, Clamped: c.Y})
				}
			}
			line[j] = c
		}
		out[i] = line
	}
	return out, warnings
}

// ToPhysical maps a normalized point to millimetres. The point is clamped first.
func (m *Mapper) ToPhysical(p Point) Point {
	c, _ := Clamp(p)
	return Point{
		X: m.box.MinX + c.X*(m.box.MaxX-m.box.MinX),
		Y: m.box.MinY + c.Y*(m.box.MaxY-m.box.MinY),
	}
}

// ToNormalized maps a physical point back to the canvas, clamping to [0,1].
func (m *Mapper) ToNormalized(p Point) Point {
	n := Point{
		X: (p.X - m.box.MinX) / (m.box.MaxX - m.box.MinX),
		Y: (p.Y - m.box.MinY) / (m.box.MaxY - m.box.MinY),
	}
	c, _ := Clamp(n)
	return c
}

// ClampPhysical forces a physical point inside the box.
func (m *Mapper) ClampPhysical(p Point) Point {
	return Point{
		X: math.Max(m.box.MinX, math.Min(m.box.MaxX, p.X)),
		Y: math.Max(m.box.MinY, math.Min(m.box.MaxY, p.Y)),
	}
}

// Polylines maps strokes to physical polylines ready for execution.
func (m *Mapper) Polylines(strokes [][]Point) [][]Point {
	out := make([][]Point, len(strokes))
	for i, stroke := range strokes {
		line := make([]Point, len(stroke))
		for j, p := range stroke {
			line[j] = m.ToPhysical(p)
		}
		out[i] = line
	}
	return out
}

// Verify round-trips the canvas corners and centre through the mapper
// and returns an error if any point drifts by more than tol.
func (m *Mapper) Verify(tol float64) error {
	probes := []Point{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0.5, 0.5}, {0.25, 0.75}}
	for _, p := range probes {
		back := m.ToNormalized(m.ToPhysical(p))
		if back.Distance(p) > tol {
			return fmt.Errorf("mapper round trip drift at %s: got %s", p, back)
		}
	}
	return nil
}

// Grid is an N x N presentation overlay on the canvas.
type Grid struct {
	Size int
}

// DefaultGridSize is the overlay resolution shown to the oracle.
const DefaultGridSize = 10

// Cell returns the grid cell containing p. Points on the far edge fall
// into the last cell.
func (g Grid) Cell(p Point) (int, int) {
	if g.Size <= 0 {
		return 0, 0
	}
	c, _ := Clamp(p)
	col := int(c.X * float64(g.Size))
	row := int(c.Y * float64(g.Size))
	if col >= g.Size {
		col = g.Size - 1
	}
	if row >= g.Size {
		row = g.Size - 1
	}
	return col, row
}

// Annotate formats p with its grid cell, e.g. "(0.250, 0.750)@[2,7]".
// A zero-size grid returns the bare point.
func (g Grid) Annotate(p Point) string {
	if g.Size <= 0 {
		return p.String()
	}
	col, row := g.Cell(p)
	return fmt.Sprintf("%s@[%d,%d]", p, col, row)
}
