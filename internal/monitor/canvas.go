package monitor

import (
	"math"
	"strings"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
	"github.com/fyrsmithlabs/sketchd/internal/memory"
)

// Canvas cell runes. Confirmed ink wins over preview ink.
const (
	blankCell     = ' '
	previewCell   = '·'
	confirmedCell = '█'
)

// Canvas rasterizes normalized strokes onto a character grid. Row 0 is
// the top of the drawing; normalized y grows upward.
type Canvas struct {
	width, height int
	cells         [][]rune
}

// NewCanvas creates a blank width x height canvas.
func NewCanvas(width, height int) *Canvas {
	if width < 2 {
		width = 2
	}
	if height < 2 {
		height = 2
	}
	cells := make([][]rune, height)
	for i := range cells {
		cells[i] = []rune(strings.Repeat(string(blankCell), width))
	}
	return &Canvas{width: width, height: height, cells: cells}
}

// cell maps a normalized point to a column and row.
func (c *Canvas) cell(p coords.Point) (int, int) {
	p, _ = coords.Clamp(p)
	col := int(math.Round(p.X * float64(c.width-1)))
	row := int(math.Round((1 - p.Y) * float64(c.height-1)))
	return col, row
}

func (c *Canvas) plot(col, row int, r rune) {
	if c.cells[row][col] == confirmedCell {
		return
	}
	c.cells[row][col] = r
}

// line draws with Bresenham's algorithm.
func (c *Canvas) line(a, b coords.Point, r rune) {
	x0, y0 := c.cell(a)
	x1, y1 := c.cell(b)
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		c.plot(x0, y0, r)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

// Draw adds strokes to the canvas.
func (c *Canvas) Draw(strokes []memory.Stroke) {
	// Preview first so confirmed ink overwrites it.
	for _, want := range []memory.StrokeState{memory.StatePreview, memory.StateConfirmed} {
		r := previewCell
		if want == memory.StateConfirmed {
			r = confirmedCell
		}
		for _, s := range strokes {
			if s.State != want || len(s.Points) == 0 {
				continue
			}
			if len(s.Points) == 1 {
				col, row := c.cell(s.Points[0])
				c.plot(col, row, r)
				continue
			}
			for i := 1; i < len(s.Points); i++ {
				c.line(s.Points[i-1], s.Points[i], r)
			}
		}
	}
}

// Lines returns the rendered rows.
func (c *Canvas) Lines() []string {
	out := make([]string, c.height)
	for i, row := range c.cells {
		out[i] = string(row)
	}
	return out
}

// String renders the canvas.
func (c *Canvas) String() string {
	return strings.Join(c.Lines(), "\n")
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
