package monitor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
	"github.com/fyrsmithlabs/sketchd/internal/memory"
)

func TestCanvas_Blank(t *testing.T) {
	c := NewCanvas(4, 3)
	lines := c.Lines()
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.Equal(t, "    ", l)
	}
}

func TestCanvas_MinimumSize(t *testing.T) {
	c := NewCanvas(0, 1)
	assert.Len(t, c.Lines(), 2)
	assert.Len(t, []rune(c.Lines()[0]), 2)
}

func TestCanvas_HorizontalLineAtTop(t *testing.T) {
	c := NewCanvas(5, 3)
	c.Draw([]memory.Stroke{{
		State:  memory.StateConfirmed,
		Points: []coords.Point{coords.Pt(0, 1), coords.Pt(1, 1)},
	}})
	lines := c.Lines()
	assert.Equal(t, strings.Repeat(string(confirmedCell), 5), lines[0])
	assert.Equal(t, "     ", lines[2])
}

func TestCanvas_DiagonalAndPoint(t *testing.T) {
	c := NewCanvas(3, 3)
	c.Draw([]memory.Stroke{
		{State: memory.StateConfirmed, Points: []coords.Point{coords.Pt(0, 0), coords.Pt(1, 1)}},
		{State: memory.StatePreview, Points: []coords.Point{coords.Pt(0, 1)}},
	})
	lines := c.Lines()
	assert.Equal(t, []rune(lines[0])[2], confirmedCell)
	assert.Equal(t, []rune(lines[1])[1], confirmedCell)
	assert.Equal(t, []rune(lines[2])[0], confirmedCell)
	assert.Equal(t, []rune(lines[0])[0], previewCell)
}

func TestCanvas_ConfirmedWinsOverPreview(t *testing.T) {
	c := NewCanvas(3, 3)
	line := []coords.Point{coords.Pt(0, 0.5), coords.Pt(1, 0.5)}
	c.Draw([]memory.Stroke{
		{State: memory.StateConfirmed, Points: line},
		{State: memory.StatePreview, Points: line},
	})
	assert.Equal(t, strings.Repeat(string(confirmedCell), 3), c.Lines()[1])
}

func TestCanvas_ClampsOutOfRange(t *testing.T) {
	c := NewCanvas(3, 3)
	c.Draw([]memory.Stroke{{
		State:  memory.StatePreview,
		Points: []coords.Point{coords.Pt(-1, -1), coords.Pt(2, -1)},
	}})
	assert.Equal(t, strings.Repeat(string(previewCell), 3), c.Lines()[2])
}
