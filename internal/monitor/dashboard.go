package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/sketchd/internal/client"
	api "github.com/fyrsmithlabs/sketchd/internal/http"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30

	canvasWidth  = 48
	canvasHeight = 20
)

// Model is the BubbleTea dashboard model for one session.
type Model struct {
	client     *client.Client
	sessionID  string
	interval   time.Duration
	lastUpdate time.Time
	state      *api.StateResponse
	err        error
	quitting   bool

	// strokeHistory holds the stroke count seen on each refresh.
	strokeHistory []float64
	planProgress  progress.Model
}

// Pen-on-paper palette: ink for data, graphite for chrome.
const (
	inkColor      = lipgloss.Color("39")
	paperColor    = lipgloss.Color("255")
	graphiteColor = lipgloss.Color("244")
	ruleColor     = lipgloss.Color("240")
)

func fg(c lipgloss.Color, bold bool) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c).Bold(bold)
}

var (
	headerStyle    = fg(paperColor, true).Background(inkColor).Padding(0, 1)
	sectionStyle   = fg(inkColor, true).MarginTop(1)
	labelStyle     = fg(graphiteColor, false)
	valueStyle     = fg(paperColor, true)
	dimStyle       = fg(graphiteColor, false)
	healthyStyle   = fg(lipgloss.Color("42"), true)
	warningStyle   = fg(lipgloss.Color("214"), true)
	errorStyle     = fg(lipgloss.Color("160"), true)
	footerStyle    = fg(graphiteColor, false).MarginTop(1)
	footerKeyStyle = fg(inkColor, true)
	sparklineStyle = fg(inkColor, false)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ruleColor).
			Padding(1, 2)
	canvasStyle = fg(paperColor, false).
			Border(lipgloss.NormalBorder()).
			BorderForeground(ruleColor)
)

// NewModel creates a dashboard following sessionID.
func NewModel(c *client.Client, sessionID string, interval time.Duration) Model {
	return Model{
		client:        c,
		sessionID:     sessionID,
		interval:      interval,
		strokeHistory: make([]float64, 0, historySize),
		planProgress: progress.New(
			progress.WithSolidFill(string(inkColor)),
			progress.WithWidth(canvasWidth-8),
		),
	}
}

// statusBadge summarizes the session.
func statusBadge(s *api.StateResponse) string {
	switch {
	case s == nil:
		return dimStyle.Render("… LOADING")
	case s.Stopped:
		return errorStyle.Render("■ STOPPED")
	case len(s.State.Preview()) > 0:
		return warningStyle.Render("◐ PREVIEW")
	default:
		return healthyStyle.Render("✓ READY")
	}
}

// recordStrokes keeps the last historySize stroke counts.
func recordStrokes(history []float64, n int) []float64 {
	if len(history) == historySize {
		copy(history, history[1:])
		history = history[:historySize-1]
	}
	return append(history, float64(n))
}

func strokeSparkline(counts []float64) string {
	if len(counts) == 0 {
		return dimStyle.Render("waiting for data")
	}
	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, c := range counts {
		spark.Push(c)
	}
	spark.Draw()
	return sparklineStyle.Render(spark.View())
}

type tickMsg time.Time
type stateMsg *api.StateResponse
type errMsg error

// Init starts polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchState(m.client, m.sessionID),
	)
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchState(c *client.Client, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s, err := c.State(ctx, id)
		if err != nil {
			return errMsg(err)
		}
		return stateMsg(s)
	}
}

// toggleStop stops a running session or resumes a stopped one, then
// refreshes.
func toggleStop(c *client.Client, id string, stopped bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var err error
		if stopped {
			err = c.Resume(ctx, id)
		} else {
			err = c.Stop(ctx, id)
		}
		if err != nil {
			return errMsg(err)
		}
		return fetchState(c, id)()
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchState(m.client, m.sessionID)
		case "s":
			stopped := m.state != nil && m.state.Stopped
			return m, toggleStop(m.client, m.sessionID, stopped)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchState(m.client, m.sessionID),
		)

	case stateMsg:
		s := (*api.StateResponse)(msg)
		m.state = s
		m.strokeHistory = recordStrokes(m.strokeHistory, len(s.State.Strokes))
		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	header := headerStyle.Render("sketchd Monitor")

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(errorStyle.Render("⚠ Cannot read session") + "\n\n")
	b.WriteString(dimStyle.Render("Server: ") + valueStyle.Render(m.client.BaseURL()) + "\n")
	b.WriteString(dimStyle.Render("Session: ") + valueStyle.Render(m.sessionID) + "\n")
	b.WriteString(dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n\n")
	b.WriteString(footerStyle.Render("[q] quit  [r] retry") + "\n")

	return containerStyle.Render(header + "\n" + b.String())
}

func (m Model) renderDashboard() string {
	var b strings.Builder

	lastUpdate := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdate = m.lastUpdate.Format("3:04:05 PM")
	}
	b.WriteString(headerStyle.Render(" sketchd Monitor ") + "\n")
	b.WriteString(fmt.Sprintf("%s   %s   %s\n",
		statusBadge(m.state),
		valueStyle.Render(m.sessionID),
		dimStyle.Render(lastUpdate)))

	if m.state == nil {
		return containerStyle.Render(b.String())
	}
	snap := m.state.State

	canvas := NewCanvas(canvasWidth, canvasHeight)
	canvas.Draw(snap.Strokes)
	b.WriteString("\n" + canvasStyle.Render(canvas.String()) + "\n")

	b.WriteString("\n" + sectionStyle.Render("┃ Strokes") + "\n")
	b.WriteString(labelStyle.Render("  Count: ") +
		valueStyle.Render(FormatStrokes(len(snap.Confirmed()), len(snap.Preview()))) +
		"   " + strokeSparkline(m.strokeHistory) + "\n")
	b.WriteString(labelStyle.Render("  Pen: ") + valueStyle.Render(FormatPoint(snap.LastPosition)) + "\n")
	if len(snap.Groups) > 0 {
		labels := make([]string, 0, len(snap.Groups))
		for _, g := range snap.Groups {
			labels = append(labels, g.Label)
		}
		b.WriteString(labelStyle.Render("  Labels: ") + dimStyle.Render(strings.Join(labels, ", ")) + "\n")
	}

	if p := snap.Plan; p != nil {
		b.WriteString("\n" + sectionStyle.Render("┃ Plan") + "\n")
		b.WriteString(labelStyle.Render("  Summary: ") + valueStyle.Render(p.Summary) + "\n")
		ratio := 0.0
		if p.TotalStages > 0 {
			ratio = float64(p.CurrentStage) / float64(p.TotalStages)
		}
		b.WriteString(labelStyle.Render("  Stage: ") +
			m.planProgress.ViewAs(ratio) + " " +
			dimStyle.Render(FormatStage(p.CurrentStage, p.TotalStages)) + "\n")
		if rest := p.Remaining(); len(rest) > 0 {
			names := make([]string, 0, len(rest))
			for _, c := range rest {
				names = append(names, c.Name)
			}
			b.WriteString(labelStyle.Render("  Next: ") + dimStyle.Render(strings.Join(names, " → ")) + "\n")
		}
	}

	if q := snap.PendingQuestion; q != "" {
		b.WriteString("\n" + sectionStyle.Render("┃ Question") + "\n")
		b.WriteString("  " + warningStyle.Render(q) + "\n")
	}

	stopKey := " stop  "
	if m.state.Stopped {
		stopKey = " resume  "
	}
	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerKeyStyle.Render("[s]") + footerStyle.Render(stopKey) +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
	b.WriteString("\n" + footer)

	return containerStyle.Render(b.String())
}
