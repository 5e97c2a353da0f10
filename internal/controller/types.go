package controller

import (
	"github.com/fyrsmithlabs/sketchd/internal/execution"
	"github.com/fyrsmithlabs/sketchd/internal/memory"
	"github.com/fyrsmithlabs/sketchd/internal/validator"
)

// Config controls the repair loop and commit behaviour.
type Config struct {
	// RepairBudget is the number of repair requests per stage.
	RepairBudget int `json:"repair_budget" koanf:"repair_budget"`
	// PreviewMode commits strokes as preview; Confirm executes them.
	PreviewMode bool `json:"preview_mode" koanf:"preview_mode"`
	// ExecuteInvalidFallback executes a best-of fallback that failed
	// validation. When false such a fallback is kept as preview.
	ExecuteInvalidFallback bool `json:"execute_invalid_fallback" koanf:"execute_invalid_fallback"`
}

// DefaultConfig returns a repair budget of 1 with preview mode on.
func DefaultConfig() *Config {
	return &Config{
		RepairBudget:           1,
		PreviewMode:            true,
		ExecuteInvalidFallback: true,
	}
}

// User-facing messages.
const (
	MessageStopped      = "Stopped. Type 'continue' to resume."
	MessageStillStopped = "System is stopped. Type 'continue' to resume or 'quit' to exit."
	MessageResumed      = "Resumed. What would you like to draw?"
	MessageReady        = "I'm ready. What would you like to draw?"
	MessageNothingToAdd = "Nothing to confirm."
	MessageFailed       = "Sorry, I could not produce a drawing for that. Please try rephrasing the instruction."
)

// StageResult describes one committed or answered stage.
type StageResult struct {
	Index     int      `json:"index"`
	Component string   `json:"component,omitempty"`
	Attempts  int      `json:"attempts"`
	Trace     []State  `json:"trace"`
	Score     float64  `json:"score"`
	Valid     bool     `json:"valid"`
	Fallback  bool     `json:"fallback"`
	Message   string   `json:"message,omitempty"`
	StrokeIDs []int    `json:"stroke_ids,omitempty"`
	Labels    []string `json:"labels,omitempty"`
	// StrokeState is the state new strokes were stored in.
	StrokeState    memory.StrokeState      `json:"stroke_state,omitempty"`
	Issues         []validator.Issue       `json:"issues,omitempty"`
	Rejected       []memory.IngestionIssue `json:"rejected,omitempty"`
	BoundsWarnings int                     `json:"bounds_warnings,omitempty"`
	Execution      *execution.Report       `json:"execution,omitempty"`
}

// Outcome is the result of one instruction.
type Outcome struct {
	InstructionID string `json:"instruction_id"`
	// Message concatenates the assistant messages of every stage.
	Message string        `json:"message"`
	Stages  []StageResult `json:"stages,omitempty"`
	// Plan is the plan still pending after the instruction.
	Plan     *memory.Plan `json:"plan,omitempty"`
	Question string       `json:"question,omitempty"`
	// Stopped is set when the stop signal is raised.
	Stopped bool `json:"stopped"`
	// Failed is set when no stage produced a candidate. Memory is
	// unchanged by the failed stage.
	Failed bool `json:"failed"`
	// Overrun is set when the chain was cut by plan.max_chain.
	Overrun bool `json:"overrun"`
	// Done mirrors the oracle's done flag on the last stage.
	Done bool `json:"done"`
}

// Committed returns the ids of every stroke stored by the instruction.
func (o *Outcome) Committed() []int {
	var ids []int
	for _, s := range o.Stages {
		ids = append(ids, s.StrokeIDs...)
	}
	return ids
}

// ConfirmResult is returned by Confirm.
type ConfirmResult struct {
	Confirmed int               `json:"confirmed"`
	Message   string            `json:"message"`
	Execution *execution.Report `json:"execution,omitempty"`
}
