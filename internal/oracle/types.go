package oracle

import (
	"github.com/fyrsmithlabs/sketchd/internal/coords"
	"github.com/fyrsmithlabs/sketchd/internal/memory"
	"github.com/fyrsmithlabs/sketchd/internal/validator"
)

// Request is everything the oracle sees for one generation attempt.
type Request struct {
	Instruction string
	Snapshot    memory.Snapshot
	// Plan is the pending plan, if any. It is also part of Snapshot; it is
	// carried separately so prompts can address it directly.
	Plan *memory.Plan
	// Issues from the previous attempt of the same stage.
	Issues []validator.Issue
	// PriorFailure describes a previous attempt that produced no usable reply.
	PriorFailure string
	// Attempt counts generations within the stage, starting at 1.
	Attempt int
}

// IsRepair reports whether this request retries a failed attempt.
func (r *Request) IsRepair() bool {
	return len(r.Issues) > 0 || r.PriorFailure != ""
}

// PlanSpec is a plan announced by the oracle.
type PlanSpec struct {
	Summary    string             `json:"summary"`
	Components []memory.Component `json:"components"`
}

// Response is a parsed oracle reply.
type Response struct {
	Strokes [][]coords.Point
	// Anchors are reference points the model chose to name. Memory derives
	// its own anchors; these are informational.
	Anchors             map[string]coords.Point
	Labels              map[int]string
	AssistantMessage    string
	ComponentDrawn      string
	ComponentsRemaining []string
	Plan                *PlanSpec
	Done                bool
}

// HasStrokes reports whether the reply proposes geometry.
func (r *Response) HasStrokes() bool {
	return len(r.Strokes) > 0
}

// Candidate returns the reply's geometry for validation, clamped to the
// canvas exactly as memory will store it.
func (r *Response) Candidate() validator.Candidate {
	strokes, _ := coords.ClampStrokes(r.Strokes)
	return validator.Candidate{Strokes: strokes, Labels: r.Labels}
}

// DefaultAssistantMessage is used when a reply carries no message.
const DefaultAssistantMessage = "Ready for next instruction."
