package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/controller"
	"github.com/fyrsmithlabs/sketchd/internal/coords"
	"github.com/fyrsmithlabs/sketchd/internal/memory"
	"github.com/fyrsmithlabs/sketchd/internal/plan"
)

// Tool inputs and outputs use plain fields so the inferred JSON schema
// matches what is sent on the wire.

type sessionInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"drawing session id; empty uses the default session"`
}

type drawInput struct {
	SessionID   string `json:"session_id,omitempty" jsonschema:"drawing session id; empty uses the default session"`
	Instruction string `json:"instruction" jsonschema:"natural language drawing instruction"`
}

type drawOutput struct {
	SessionID     string   `json:"session_id"`
	InstructionID string   `json:"instruction_id"`
	Message       string   `json:"message"`
	Committed     []int    `json:"committed,omitempty"`
	PreviewCount  int      `json:"preview_count"`
	Question      string   `json:"question,omitempty"`
	Remaining     []string `json:"remaining,omitempty"`
	Stopped       bool     `json:"stopped"`
	Failed        bool     `json:"failed"`
	Overrun       bool     `json:"overrun"`
	Done          bool     `json:"done"`
}

type strokeOutput struct {
	ID     int         `json:"id"`
	Label  string      `json:"label,omitempty"`
	State  string      `json:"state"`
	Points [][]float64 `json:"points"`
}

type groupOutput struct {
	Label     string    `json:"label"`
	StrokeIDs []int     `json:"stroke_ids"`
	Center    []float64 `json:"center"`
	Confirmed bool      `json:"confirmed"`
}

type stateOutput struct {
	SessionID       string         `json:"session_id"`
	Stopped         bool           `json:"stopped"`
	Strokes         []strokeOutput `json:"strokes"`
	Groups          []groupOutput  `json:"groups"`
	PlanSummary     string         `json:"plan_summary,omitempty"`
	Remaining       []string       `json:"remaining,omitempty"`
	PendingQuestion string         `json:"pending_question,omitempty"`
}

type confirmOutput struct {
	SessionID string `json:"session_id"`
	Confirmed int    `json:"confirmed"`
	Message   string `json:"message"`
	Failed    int    `json:"failed_chunks"`
}

type rejectOutput struct {
	SessionID string `json:"session_id"`
	Rejected  int    `json:"rejected"`
}

type undoInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"drawing session id; empty uses the default session"`
	Count     int    `json:"count,omitempty" jsonschema:"number of strokes to remove, default 1"`
}

type undoOutput struct {
	SessionID string `json:"session_id"`
	Removed   []int  `json:"removed"`
}

type controlOutput struct {
	SessionID string `json:"session_id"`
	Stopped   bool   `json:"stopped"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "draw",
		Description: "Send a drawing instruction. Strokes are validated against the canvas and stored as preview until confirmed. Words like 'confirm', 'reject', 'stop' and 'continue' act as commands.",
	}, s.draw)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "drawing_state",
		Description: "Return the strokes, label groups, pending plan and open question of a drawing session.",
	}, s.state)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "drawing_confirm",
		Description: "Confirm every preview stroke and send it to the arm.",
	}, s.confirm)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "drawing_reject",
		Description: "Discard every preview stroke.",
	}, s.reject)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "drawing_undo",
		Description: "Remove the most recent strokes, newest first.",
	}, s.undo)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "drawing_stop",
		Description: "Raise the stop signal. Arm motion halts between chunks and instructions are refused until resumed.",
	}, s.stop)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "drawing_resume",
		Description: "Clear the stop signal.",
	}, s.resume)
}

func (s *Server) draw(ctx context.Context, _ *mcp.CallToolRequest, in drawInput) (_ *mcp.CallToolResult, _ drawOutput, err error) {
	defer s.metrics.track(ctx, "draw")(&err)

	id, err := s.resolve(ctx, in.SessionID)
	if err != nil {
		return nil, drawOutput{}, err
	}
	out, err := s.sessions.Process(ctx, id, in.Instruction)
	if errors.Is(err, plan.ErrPlanOverrun) && out != nil {
		// The partial outcome is the answer; Overrun tells the caller.
		err = nil
	}
	if err != nil {
		s.logger.Warn("draw failed", zap.String("session_id", id), zap.Error(err))
		return nil, drawOutput{}, fmt.Errorf("draw: %w", err)
	}
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, drawOutput{}, err
	}
	return nil, toDrawOutput(id, out, sess.Snapshot()), nil
}

func (s *Server) state(ctx context.Context, _ *mcp.CallToolRequest, in sessionInput) (_ *mcp.CallToolResult, _ stateOutput, err error) {
	defer s.metrics.track(ctx, "drawing_state")(&err)

	id, err := s.resolve(ctx, in.SessionID)
	if err != nil {
		return nil, stateOutput{}, err
	}
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, stateOutput{}, err
	}
	out := toStateOutput(id, sess.Snapshot())
	out.Stopped = sess.Controller().StopSignal().Stopped()
	return nil, out, nil
}

func (s *Server) confirm(ctx context.Context, _ *mcp.CallToolRequest, in sessionInput) (_ *mcp.CallToolResult, _ confirmOutput, err error) {
	defer s.metrics.track(ctx, "drawing_confirm")(&err)

	id, err := s.resolve(ctx, in.SessionID)
	if err != nil {
		return nil, confirmOutput{}, err
	}
	res, err := s.sessions.Confirm(ctx, id)
	if err != nil {
		return nil, confirmOutput{}, err
	}
	out := confirmOutput{SessionID: id, Confirmed: res.Confirmed, Message: res.Message}
	if res.Execution != nil {
		out.Failed = len(res.Execution.Failed)
	}
	return nil, out, nil
}

func (s *Server) reject(ctx context.Context, _ *mcp.CallToolRequest, in sessionInput) (_ *mcp.CallToolResult, _ rejectOutput, err error) {
	defer s.metrics.track(ctx, "drawing_reject")(&err)

	id, err := s.resolve(ctx, in.SessionID)
	if err != nil {
		return nil, rejectOutput{}, err
	}
	n, err := s.sessions.Reject(ctx, id)
	if err != nil {
		return nil, rejectOutput{}, err
	}
	return nil, rejectOutput{SessionID: id, Rejected: n}, nil
}

func (s *Server) undo(ctx context.Context, _ *mcp.CallToolRequest, in undoInput) (_ *mcp.CallToolResult, _ undoOutput, err error) {
	defer s.metrics.track(ctx, "drawing_undo")(&err)

	if in.Count < 0 {
		return nil, undoOutput{}, fmt.Errorf("count must be at least 1, got %d", in.Count)
	}
	if in.Count == 0 {
		in.Count = 1
	}
	id, err := s.resolve(ctx, in.SessionID)
	if err != nil {
		return nil, undoOutput{}, err
	}
	removed, err := s.sessions.Undo(ctx, id, in.Count)
	if err != nil {
		return nil, undoOutput{}, err
	}
	out := undoOutput{SessionID: id, Removed: make([]int, 0, len(removed))}
	for _, st := range removed {
		out.Removed = append(out.Removed, st.ID)
	}
	return nil, out, nil
}

func (s *Server) stop(ctx context.Context, _ *mcp.CallToolRequest, in sessionInput) (_ *mcp.CallToolResult, _ controlOutput, err error) {
	defer s.metrics.track(ctx, "drawing_stop")(&err)

	id, err := s.resolve(ctx, in.SessionID)
	if err != nil {
		return nil, controlOutput{}, err
	}
	if err := s.sessions.Stop(ctx, id); err != nil {
		return nil, controlOutput{}, err
	}
	return nil, controlOutput{SessionID: id, Stopped: true}, nil
}

func (s *Server) resume(ctx context.Context, _ *mcp.CallToolRequest, in sessionInput) (_ *mcp.CallToolResult, _ controlOutput, err error) {
	defer s.metrics.track(ctx, "drawing_resume")(&err)

	id, err := s.resolve(ctx, in.SessionID)
	if err != nil {
		return nil, controlOutput{}, err
	}
	if err := s.sessions.Resume(ctx, id); err != nil {
		return nil, controlOutput{}, err
	}
	return nil, controlOutput{SessionID: id, Stopped: false}, nil
}

func toDrawOutput(id string, o *controller.Outcome, snap memory.Snapshot) drawOutput {
	return drawOutput{
		SessionID:     id,
		InstructionID: o.InstructionID,
		Message:       o.Message,
		Committed:     o.Committed(),
		PreviewCount:  len(snap.Preview()),
		Question:      o.Question,
		Remaining:     componentNames(o.Plan),
		Stopped:       o.Stopped,
		Failed:        o.Failed,
		Overrun:       o.Overrun,
		Done:          o.Done,
	}
}

func toStateOutput(id string, snap memory.Snapshot) stateOutput {
	out := stateOutput{
		SessionID:       id,
		Strokes:         make([]strokeOutput, 0, len(snap.Strokes)),
		Groups:          make([]groupOutput, 0, len(snap.Groups)),
		Remaining:       componentNames(snap.Plan),
		PendingQuestion: snap.PendingQuestion,
	}
	if snap.Plan != nil {
		out.PlanSummary = snap.Plan.Summary
	}
	for _, st := range snap.Strokes {
		out.Strokes = append(out.Strokes, strokeOutput{
			ID:     st.ID,
			Label:  st.Label,
			State:  string(st.State),
			Points: pairs(st.Points),
		})
	}
	for _, g := range snap.Groups {
		c := g.Bounds.Center()
		out.Groups = append(out.Groups, groupOutput{
			Label:     g.Label,
			StrokeIDs: g.StrokeIDs,
			Center:    []float64{c.X, c.Y},
			Confirmed: g.Confirmed,
		})
	}
	return out
}

func componentNames(p *memory.Plan) []string {
	var names []string
	for _, c := range p.Remaining() {
		names = append(names, c.Name)
	}
	return names
}

func pairs(pts []coords.Point) [][]float64 {
	out := make([][]float64, len(pts))
	for i, p := range pts {
		out[i] = []float64{p.X, p.Y}
	}
	return out
}
