package oracle

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
	"github.com/fyrsmithlabs/sketchd/internal/validator"
)

// SystemPrompt describes the drawing contract to the model.
const SystemPrompt = `You control a pen plotter arm that draws on paper, one instruction at a time.

COORDINATES
- Normalized square [0,1]x[0,1]. (0,0) is bottom-left, (1,1) is top-right, y grows upward.
- Every point must stay inside the square.

WHAT TO RETURN
Reply with a single JSON object and nothing else:
{
  "strokes": [[[x, y], [x, y], ...], ...],
  "labels": {"stroke_0": "name"},
  "anchors": {"name_top": [x, y]},
  "assistant_message": "short message for the user",
  "component_drawn": "name of the component drawn in this reply",
  "components_remaining": ["components still to draw"],
  "plan": {"summary": "...", "components": [{"name": "...", "size": "...", "position": "..."}]},
  "done": true
}

RULES
- A stroke is one pen-down polyline with at least 2 points. Close shapes by repeating the first point.
- Circles need 20 to 30 points. Squares need 5 points.
- Strokes that form one object share one label. Pairs use name_left and name_right.
- Do not overlap existing components unless the user asks for it. Keep sizes plausible.
- "next to" or "beside" means a gap of about 0.10, "to the left/right of" about 0.15, "far from" about 0.30.
- "that" or "it" refers to the most recent component. "second square" refers to label square_2.
- For a complex subject (a house, a cat, a scene) first announce a plan: return "plan" with its
  components and no strokes. Later replies draw ONE component each, set component_drawn and list
  components_remaining. Return an empty components_remaining list with the last component.
- If the instruction is ambiguous, ask one question in assistant_message with no strokes and done=false.`

// BuildPrompt renders the user turn for req.
func BuildPrompt(req *Request, grid coords.Grid, limits Limits) string {
	var b strings.Builder

	if q := req.Snapshot.PendingQuestion; q != "" {
		fmt.Fprintf(&b, "YOU PREVIOUSLY ASKED: %q\nThe instruction below answers that question. Use the answer and draw; do not ask again.\n\n", q)
	}
	fmt.Fprintf(&b, "INSTRUCTION: %s\n\n", req.Instruction)

	b.WriteString("CURRENT DRAWING:\n")
	b.WriteString(req.Snapshot.Render(grid))
	b.WriteString("\n")

	if req.Plan != nil {
		remaining := req.Plan.Remaining()
		if len(remaining) > 0 {
			fmt.Fprintf(&b, "ACTIVE PLAN: %s. Draw %q now.\n\n", req.Plan.Summary, remaining[0].Name)
		}
	}

	if req.IsRepair() {
		fmt.Fprintf(&b, "ATTEMPT %d: your previous answer was rejected.\n", req.Attempt)
		if req.PriorFailure != "" {
			fmt.Fprintf(&b, "PROBLEM: %s\n", req.PriorFailure)
		}
		if len(req.Issues) > 0 {
			b.WriteString(validator.Result{Issues: req.Issues}.RepairHints())
		}
		b.WriteString("Return a corrected JSON object for the same instruction.\n\n")
	}

	if limits.MaxStrokes > 0 {
		fmt.Fprintf(&b, "LIMITS: at most %d strokes, at most %d points per stroke.\n", limits.MaxStrokes, limits.MaxPointsPerStroke)
	}
	b.WriteString("Reply with JSON only.")
	return b.String()
}
