package oracle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
	"github.com/fyrsmithlabs/sketchd/internal/memory"
)

// Limits bound the size of a single reply.
type Limits struct {
	MaxStrokes         int `json:"max_strokes_per_step" koanf:"max_strokes_per_step"`
	MaxPointsPerStroke int `json:"max_points_per_stroke" koanf:"max_points_per_stroke"`
}

// DefaultLimits matches what the arm can draw in one step.
func DefaultLimits() Limits {
	return Limits{MaxStrokes: 20, MaxPointsPerStroke: 50}
}

type wireComponent memory.Component

// UnmarshalJSON accepts either a bare name or a {name, size, position} object.
func (c *wireComponent) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*c = wireComponent{Name: name}
		return nil
	}
	var obj struct {
		Name     string `json:"name"`
		Size     string `json:"size"`
		Position string `json:"position"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("plan component must be a name or an object: %w", err)
	}
	*c = wireComponent(obj)
	return nil
}

type wirePlan struct {
	Summary    string          `json:"summary"`
	Components []wireComponent `json:"components"`
}

type wireResponse struct {
	Strokes             [][]coords.Point        `json:"strokes"`
	Anchors             map[string]coords.Point `json:"anchors"`
	Labels              map[string]string       `json:"labels"`
	AssistantMessage    string                  `json:"assistant_message"`
	ComponentDrawn      string                  `json:"component_drawn"`
	ComponentsRemaining []string                `json:"components_remaining"`
	Plan                *wirePlan               `json:"plan"`
	Done                bool                    `json:"done"`
}

// ExtractJSON returns the first balanced JSON object in text, skipping
// markdown fences and surrounding prose.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoJSON
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unbalanced braces", ErrNoJSON)
}

// Parse decodes a model reply into a Response. Every contract violation is
// returned as a malformed *OracleError.
func Parse(provider, text string, limits Limits) (*Response, error) {
	if strings.TrimSpace(text) == "" {
		return nil, malformed(provider, ErrEmptyResponse)
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, malformed(provider, err)
	}

	var w wireResponse
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(&w); err != nil {
		return nil, malformed(provider, fmt.Errorf("decoding response: %w", err))
	}

	if limits.MaxStrokes > 0 && len(w.Strokes) > limits.MaxStrokes {
		return nil, malformed(provider, fmt.Errorf("%d strokes exceeds limit of %d", len(w.Strokes), limits.MaxStrokes))
	}
	for i, s := range w.Strokes {
		if limits.MaxPointsPerStroke > 0 && len(s) > limits.MaxPointsPerStroke {
			return nil, malformed(provider, fmt.Errorf("stroke %d has %d points, limit is %d", i, len(s), limits.MaxPointsPerStroke))
		}
	}

	labels, err := parseLabels(w.Labels, len(w.Strokes))
	if err != nil {
		return nil, malformed(provider, err)
	}

	resp := &Response{
		Strokes:             w.Strokes,
		Anchors:             w.Anchors,
		Labels:              labels,
		AssistantMessage:    strings.TrimSpace(w.AssistantMessage),
		ComponentDrawn:      strings.TrimSpace(w.ComponentDrawn),
		ComponentsRemaining: w.ComponentsRemaining,
		Done:                w.Done,
	}
	if resp.AssistantMessage == "" {
		resp.AssistantMessage = DefaultAssistantMessage
	}
	if w.Plan != nil {
		spec := &PlanSpec{Summary: strings.TrimSpace(w.Plan.Summary)}
		for _, c := range w.Plan.Components {
			spec.Components = append(spec.Components, memory.Component(c))
		}
		if len(spec.Components) == 0 {
			return nil, malformed(provider, errors.New("plan has no components"))
		}
		for i, c := range spec.Components {
			if strings.TrimSpace(c.Name) == "" {
				return nil, malformed(provider, fmt.Errorf("plan component %d has no name", i))
			}
		}
		resp.Plan = spec
		// A plan announcement draws nothing.
		resp.Strokes, resp.Labels = nil, nil
	}
	return resp, nil
}

// parseLabels accepts "stroke_3" or "3" keys and checks they refer to an
// existing stroke.
func parseLabels(in map[string]string, strokes int) (map[int]string, error) {
	out := make(map[int]string, len(in))
	for key, label := range in {
		k := strings.TrimPrefix(strings.TrimSpace(key), "stroke_")
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("label key %q is not a stroke index", key)
		}
		if idx < 0 || idx >= strokes {
			return nil, fmt.Errorf("label key %q refers to stroke %d of %d", key, idx, strokes)
		}
		if label = strings.TrimSpace(label); label != "" {
			out[idx] = label
		}
	}
	return out, nil
}
