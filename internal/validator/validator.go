package validator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
	"github.com/fyrsmithlabs/sketchd/internal/memory"
)

// Validator scores candidates. It holds no per-session state and is safe
// for concurrent use.
type Validator struct {
	config     *Config
	classifier SpacingClassifier
	metrics    *Metrics
}

// Option configures a Validator.
type Option func(*Validator)

// WithClassifier replaces the default keyword spacing classifier.
func WithClassifier(c SpacingClassifier) Option {
	return func(v *Validator) {
		v.classifier = c
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *Metrics) Option {
	return func(v *Validator) {
		v.metrics = m
	}
}

// New creates a Validator. A nil config uses DefaultConfig.
func New(config *Config, opts ...Option) (*Validator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	v := &Validator{config: config}
	for _, opt := range opts {
		opt(v)
	}
	if v.classifier == nil {
		v.classifier = DefaultClassifier()
	}
	if v.metrics == nil {
		v.metrics, _ = NewMetrics(nil)
	}
	return v, nil
}

// component is a group of geometry judged as one object.
type component struct {
	name     string
	strokes  []int
	bounds   coords.Rect
	existing bool
}

// Validate scores candidate against the confirmed geometry of snapshot.
// ctx is only used for telemetry.
func (v *Validator) Validate(ctx context.Context, candidate Candidate, snapshot memory.Snapshot, instruction string) Result {
	candidates := candidateComponents(candidate)
	existing := existingComponents(snapshot)

	var issues []Issue
	issues = append(issues, v.checkOverlap(candidates, existing)...)
	issues = append(issues, v.checkSpacing(candidates, existing, instruction)...)
	issues = append(issues, v.checkRatio(candidates)...)
	issues = append(issues, v.checkSymmetry(candidates, existing)...)
	issues = append(issues, v.checkSize(candidates)...)

	result := v.score(issues)
	v.metrics.RecordValidation(ctx, result)
	return result
}

func (v *Validator) score(issues []Issue) Result {
	r := Result{Issues: issues}
	errs, warns := r.ErrorCount(), r.WarningCount()
	score := 1.0 - float64(errs)*v.config.ErrorPenalty - float64(warns)*v.config.WarningPenalty
	score = math.Max(0, math.Min(1, score))
	// Round away float noise so 1.0-0.3 compares equal to a 0.7 threshold.
	r.Score = math.Round(score*1e9) / 1e9
	r.Valid = errs == 0 && r.Score >= v.config.ValidThreshold
	return r
}

func candidateComponents(c Candidate) []component {
	var comps []component
	index := make(map[string]int)
	lines := make(map[int][][]coords.Point)
	for i, stroke := range c.Strokes {
		if len(stroke) == 0 {
			continue
		}
		label := strings.TrimSpace(c.Labels[i])
		if label == "" {
			comps = append(comps, component{name: fmt.Sprintf("stroke[%d]", i), strokes: []int{i}, bounds: coords.Bounds(stroke)})
			continue
		}
		j, ok := index[label]
		if !ok {
			j = len(comps)
			index[label] = j
			comps = append(comps, component{name: label})
		}
		comps[j].strokes = append(comps[j].strokes, i)
		lines[j] = append(lines[j], stroke)
	}
	for j, ls := range lines {
		comps[j].bounds = coords.Bounds(ls...)
	}
	return comps
}

func existingComponents(s memory.Snapshot) []component {
	groups := s.ConfirmedGroups()
	comps := make([]component, 0, len(groups))
	for _, g := range groups {
		comps = append(comps, component{name: g.Name(), bounds: g.Bounds, existing: true})
	}
	return comps
}

// effectiveArea measures thin components by their span squared so that
// straight lines are not reported as invisible.
func (v *Validator) effectiveArea(r coords.Rect) float64 {
	if math.Min(r.Width(), r.Height()) < v.config.LineThickness {
		s := r.Span()
		return s * s
	}
	return r.Area()
}

func (v *Validator) checkOverlap(candidates, existing []component) []Issue {
	var issues []Issue
	report := func(a, b component) {
		iou := a.bounds.IoU(b.bounds)
		if iou <= v.config.MaxOverlap {
			return
		}
		what := "each other"
		if b.existing {
			what = "existing " + b.name
		}
		issues = append(issues, Issue{
			Category: CategoryOverlap,
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s overlaps %s (IoU %.2f > %.2f); move it so the boxes separate", a.name, what, iou, v.config.MaxOverlap),
			Entities: []string{a.name, b.name},
			Strokes:  append(append([]int(nil), a.strokes...), b.strokes...),
		})
	}
	for i := range candidates {
		for j := i + 1; j < len(candidates); j++ {
			report(candidates[i], candidates[j])
		}
		for _, e := range existing {
			report(candidates[i], e)
		}
	}
	return issues
}

func (v *Validator) checkSpacing(candidates, existing []component, instruction string) []Issue {
	if len(candidates) == 0 || len(existing) == 0 || v.classifier == nil {
		return nil
	}
	intent, ok := v.classifier.Classify(instruction)
	if !ok || intent.Gap <= 0 {
		return nil
	}

	var strokes []int
	union := candidates[0].bounds
	for _, c := range candidates {
		union = union.Union(c.bounds)
		strokes = append(strokes, c.strokes...)
	}
	nearest := existing[0]
	gap := union.Gap(nearest.bounds)
	for _, e := range existing[1:] {
		if d := union.Gap(e.bounds); d < gap {
			gap, nearest = d, e
		}
	}

	deviation := math.Abs(gap-intent.Gap) / intent.Gap
	issue := Issue{
		Category: CategorySpacing,
		Entities: []string{nearest.name},
		Strokes:  strokes,
	}
	switch {
	case gap < v.config.MinSpacing:
		issue.Severity = SeverityError
		issue.Message = fmt.Sprintf("new drawing is %.3f from %s but %q needs at least %.2f (about %.2f)", gap, nearest.name, intent.Phrase, v.config.MinSpacing, intent.Gap)
	case deviation > v.config.SpacingErrorDeviation:
		issue.Severity = SeverityError
		issue.Message = fmt.Sprintf("gap to %s is %.3f, far from the %.2f implied by %q", nearest.name, gap, intent.Gap, intent.Phrase)
	case deviation > v.config.SpacingWarnDeviation:
		issue.Severity = SeverityWarning
		issue.Message = fmt.Sprintf("gap to %s is %.3f, expected about %.2f for %q", nearest.name, gap, intent.Gap, intent.Phrase)
	default:
		return nil
	}
	return []Issue{issue}
}

func (v *Validator) checkRatio(candidates []component) []Issue {
	var issues []Issue
	for i := range candidates {
		for j := i + 1; j < len(candidates); j++ {
			a, b := v.effectiveArea(candidates[i].bounds), v.effectiveArea(candidates[j].bounds)
			small, large := math.Min(a, b), math.Max(a, b)
			if small <= 0 {
				continue
			}
			ratio := large / small
			if ratio <= v.config.MaxSizeRatio {
				continue
			}
			issues = append(issues, Issue{
				Category: CategoryRatio,
				Severity: SeverityError,
				Message:  fmt.Sprintf("%s and %s differ in size by %.0fx (max %.0fx)", candidates[i].name, candidates[j].name, ratio, v.config.MaxSizeRatio),
				Entities: []string{candidates[i].name, candidates[j].name},
				Strokes:  append(append([]int(nil), candidates[i].strokes...), candidates[j].strokes...),
			})
		}
	}
	return issues
}

// pairKey splits labels like "ear_left", "left_ear" or "wheel_2" into a
// pair base and a side marker.
func pairKey(label string) (base, side string, ok bool) {
	l := strings.ToLower(label)
	if i := strings.LastIndex(l, "_"); i > 0 {
		switch suffix := l[i+1:]; suffix {
		case "left", "right", "l", "r", "1", "2":
			return l[:i], suffix, true
		}
	}
	if i := strings.Index(l, "_"); i > 0 {
		switch prefix := l[:i]; prefix {
		case "left", "right":
			return l[i+1:], prefix, true
		}
	}
	return "", "", false
}

type pairMember struct {
	comp component
	side string
}

// symmetryPairs matches candidate members of a base with each other first.
// A candidate left without a partner is matched with the most recent
// existing member on the other side.
func symmetryPairs(candidates, existing []component) [][2]component {
	cands := make(map[string][]pairMember)
	olds := make(map[string][]pairMember)
	var order []string
	collect := func(into map[string][]pairMember, comps []component) {
		for _, c := range comps {
			base, side, ok := pairKey(c.name)
			if !ok {
				continue
			}
			if _, seen := cands[base]; !seen {
				if _, seen := olds[base]; !seen {
					order = append(order, base)
				}
			}
			into[base] = append(into[base], pairMember{comp: c, side: side})
		}
	}
	collect(cands, candidates)
	collect(olds, existing)
	sort.Strings(order)

	var pairs [][2]component
	for _, base := range order {
		ms := cands[base]
		paired := make([]bool, len(ms))
		for i := range ms {
			for j := i + 1; j < len(ms) && !paired[i]; j++ {
				if !paired[j] && ms[i].side != ms[j].side {
					paired[i], paired[j] = true, true
					pairs = append(pairs, [2]component{ms[i].comp, ms[j].comp})
				}
			}
		}
		for i, m := range ms {
			if paired[i] {
				continue
			}
			prior := olds[base]
			for k := len(prior) - 1; k >= 0; k-- {
				if prior[k].side != m.side {
					pairs = append(pairs, [2]component{m.comp, prior[k].comp})
					break
				}
			}
		}
	}
	return pairs
}

func (v *Validator) checkSymmetry(candidates, existing []component) []Issue {
	var issues []Issue
	for _, pair := range symmetryPairs(candidates, existing) {
		a, b := pair[0], pair[1]
		entities := []string{a.name, b.name}
		strokes := append(append([]int(nil), a.strokes...), b.strokes...)
		add := func(msg string) {
			issues = append(issues, Issue{Category: CategorySymmetry, Severity: SeverityError, Message: msg, Entities: entities, Strokes: strokes})
		}

		sa, sb := v.effectiveArea(a.bounds), v.effectiveArea(b.bounds)
		if small, large := math.Min(sa, sb), math.Max(sa, sb); small > 0 && large/small > v.config.PairSizeRatio {
			add(fmt.Sprintf("%s and %s should be similar in size but differ by %.1fx", a.name, b.name, large/small))
		}
		if overlap := a.bounds.XOverlap(b.bounds); overlap > v.config.PairXOverlap {
			add(fmt.Sprintf("%s and %s should sit side by side but share %.3f horizontally", a.name, b.name, overlap))
		}
		dy := math.Abs(a.bounds.Center().Y - b.bounds.Center().Y)
		if tol := 0.5 * math.Max(a.bounds.Height(), b.bounds.Height()); dy > tol {
			add(fmt.Sprintf("%s and %s should be level but their centers differ by %.3f vertically", a.name, b.name, dy))
		}
	}
	return issues
}

func (v *Validator) checkSize(candidates []component) []Issue {
	var issues []Issue
	for _, c := range candidates {
		area := v.effectiveArea(c.bounds)
		var msg string
		switch {
		case area < v.config.MinArea:
			msg = fmt.Sprintf("%s covers %.2f%% of the canvas, below the %.1f%% minimum; make it larger", c.name, area*100, v.config.MinArea*100)
		case area > v.config.MaxArea:
			msg = fmt.Sprintf("%s covers %.0f%% of the canvas, above the %.0f%% maximum; make it smaller", c.name, area*100, v.config.MaxArea*100)
		default:
			continue
		}
		issues = append(issues, Issue{
			Category: CategorySize,
			Severity: SeverityError,
			Message:  msg,
			Entities: []string{c.name},
			Strokes:  c.strokes,
		})
	}
	return issues
}
