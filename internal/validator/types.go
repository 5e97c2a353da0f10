package validator

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
)

// Category groups issues by the rule that raised them.
type Category string

const (
	CategoryOverlap  Category = "overlap"
	CategorySpacing  Category = "spacing"
	CategoryRatio    Category = "ratio"
	CategorySymmetry Category = "symmetry"
	CategorySize     Category = "size"
)

// Severity of an issue. Errors make a candidate invalid.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding about a candidate.
type Issue struct {
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	// Entities names the components involved.
	Entities []string `json:"entities,omitempty"`
	// Strokes are candidate stroke indices involved.
	Strokes []int `json:"strokes,omitempty"`
}

// Result is the outcome of validating one candidate.
type Result struct {
	Score  float64 `json:"score"`
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues,omitempty"`
}

// ErrorCount returns the number of error issues.
func (r Result) ErrorCount() int {
	return r.count(SeverityError)
}

// WarningCount returns the number of warning issues.
func (r Result) WarningCount() int {
	return r.count(SeverityWarning)
}

func (r Result) count(s Severity) int {
	n := 0
	for _, i := range r.Issues {
		if i.Severity == s {
			n++
		}
	}
	return n
}

// Err returns a *ValidationError for invalid results, nil otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Result: r}
}

// RepairHints renders the issues as a numbered list for a repair request.
// Errors are listed before warnings.
func (r Result) RepairHints() string {
	if len(r.Issues) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("ISSUES DETECTED (fix these):\n")
	n := 1
	for _, sev := range []Severity{SeverityError, SeverityWarning} {
		for _, i := range r.Issues {
			if i.Severity != sev {
				continue
			}
			fmt.Fprintf(&b, "%d. [%s] %s: %s\n", n, strings.ToUpper(string(sev)), strings.ToUpper(string(i.Category)), i.Message)
			n++
		}
	}
	return b.String()
}

// Candidate is geometry proposed by the oracle, in normalized coordinates.
type Candidate struct {
	Strokes [][]coords.Point
	// Labels maps a stroke index to its component label.
	Labels map[int]string
}
