package plan

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/sketchd/internal/memory"
)

// Config bounds auto-continuation.
type Config struct {
	MaxChain int `json:"max_chain" koanf:"max_chain"`
}

// DefaultConfig returns the default chain bound.
func DefaultConfig() *Config {
	return &Config{MaxChain: 8}
}

// Tracker reads and updates the plan held in a session's memory.
type Tracker struct {
	mem    *memory.Memory
	config *Config
	logger *Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(l *Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// NewTracker creates a Tracker over mem.
func NewTracker(mem *memory.Memory, config *Config, opts ...Option) *Tracker {
	if config == nil || config.MaxChain <= 0 {
		config = DefaultConfig()
	}
	t := &Tracker{mem: mem, config: config}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = NewLogger(nil)
	}
	return t
}

// Announce stores a new stage 0 plan, replacing any previous one.
func (t *Tracker) Announce(summary string, components []memory.Component) (*memory.Plan, error) {
	p, err := memory.NewPlan(summary, components)
	if err != nil {
		return nil, err
	}
	if err := t.mem.SetPlan(p); err != nil {
		return nil, err
	}
	t.logger.Announced(p)
	return p, nil
}

// Pending returns the plan if one exists with components left to draw.
func (t *Tracker) Pending() (*memory.Plan, bool) {
	p := t.mem.Plan()
	if p == nil || p.Complete() {
		return nil, false
	}
	return p, true
}

// Step is the tracker's decision after a committed stage.
type Step struct {
	// Continue is set when another component should be drawn right away.
	Continue bool
	// Next names the next component when Continue is set.
	Next string
	// Completed is set when a plan was finished and cleared.
	Completed bool
	Plan      *memory.Plan
}

// Advance records a committed stage. drawn is the component the oracle
// reports as drawn and remaining the components it still intends to draw.
// The stored plan is reconciled with remaining; an empty remaining list
// clears the plan.
func (t *Tracker) Advance(drawn string, remaining []string) (Step, error) {
	drawn = strings.TrimSpace(drawn)
	remaining = cleanNames(remaining)
	current := t.mem.Plan()

	if len(remaining) == 0 {
		t.mem.ClearPlan()
		if current != nil {
			t.logger.Completed(current)
		}
		return Step{Completed: current != nil}, nil
	}

	next := reconcile(current, drawn, remaining)
	if err := t.mem.SetPlan(next); err != nil {
		return Step{}, fmt.Errorf("updating plan: %w", err)
	}
	t.logger.Advanced(next, drawn)
	return Step{Continue: true, Next: remaining[0], Plan: next}, nil
}

// reconcile builds the plan implied by the oracle's progress report. Drawn
// components keep their planned order; the tail is replaced by remaining,
// reusing size and position hints for names that were already planned.
func reconcile(current *memory.Plan, drawn string, remaining []string) *memory.Plan {
	known := make(map[string]memory.Component)
	var done []memory.Component
	summary := ""
	if current != nil {
		summary = current.Summary
		for _, c := range current.Components {
			known[strings.ToLower(c.Name)] = c
		}
		done = append(done, current.Components[:current.CurrentStage]...)
	}
	if drawn != "" {
		c, ok := known[strings.ToLower(drawn)]
		if !ok {
			c = memory.Component{Name: drawn}
		}
		done = append(done, c)
	} else if current != nil && current.CurrentStage < len(current.Components) {
		done = append(done, current.Components[current.CurrentStage])
	}

	components := append([]memory.Component(nil), done...)
	for _, name := range remaining {
		c, ok := known[strings.ToLower(name)]
		if !ok {
			c = memory.Component{Name: name}
		}
		components = append(components, c)
	}
	if summary == "" {
		summary = strings.Join(names(components), ", ")
	}
	return &memory.Plan{
		Summary:      summary,
		Components:   components,
		CurrentStage: len(done),
		TotalStages:  len(components),
	}
}

// Abort drops the plan after an overrun or a failed stage.
func (t *Tracker) Abort(reason error) {
	if p := t.mem.Plan(); p != nil {
		t.logger.Aborted(p, reason)
	}
	t.mem.ClearPlan()
}

// Chain counts auto-continued stages within one instruction.
type Chain struct {
	max   int
	drawn []string
}

// NewChain starts counting for a new instruction.
func (t *Tracker) NewChain() *Chain {
	return &Chain{max: t.config.MaxChain}
}

// Record notes a committed component.
func (c *Chain) Record(component string) {
	c.drawn = append(c.drawn, component)
}

// Len returns the number of committed stages.
func (c *Chain) Len() int {
	return len(c.drawn)
}

// Allow checks whether another stage may run. remaining is reported in
// the error when the chain is exhausted.
func (c *Chain) Allow(remaining []string) error {
	if len(c.drawn) < c.max {
		return nil
	}
	return &PlanOverrunError{
		Max:       c.max,
		Drawn:     append([]string(nil), c.drawn...),
		Remaining: append([]string(nil), remaining...),
	}
}

// ContinuationInstruction is the synthetic instruction used to draw the
// next component of a plan.
func ContinuationInstruction(p *memory.Plan, next string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Continue the plan")
	if p != nil && p.Summary != "" {
		fmt.Fprintf(&b, " %q", p.Summary)
	}
	fmt.Fprintf(&b, ": draw only the next component, %s", next)
	if p != nil {
		for _, c := range p.Components {
			if !strings.EqualFold(c.Name, next) {
				continue
			}
			if c.Size != "" {
				fmt.Fprintf(&b, ", size %s", c.Size)
			}
			if c.Position != "" {
				fmt.Fprintf(&b, ", position %s", c.Position)
			}
			break
		}
	}
	b.WriteString(".")
	return b.String()
}

func cleanNames(in []string) []string {
	var out []string
	for _, n := range in {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func names(cs []memory.Component) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}
