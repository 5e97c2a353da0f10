package controller

import "fmt"

// State is a step of the per-stage generation machine.
type State string

const (
	StateInit      State = "init"
	StateGenerated State = "generated"
	StateValidated State = "validated"
	StateRepair    State = "repair"
	StateAccepted  State = "accepted"
	StateCommitted State = "committed"
	// StateAnswered ends a stage whose reply carried no geometry: a plan
	// announcement, a clarifying question or a plain answer.
	StateAnswered State = "answered"
	StateFailed   State = "failed"
)

// ValidTransitions defines allowed state transitions.
var ValidTransitions = map[State][]State{
	StateInit:      {StateGenerated},
	StateGenerated: {StateValidated, StateRepair, StateAnswered, StateAccepted, StateFailed},
	StateValidated: {StateAccepted, StateRepair},
	StateRepair:    {StateGenerated},
	StateAccepted:  {StateCommitted},
	StateCommitted: {}, // terminal
	StateAnswered:  {}, // terminal
	StateFailed:    {}, // terminal
}

// CanTransitionTo checks if a transition from s to target is valid.
func (s State) CanTransitionTo(target State) bool {
	for _, t := range ValidTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state.
func (s State) IsTerminal() bool {
	return len(ValidTransitions[s]) == 0
}

// machine tracks one stage. The first bad transition is kept in err and
// later transitions are ignored.
type machine struct {
	state State
	trace []State
	err   error
}

func newMachine() *machine {
	return &machine{state: StateInit, trace: []State{StateInit}}
}

func (m *machine) to(target State) {
	if m.err != nil {
		return
	}
	if !m.state.CanTransitionTo(target) {
		m.err = fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, target)
		return
	}
	m.state = target
	m.trace = append(m.trace, target)
}
