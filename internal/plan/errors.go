package plan

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPlanOverrun = errors.New("plan exceeded maximum chain length")
	ErrNoPlan      = errors.New("no pending plan")
)

// PlanOverrunError is returned when auto-continuation exceeds the chain
// limit. Drawn lists the components committed before the abort.
type PlanOverrunError struct {
	Max       int
	Drawn     []string
	Remaining []string
}

func (e *PlanOverrunError) Error() string {
	return fmt.Sprintf("%v (%d): drew [%s], abandoned [%s]",
		ErrPlanOverrun, e.Max, strings.Join(e.Drawn, ", "), strings.Join(e.Remaining, ", "))
}

func (e *PlanOverrunError) Unwrap() error {
	return ErrPlanOverrun
}
