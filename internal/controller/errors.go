package controller

import "errors"

var (
	// ErrNoCandidate means no attempt produced usable geometry.
	ErrNoCandidate = errors.New("no candidate produced")
	// ErrInvalidTransition means the stage machine was driven out of order.
	ErrInvalidTransition = errors.New("invalid stage transition")
	// ErrMissingDependency is returned by New for nil collaborators.
	ErrMissingDependency = errors.New("missing controller dependency")
	// ErrEmptyInstruction is returned for blank instructions.
	ErrEmptyInstruction = errors.New("instruction is empty")
)
