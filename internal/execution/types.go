package execution

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
)

var (
	ErrStopped      = errors.New("execution stopped")
	ErrChunkFailed  = errors.New("chunk execution failed")
	ErrNoConnection = errors.New("nats connection is required")
)

// Job is the confirmed geometry of one commit, already in millimetres.
type Job struct {
	SessionID     string           `json:"session_id"`
	InstructionID string           `json:"instruction_id"`
	Polylines     [][]coords.Point `json:"polylines"`
}

// Chunk is the unit sent to an Executor.
type Chunk struct {
	SessionID     string           `json:"session_id"`
	InstructionID string           `json:"instruction_id"`
	Index         int              `json:"index"`
	Total         int              `json:"total"`
	Polylines     [][]coords.Point `json:"polylines"`
}

// Executor draws chunks on a device.
type Executor interface {
	Name() string
	// Draw blocks until the chunk is drawn or fails.
	Draw(ctx context.Context, chunk Chunk) error
	// Halt lifts the pen and stops motion as soon as possible.
	Halt(ctx context.Context) error
}

// ChunkFailure describes one failed chunk.
type ChunkFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// Report summarizes a dispatched job.
type Report struct {
	Executor string         `json:"executor"`
	Chunks   int            `json:"chunks"`
	Sent     int            `json:"sent"`
	Failed   []ChunkFailure `json:"failed,omitempty"`
	// Stopped is set when the stop signal interrupted the job.
	Stopped bool `json:"stopped"`
	Skipped bool `json:"skipped,omitempty"`
}

// OK reports whether every chunk was drawn.
func (r Report) OK() bool {
	return !r.Stopped && !r.Skipped && len(r.Failed) == 0 && r.Sent == r.Chunks
}

// StopSignal is a session's stop flag. It is safe for concurrent use.
type StopSignal struct {
	stopped atomic.Bool
}

// Stop raises the flag.
func (s *StopSignal) Stop() { s.stopped.Store(true) }

// Resume clears the flag.
func (s *StopSignal) Resume() { s.stopped.Store(false) }

// Stopped reports whether the flag is raised.
func (s *StopSignal) Stopped() bool { return s.stopped.Load() }
