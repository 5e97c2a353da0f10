package http

import (
	"time"

	"github.com/fyrsmithlabs/sketchd/internal/memory"
	"github.com/fyrsmithlabs/sketchd/internal/telemetry"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status         string                  `json:"status"`
	Version        string                  `json:"version,omitempty"`
	ActiveSessions int                     `json:"active_sessions"`
	Events         bool                    `json:"events"`
	Telemetry      *telemetry.HealthStatus `json:"telemetry,omitempty"`
}

// SessionResponse describes a created session.
type SessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// StateResponse is the response body for GET /api/v1/sessions/:id.
type StateResponse struct {
	ID      string          `json:"id"`
	Stopped bool            `json:"stopped"`
	State   memory.Snapshot `json:"state"`
}

// InstructionRequest is the request body for POST .../instructions.
type InstructionRequest struct {
	Instruction string `json:"instruction"`
}

// UndoRequest is the request body for POST .../undo.
type UndoRequest struct {
	Count int `json:"count"`
}

// UndoResponse lists removed strokes.
type UndoResponse struct {
	Removed []memory.Stroke `json:"removed"`
}

// RejectResponse reports discarded preview strokes.
type RejectResponse struct {
	Rejected int `json:"rejected"`
}

// ControlResponse acknowledges stop and resume.
type ControlResponse struct {
	Stopped bool `json:"stopped"`
}
