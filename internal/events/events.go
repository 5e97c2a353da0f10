// Package events publishes session lifecycle events on NATS.
//
// Events are published to subjects of the form
//
//	{prefix}.sessions.{session_id}.{type}
//
// so a client can follow one session with "{prefix}.sessions.{id}.>".
// The HTTP server bridges these subjects to websocket clients.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"
)

// Type names an event.
type Type string

const (
	TypeInstructionStarted  Type = "instruction.started"
	TypeInstructionFinished Type = "instruction.finished"
	TypePlanAnnounced       Type = "plan.announced"
	TypeStageCommitted      Type = "stage.committed"
	TypeRepairRequested     Type = "repair.requested"
	TypePreviewConfirmed    Type = "preview.confirmed"
	TypePreviewRejected     Type = "preview.rejected"
	TypeExecutionReported   Type = "execution.reported"
	TypeStopped             Type = "session.stopped"
	TypeResumed             Type = "session.resumed"
)

// Event is one session event.
type Event struct {
	Type          Type      `json:"type"`
	SessionID     string    `json:"session_id"`
	InstructionID string    `json:"instruction_id,omitempty"`
	Message       string    `json:"message,omitempty"`
	Data          any       `json:"data,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	TraceID       string    `json:"trace_id,omitempty"`
}

// Publisher emits session events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// NATSPublisher publishes events as JSON on NATS.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher creates a publisher. prefix defaults to "sketchd".
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "sketchd"
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Subject returns the subject for a session event type.
func Subject(prefix, sessionID string, t Type) string {
	return fmt.Sprintf("%s.sessions.%s.%s", prefix, sessionID, t)
}

// SessionWildcard matches every event of one session.
func SessionWildcard(prefix, sessionID string) string {
	return fmt.Sprintf("%s.sessions.%s.>", prefix, sessionID)
}

// Publish sends e, filling in the timestamp and trace id.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.HasTraceID() {
		e.TraceID = sc.TraceID().String()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if err := p.nc.Publish(Subject(p.prefix, e.SessionID, e.Type), data); err != nil {
		return fmt.Errorf("publishing %s: %w", e.Type, err)
	}
	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	events chan Event
}

// NewRecorder creates a Recorder buffering up to size events.
func NewRecorder(size int) *Recorder {
	return &Recorder{events: make(chan Event, size)}
}

// Publish stores e, dropping it if the buffer is full.
func (r *Recorder) Publish(_ context.Context, e Event) error {
	select {
	case r.events <- e:
	default:
	}
	return nil
}

// Drain returns every buffered event.
func (r *Recorder) Drain() []Event {
	var out []Event
	for {
		select {
		case e := <-r.events:
			out = append(out, e)
		default:
			return out
		}
	}
}
