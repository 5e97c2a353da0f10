package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subjects used between sketchd and a plotter agent.
func drawSubject(prefix, device string) string {
	return fmt.Sprintf("%s.plotter.%s.draw", prefix, device)
}
func haltSubject(prefix, device string) string {
	return fmt.Sprintf("%s.plotter.%s.halt", prefix, device)
}

// Ack is the agent's reply to a draw request.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// NATSExecutor sends chunks to a remote plotter agent.
type NATSExecutor struct {
	nc     *nats.Conn
	prefix string
	device string
}

// NewNATSExecutor creates an executor for device.
func NewNATSExecutor(nc *nats.Conn, prefix, device string) (*NATSExecutor, error) {
	if nc == nil {
		return nil, ErrNoConnection
	}
	if prefix == "" {
		prefix = "sketchd"
	}
	if device == "" {
		device = "default"
	}
	return &NATSExecutor{nc: nc, prefix: prefix, device: device}, nil
}

func (e *NATSExecutor) Name() string { return "nats:" + e.device }

// Draw sends the chunk and waits for the agent's Ack. ctx bounds the wait.
func (e *NATSExecutor) Draw(ctx context.Context, chunk Chunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshaling chunk: %w", err)
	}
	msg, err := e.nc.RequestWithContext(ctx, drawSubject(e.prefix, e.device), data)
	if err != nil {
		return fmt.Errorf("requesting draw: %w", err)
	}
	var ack Ack
	if err := json.Unmarshal(msg.Data, &ack); err != nil {
		return fmt.Errorf("decoding ack: %w", err)
	}
	if !ack.OK {
		return fmt.Errorf("%w: %s", ErrChunkFailed, ack.Error)
	}
	return nil
}

// Halt publishes a halt request. It does not wait for the agent.
func (e *NATSExecutor) Halt(context.Context) error {
	if err := e.nc.Publish(haltSubject(e.prefix, e.device), nil); err != nil {
		return fmt.Errorf("publishing halt: %w", err)
	}
	return e.nc.Flush()
}

// Agent serves draw and halt requests for one device by forwarding them to
// a local Executor.
type Agent struct {
	nc     *nats.Conn
	prefix string
	device string
	exec   Executor
	logger *zap.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewAgent creates a plotter agent.
func NewAgent(nc *nats.Conn, prefix, device string, exec Executor, logger *zap.Logger) (*Agent, error) {
	if nc == nil {
		return nil, ErrNoConnection
	}
	if exec == nil {
		return nil, errors.New("executor is required")
	}
	if prefix == "" {
		prefix = "sketchd"
	}
	if device == "" {
		device = "default"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{nc: nc, prefix: prefix, device: device, exec: exec, logger: logger.Named("agent")}, nil
}

// Start subscribes to the device subjects. Draw requests are handled one
// at a time in arrival order.
func (a *Agent) Start(ctx context.Context) error {
	drawSub, err := a.nc.Subscribe(drawSubject(a.prefix, a.device), func(msg *nats.Msg) {
		ack := Ack{OK: true}
		var chunk Chunk
		if err := json.Unmarshal(msg.Data, &chunk); err != nil {
			ack = Ack{Error: fmt.Sprintf("decoding chunk: %v", err)}
		} else if err := a.exec.Draw(ctx, chunk); err != nil {
			ack = Ack{Error: err.Error()}
		}
		if !ack.OK {
			a.logger.Warn("draw failed", zap.String("device", a.device), zap.String("error", ack.Error))
		}
		data, _ := json.Marshal(ack)
		if err := msg.Respond(data); err != nil {
			a.logger.Warn("responding to draw", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing to draw: %w", err)
	}
	haltSub, err := a.nc.Subscribe(haltSubject(a.prefix, a.device), func(*nats.Msg) {
		if err := a.exec.Halt(ctx); err != nil {
			a.logger.Warn("halt failed", zap.Error(err))
		}
	})
	if err != nil {
		_ = drawSub.Unsubscribe()
		return fmt.Errorf("subscribing to halt: %w", err)
	}
	if err := a.nc.Flush(); err != nil {
		return fmt.Errorf("flushing subscriptions: %w", err)
	}

	a.mu.Lock()
	a.subs = append(a.subs, drawSub, haltSub)
	a.mu.Unlock()
	a.logger.Info("plotter agent started", zap.String("device", a.device), zap.String("executor", a.exec.Name()))
	return nil
}

// Stop unsubscribes.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.subs {
		_ = s.Unsubscribe()
	}
	a.subs = nil
}
