package execution

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
)

// SimulatedExecutor logs moves instead of driving hardware.
type SimulatedExecutor struct {
	mu       sync.Mutex
	drawn    [][]coords.Point
	halts    int
	logger   *zap.Logger
	segDelay time.Duration
}

// NewSimulatedExecutor creates a simulator. segDelay, if positive, is
// slept per segment to mimic arm speed.
func NewSimulatedExecutor(logger *zap.Logger, segDelay time.Duration) *SimulatedExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatedExecutor{logger: logger.Named("simulator"), segDelay: segDelay}
}

func (s *SimulatedExecutor) Name() string { return "simulator" }

// Draw logs and records every polyline of the chunk.
func (s *SimulatedExecutor) Draw(ctx context.Context, chunk Chunk) error {
	for _, line := range chunk.Polylines {
		if len(line) == 0 {
			continue
		}
		s.logger.Debug("pen up, move", zap.Float64("x_mm", line[0].X), zap.Float64("y_mm", line[0].Y))
		for _, p := range line[1:] {
			if s.segDelay > 0 {
				select {
				case <-time.After(s.segDelay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			s.logger.Debug("pen down, draw", zap.Float64("x_mm", p.X), zap.Float64("y_mm", p.Y))
		}
		s.mu.Lock()
		s.drawn = append(s.drawn, append([]coords.Point(nil), line...))
		s.mu.Unlock()
	}
	s.logger.Info("chunk drawn",
		zap.String("session_id", chunk.SessionID),
		zap.Int("chunk", chunk.Index+1),
		zap.Int("of", chunk.Total),
		zap.Int("polylines", len(chunk.Polylines)),
	)
	return nil
}

// Halt records a park request.
func (s *SimulatedExecutor) Halt(context.Context) error {
	s.mu.Lock()
	s.halts++
	s.mu.Unlock()
	s.logger.Info("pen up, parked")
	return nil
}

// Drawn returns every polyline drawn so far.
func (s *SimulatedExecutor) Drawn() [][]coords.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]coords.Point, len(s.drawn))
	for i, l := range s.drawn {
		out[i] = append([]coords.Point(nil), l...)
	}
	return out
}

// Halts returns how many times Halt was called.
func (s *SimulatedExecutor) Halts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halts
}
