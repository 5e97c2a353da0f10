package execution

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultChunkSize is the number of polylines per chunk.
const DefaultChunkSize = 2

// Dispatcher sends jobs to an Executor in chunks.
type Dispatcher struct {
	exec      Executor
	chunkSize int
	logger    *zap.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithChunkSize sets the polylines per chunk.
func WithChunkSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.chunkSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a Dispatcher for exec.
func NewDispatcher(exec Executor, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{exec: exec, chunkSize: DefaultChunkSize, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("execution")
	return d
}

// Executor returns the wrapped executor.
func (d *Dispatcher) Executor() Executor {
	return d.exec
}

// Run draws job chunk by chunk. stop is checked before every chunk; once
// raised the remaining chunks are skipped. Failed chunks are reported but
// do not abort the job.
func (d *Dispatcher) Run(ctx context.Context, job Job, stop *StopSignal) Report {
	chunks := split(job, d.chunkSize)
	report := Report{Executor: d.exec.Name(), Chunks: len(chunks)}
	fields := []zap.Field{
		zap.String("session_id", job.SessionID),
		zap.String("instruction_id", job.InstructionID),
		zap.String("executor", d.exec.Name()),
	}

	for _, chunk := range chunks {
		if stop != nil && stop.Stopped() {
			report.Stopped = true
			StopsTotal.Inc()
			d.logger.Info("execution stopped", append(fields, zap.Int("sent", report.Sent), zap.Int("chunks", report.Chunks))...)
			break
		}
		if err := ctx.Err(); err != nil {
			report.Failed = append(report.Failed, ChunkFailure{Index: chunk.Index, Error: err.Error()})
			break
		}

		start := time.Now()
		err := d.exec.Draw(ctx, chunk)
		ChunkDuration.WithLabelValues(d.exec.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			ChunksTotal.WithLabelValues(d.exec.Name(), "failed").Inc()
			report.Failed = append(report.Failed, ChunkFailure{Index: chunk.Index, Error: err.Error()})
			d.logger.Error("chunk failed", append(fields, zap.Int("chunk", chunk.Index), zap.Error(err))...)
			continue
		}
		ChunksTotal.WithLabelValues(d.exec.Name(), "ok").Inc()
		PolylinesTotal.WithLabelValues(d.exec.Name()).Add(float64(len(chunk.Polylines)))
		report.Sent++
	}

	if report.OK() {
		d.logger.Info("job drawn", append(fields, zap.Int("chunks", report.Chunks))...)
	}
	return report
}

// Halt stops the executor immediately.
func (d *Dispatcher) Halt(ctx context.Context) error {
	return d.exec.Halt(ctx)
}

func split(job Job, size int) []Chunk {
	if len(job.Polylines) == 0 {
		return nil
	}
	total := (len(job.Polylines) + size - 1) / size
	chunks := make([]Chunk, 0, total)
	for i := 0; i < len(job.Polylines); i += size {
		end := i + size
		if end > len(job.Polylines) {
			end = len(job.Polylines)
		}
		chunks = append(chunks, Chunk{
			SessionID:     job.SessionID,
			InstructionID: job.InstructionID,
			Index:         len(chunks),
			Total:         total,
			Polylines:     job.Polylines[i:end],
		})
	}
	return chunks
}
