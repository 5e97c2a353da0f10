package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChunksTotal counts dispatched chunks.
	// Labels: executor, result (ok, failed)
	ChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sketchd",
			Subsystem: "execution",
			Name:      "chunks_total",
			Help:      "Chunks sent to the drawing arm by result",
		},
		[]string{"executor", "result"},
	)

	// PolylinesTotal counts polylines handed to executors.
	PolylinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sketchd",
			Subsystem: "execution",
			Name:      "polylines_total",
			Help:      "Polylines sent to the drawing arm",
		},
		[]string{"executor"},
	)

	// StopsTotal counts jobs interrupted by the stop signal.
	StopsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sketchd",
			Subsystem: "execution",
			Name:      "stops_total",
			Help:      "Jobs interrupted by a stop request",
		},
	)

	// ChunkDuration tracks how long the arm takes per chunk.
	ChunkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sketchd",
			Subsystem: "execution",
			Name:      "chunk_duration_seconds",
			Help:      "Time to draw one chunk",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"executor"},
	)
)
