package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions is the number of sessions held in memory.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sketchd",
		Subsystem: "sessions",
		Name:      "active",
		Help:      "Sessions currently held in memory",
	})

	// SessionOps counts manager operations by kind and result.
	SessionOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sketchd",
		Subsystem: "sessions",
		Name:      "operations_total",
		Help:      "Session manager operations",
	}, []string{"op", "result"})
)
