package runner

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics count the work done by a runner.
type Metrics struct {
	Frames       *prometheus.CounterVec
	Groups       *prometheus.CounterVec
	BytesWritten *prometheus.CounterVec
	StageSeconds *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tomoflow",
			Name:      "frames_processed_total",
			Help:      "Frames passed to plugins.",
		}, []string{"plugin"}),
		Groups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tomoflow",
			Name:      "groups_processed_total",
			Help:      "Frame-groups passed to plugins.",
		}, []string{"plugin"}),
		BytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tomoflow",
			Name:      "bytes_written_total",
			Help:      "Bytes of frame data written to datasets.",
		}, []string{"dataset"}),
		StageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tomoflow",
			Name:      "stage_duration_seconds",
			Help:      "Time taken by each stage.",
			Buckets:   []float64{0.01, 0.1, 0.3, 1, 3, 10, 30, 60, 300, 900, 3600},
		}, []string{"plugin"}),
	}
	reg.MustRegister(m.Frames, m.Groups, m.BytesWritten, m.StageSeconds)
	return m
}
