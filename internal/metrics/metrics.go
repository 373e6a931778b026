package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TextfileName is the metrics file written into the output root.
const TextfileName = "metrics.prom"

// Recorder collects run metrics on a private registry. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	itemsTotal         *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	conversionAttempts *prometheus.CounterVec
	runDuration        prometheus.Gauge
}

// New creates a Recorder with all meshforge collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		itemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshforge",
				Name:      "items_total",
				Help:      "Batch items processed, by final status.",
			},
			[]string{"status"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "meshforge",
				Name:      "stage_duration_seconds",
				Help:      "Wall-clock duration of pipeline stages.",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"stage"},
		),
		conversionAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meshforge",
				Name:      "conversion_attempts_total",
				Help:      "Format conversion attempts, by backend and outcome.",
			},
			[]string{"backend", "outcome"},
		),
		runDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "meshforge",
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of the last batch run.",
			},
		),
	}
}

// ObserveItem counts one finished item. status is success, failure, or degraded.
func (r *Recorder) ObserveItem(status string) {
	if r == nil {
		return
	}
	r.itemsTotal.WithLabelValues(status).Inc()
}

// ObserveStage records one stage duration.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveConversion counts one conversion attempt.
func (r *Recorder) ObserveConversion(backend, outcome string) {
	if r == nil {
		return
	}
	r.conversionAttempts.WithLabelValues(backend, outcome).Inc()
}

// ObserveRun records the wall-clock duration of the run.
func (r *Recorder) ObserveRun(d time.Duration) {
	if r == nil {
		return
	}
	r.runDuration.Set(d.Seconds())
}

// Gatherer exposes the private registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// WriteTextfile writes the registry to dir/metrics.prom in the text exposition
// format used by node_exporter's textfile collector.
func (r *Recorder) WriteTextfile(dir string) (string, error) {
	if r == nil {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure metrics dir: %w", err)
	}
	path := filepath.Join(dir, TextfileName)
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return "", fmt.Errorf("write metrics: %w", err)
	}
	return path, nil
}
