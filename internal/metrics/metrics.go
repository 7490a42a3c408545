// Package metrics records the result of a run for the node exporter's
// textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes reported by the outcome gauge. Exactly one is 1 after a run.
var Outcomes = []string{"done", "skipped", "locked", "failed"}

// Run holds the gauges of one run.
type Run struct {
	registry *prometheus.Registry

	LastRun      prometheus.Gauge
	Duration     prometheus.Gauge
	Outcome      *prometheus.GaugeVec
	ExportedRows prometheus.Gauge
	Acknowledged prometheus.Gauge
	ErrorKind    *prometheus.GaugeVec
}

// New creates the gauges on a private registry.
func New() *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "datasender_last_run_timestamp_seconds",
			Help: "Start time of the last run.",
		}),
		Duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "datasender_last_run_duration_seconds",
			Help: "Duration of the last run.",
		}),
		Outcome: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "datasender_last_run_outcome",
			Help: "Outcome of the last run (1 for the reached outcome).",
		}, []string{"outcome"}),
		ExportedRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "datasender_last_export_rows",
			Help: "Rows written by the last export.",
		}),
		Acknowledged: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "datasender_last_run_acknowledged",
			Help: "1 if the last run consumed an acknowledgment.",
		}),
		ErrorKind: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "datasender_last_run_error",
			Help: "1 for the error kind of a failed last run.",
		}, []string{"kind"}),
	}
	r.registry.MustRegister(r.LastRun, r.Duration, r.Outcome, r.ExportedRows, r.Acknowledged, r.ErrorKind)
	for _, o := range Outcomes {
		r.Outcome.WithLabelValues(o).Set(0)
	}
	return r
}

// Finish records the end of a run.
func (r *Run) Finish(start time.Time, elapsed time.Duration, outcome, errKind string) {
	r.LastRun.Set(float64(start.Unix()))
	r.Duration.Set(elapsed.Seconds())
	for _, o := range Outcomes {
		v := 0.0
		if o == outcome {
			v = 1
		}
		r.Outcome.WithLabelValues(o).Set(v)
	}
	if errKind != "" {
		r.ErrorKind.WithLabelValues(errKind).Set(1)
	}
}

// Registry exposes the gauges for inspection.
func (r *Run) Registry() *prometheus.Registry { return r.registry }

// WriteTextfile writes the gauges to path atomically.
func (r *Run) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create metrics directory: %w", err)
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
