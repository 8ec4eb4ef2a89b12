// Package metrics records the outcome of snapshot runs as Prometheus metrics.
//
// The snapshot runs as a batch job, so metrics are written to a file in the
// node-exporter textfile format rather than served over HTTP.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GreedyKomodoDragon/s3-snapshot/internal/snapshot"
)

const namespace = "s3_snapshot"

// Recorder holds the metrics of a snapshot run
type Recorder struct {
	registry *prometheus.Registry

	copied             *prometheus.CounterVec
	failed             *prometheus.CounterVec
	duration           *prometheus.GaugeVec
	versionsConsidered *prometheus.GaugeVec
	keysResolved       *prometheus.GaugeVec
	lastRun            *prometheus.GaugeVec
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	labels := []string{"source", "destination"}

	r := &Recorder{
		registry: prometheus.NewRegistry(),
		copied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_copied_total",
			Help:      "Objects copied into the snapshot bucket",
		}, labels),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_failed_total",
			Help:      "Objects whose copy failed",
		}, labels),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Duration of the copy phase of the last run",
		}, labels),
		versionsConsidered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "versions_considered",
			Help:      "Versions and delete markers older than the cutoff",
		}, labels),
		keysResolved: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keys_resolved",
			Help:      "Keys resolved by outcome",
		}, append(labels, "outcome")),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}, labels),
	}

	r.registry.MustRegister(r.copied, r.failed, r.duration, r.versionsConsidered, r.keysResolved, r.lastRun)
	return r
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe records a finished run
func (r *Recorder) Observe(opts snapshot.Options, result *snapshot.Result, finishedAt time.Time) {
	if result == nil {
		return
	}
	src, dst := opts.Source, opts.Destination

	if result.History != nil {
		considered := len(result.History.Versions) + len(result.History.DeleteMarkers)
		r.versionsConsidered.WithLabelValues(src, dst).Set(float64(considered))
	}

	if res := result.Resolution; res != nil {
		r.keysResolved.WithLabelValues(src, dst, "copy").Set(float64(len(res.Candidates)))
		r.keysResolved.WithLabelValues(src, dst, "deleted").Set(float64(len(res.Deleted)))
		r.keysResolved.WithLabelValues(src, dst, "skipped").Set(float64(len(res.Skipped)))
	}

	if report := result.Report; report != nil {
		r.copied.WithLabelValues(src, dst).Add(float64(report.Succeeded))
		r.failed.WithLabelValues(src, dst).Add(float64(len(report.Failures)))
		r.duration.WithLabelValues(src, dst).Set(report.Duration.Seconds())
	}

	r.lastRun.WithLabelValues(src, dst).Set(float64(finishedAt.Unix()))
}

// WriteTextfile writes every metric to path for the node-exporter textfile collector
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
