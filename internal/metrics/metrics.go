// Package metrics records per-task outcomes on a private Prometheus registry.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer receives one observation per completed task.
type Observer interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Recorder counts task results and durations per operation.
type Recorder struct {
	registry *prometheus.Registry
	tasks    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRecorder constructs a recorder with its own registry so concurrent
// recorders (and tests) never collide on collector names.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dsmanager",
			Name:      "tasks_total",
			Help:      "Completed tasks by operation and status.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dsmanager",
			Name:      "task_duration_seconds",
			Help:      "Task latency by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"operation"}),
	}
	r.registry.MustRegister(r.tasks, r.duration)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe records a task outcome. Empty operations are ignored.
func (r *Recorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.tasks.WithLabelValues(operation, status).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}

// Nop discards observations.
type Nop struct{}

func (Nop) Observe(context.Context, string, bool, time.Duration) {}
