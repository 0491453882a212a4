// Package prommetrics exports the droplet's operation and queue metrics to
// Prometheus.
package prommetrics

import (
	"context"
	"strings"

	"github.com/goliatone/go-droplet/core"
	"github.com/goliatone/go-job/queue/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal tracks core service operations by status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "droplet",
			Subsystem: "core",
			Name:      "operations_total",
			Help:      "Total number of core operations by status",
		},
		[]string{"operation", "status"},
	)

	// OperationDuration tracks core service operation duration.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "droplet",
			Subsystem: "core",
			Name:      "operation_duration_milliseconds",
			Help:      "Duration of core operations in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"operation"},
	)

	// QueueJobsTotal tracks background jobs by outcome.
	QueueJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "droplet",
			Subsystem: "queue",
			Name:      "jobs_processed_total",
			Help:      "Total number of queue jobs by outcome",
		},
		[]string{"job_id", "outcome"},
	)
)

// Recorder maps the core metric callbacks onto the Prometheus vectors.
// Installation and company tags are dropped so label cardinality stays
// bounded to operation and status.
type Recorder struct{}

var _ core.MetricsRecorder = Recorder{}

func (Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if value <= 0 {
		return
	}
	OperationsTotal.WithLabelValues(operationLabel(name, tags), statusLabel(tags)).Add(float64(value))
}

func (Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	OperationDuration.WithLabelValues(operationLabel(name, tags)).Observe(value)
}

// operationLabel prefers the operation tag; the metric name stripped of its
// prefix and suffix is the fallback for callers that pass bare names.
func operationLabel(name string, tags map[string]string) string {
	if operation := strings.TrimSpace(tags["operation"]); operation != "" {
		return operation
	}
	name = strings.TrimPrefix(strings.TrimSpace(name), "droplet.")
	name = strings.TrimSuffix(name, ".total")
	name = strings.TrimSuffix(name, ".duration_ms")
	if name == "" {
		return "unknown"
	}
	return name
}

func statusLabel(tags map[string]string) string {
	if status := strings.TrimSpace(tags["status"]); status != "" {
		return status
	}
	return "unknown"
}

// WorkerHook counts queue job outcomes from the background worker.
type WorkerHook struct{}

var _ worker.Hook = WorkerHook{}

func (WorkerHook) OnStart(context.Context, worker.Event) {}

func (WorkerHook) OnSuccess(_ context.Context, event worker.Event) {
	QueueJobsTotal.WithLabelValues(jobLabel(event), "success").Inc()
}

func (WorkerHook) OnFailure(_ context.Context, event worker.Event) {
	QueueJobsTotal.WithLabelValues(jobLabel(event), "failure").Inc()
}

func (WorkerHook) OnRetry(_ context.Context, event worker.Event) {
	QueueJobsTotal.WithLabelValues(jobLabel(event), "retry").Inc()
}

func jobLabel(event worker.Event) string {
	if event.Message != nil && strings.TrimSpace(event.Message.JobID) != "" {
		return event.Message.JobID
	}
	return "unknown"
}
