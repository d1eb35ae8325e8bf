package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics:
// - Latency: tick and HTTP request durations
// - Traffic: job and request throughput
// - Errors: failed jobs and HTTP errors
// - Saturation: jobs advanced per tick against the concurrency cap
type Metrics struct {
	meter metric.Meter

	// HTTP metrics
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Queue metrics
	TickDuration      metric.Float64Histogram
	TickJobsAdvanced  metric.Int64Gauge
	JobsEnqueuedTotal metric.Int64Counter
	JobsDoneTotal     metric.Int64Counter
	JobRetriesTotal   metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("cel-translate")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Queue metrics
	m.TickDuration, err = meter.Float64Histogram(
		"tick_duration_seconds",
		metric.WithDescription("Scheduler tick duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TickJobsAdvanced, err = meter.Int64Gauge(
		"tick_jobs_advanced",
		metric.WithDescription("Jobs advanced by the last tick (saturation against the concurrency cap)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsEnqueuedTotal, err = meter.Int64Counter(
		"jobs_enqueued_total",
		metric.WithDescription("Total number of translation jobs enqueued"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsDoneTotal, err = meter.Int64Counter(
		"jobs_done_total",
		metric.WithDescription("Total number of jobs reaching a terminal state"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobRetriesTotal, err = meter.Int64Counter(
		"job_retries_total",
		metric.WithDescription("Total number of transient-failure retries scheduled"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// JobEnqueued records a new job entering the queue.
func (m *Metrics) JobEnqueued(ctx context.Context) {
	m.JobsEnqueuedTotal.Add(ctx, 1)
}

// JobCompleted records a job finishing successfully.
func (m *Metrics) JobCompleted(ctx context.Context) {
	m.JobsDoneTotal.Add(ctx, 1, metric.WithAttributes(successAttr(true)))
}

// JobFailed records a job reaching the failed state.
func (m *Metrics) JobFailed(ctx context.Context) {
	m.JobsDoneTotal.Add(ctx, 1, metric.WithAttributes(successAttr(false)))
}

// JobRetried records a transient failure being rescheduled.
func (m *Metrics) JobRetried(ctx context.Context) {
	m.JobRetriesTotal.Add(ctx, 1)
}

// TickCompleted records one scheduler pass.
func (m *Metrics) TickCompleted(ctx context.Context, seconds float64, advanced int) {
	m.TickDuration.Record(ctx, seconds)
	m.TickJobsAdvanced.Record(ctx, int64(advanced))
}
