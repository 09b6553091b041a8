// Package observe provides OpenTelemetry metrics for the velatura server,
// exported through a Prometheus bridge so the standard /metrics endpoint
// keeps working.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all velatura metrics.
const meterName = "github.com/museworks/velatura"

// Metrics holds all OTel metric instruments for the application. All fields
// are safe for concurrent use.
type Metrics struct {
	// GatewayDuration tracks remote gateway call latency. Use with attribute:
	//   attribute.String("capability", "transcribe"|"complete"|"synthesize")
	GatewayDuration metric.Float64Histogram

	// GatewayErrors counts failed gateway calls by capability.
	GatewayErrors metric.Int64Counter

	// RepliesGenerated counts finished generation tasks. Use with attribute:
	//   attribute.String("status", "completed"|"failed")
	RepliesGenerated metric.Int64Counter

	// CapturesNoSpeech counts captures that ended without detecting speech.
	CapturesNoSpeech metric.Int64Counter

	// ActiveSessions tracks the number of live conversation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// GenerationsInFlight tracks generation tasks between start and publish.
	GenerationsInFlight metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// remote speech and model calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.GatewayDuration, err = m.Float64Histogram("velatura.gateway.duration",
		metric.WithDescription("Latency of remote gateway calls by capability."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GatewayErrors, err = m.Int64Counter("velatura.gateway.errors",
		metric.WithDescription("Total failed gateway calls by capability."),
	); err != nil {
		return nil, err
	}
	if met.RepliesGenerated, err = m.Int64Counter("velatura.replies.generated",
		metric.WithDescription("Total finished generation tasks by status."),
	); err != nil {
		return nil, err
	}
	if met.CapturesNoSpeech, err = m.Int64Counter("velatura.captures.no_speech",
		metric.WithDescription("Total captures that ended without speech."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("velatura.active_sessions",
		metric.WithDescription("Number of live conversation sessions."),
	); err != nil {
		return nil, err
	}
	if met.GenerationsInFlight, err = m.Int64UpDownCounter("velatura.generations_in_flight",
		metric.WithDescription("Generation tasks between start and publish."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("velatura.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which cannot happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordGatewayCall records one gateway call's latency and, when err is
// non-nil, its failure.
func (m *Metrics) RecordGatewayCall(ctx context.Context, capability string, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("capability", capability))
	m.GatewayDuration.Record(ctx, elapsed.Seconds(), attrs)
	if err != nil {
		m.GatewayErrors.Add(ctx, 1, attrs)
	}
}

// RecordReply records a finished generation task.
func (m *Metrics) RecordReply(ctx context.Context, failed bool) {
	status := "completed"
	if failed {
		status = "failed"
	}
	m.RepliesGenerated.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)))
}
