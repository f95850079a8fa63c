// Package observe provides application-wide observability primitives for
// flexalign: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics of a long
// batch run can be scraped via the standard /metrics endpoint. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with a custom
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

// meterName is the instrumentation scope name used for all flexalign metrics.
const meterName = "github.com/MrWong99/flexalign"

// Pipeline stage names used as the "stage" attribute.
const (
	StageAlign   = "align"
	StageAnchor  = "anchor"
	StageSegment = "segment"
	StageMerge   = "merge"
	StageMap     = "map"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// StageDuration tracks the latency of one pipeline stage of one
	// recording. Use with attribute:
	//   attribute.String("stage", ...)
	StageDuration metric.Float64Histogram

	// AlignedRatio records the aligned ratio of every finished recording.
	AlignedRatio metric.Float64Histogram

	// --- Counters ---

	// Recordings counts processed recordings. Use with attribute:
	//   attribute.String("status", "ok"|"failed")
	Recordings metric.Int64Counter

	// Windows counts decoding windows folded into timelines. Use with attribute:
	//   attribute.String("outcome", "merged"|"skipped")
	Windows metric.Int64Counter

	// Anchors counts voice activity segments by mapping outcome. Use with attribute:
	//   attribute.String("status", "accepted"|"rejected"|"unmatched")
	Anchors metric.Int64Counter

	// --- Gauges ---

	// ActiveRecordings tracks the number of recordings being processed.
	ActiveRecordings metric.Int64UpDownCounter

	// --- Status server ---

	// HTTPRequestDuration is the time spent serving a status request,
	// labelled route, status and run_id by [Middleware].
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets defines histogram bucket boundaries (in seconds) for stage
// latencies, from a short utterance up to a long recording.
var stageBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60,
}

var ratioBuckets = []float64{
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.StageDuration, err = m.Float64Histogram("flexalign.stage.duration",
		metric.WithDescription("Latency of one pipeline stage of one recording."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AlignedRatio, err = m.Float64Histogram("flexalign.aligned_ratio",
		metric.WithDescription("Share of reference tokens covered by accepted anchors per recording."),
		metric.WithExplicitBucketBoundaries(ratioBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Recordings, err = m.Int64Counter("flexalign.recordings",
		metric.WithDescription("Total processed recordings by status."),
	); err != nil {
		return nil, err
	}
	if met.Windows, err = m.Int64Counter("flexalign.windows",
		metric.WithDescription("Total decoding windows by merge outcome."),
	); err != nil {
		return nil, err
	}
	if met.Anchors, err = m.Int64Counter("flexalign.anchors",
		metric.WithDescription("Total voice activity segments by anchor status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRecordings, err = m.Int64UpDownCounter("flexalign.active_recordings",
		metric.WithDescription("Number of recordings currently being processed."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("flexalign.http.request.duration",
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
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records the duration of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordRecording counts a finished recording and, when it succeeded, its
// aligned ratio.
func (m *Metrics) RecordRecording(ctx context.Context, err error, alignedRatio float64) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.Recordings.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if err == nil {
		m.AlignedRatio.Record(ctx, alignedRatio)
	}
}

// RecordWindows adds n windows with the given outcome.
func (m *Metrics) RecordWindows(ctx context.Context, outcome string, n int) {
	if n == 0 {
		return
	}
	m.Windows.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordAnchors adds n anchors with the given status.
func (m *Metrics) RecordAnchors(ctx context.Context, status string, n int) {
	if n == 0 {
		return
	}
	m.Anchors.Add(ctx, int64(n), metric.WithAttributes(attribute.String("status", status)))
}
