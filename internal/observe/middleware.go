package observe

import (
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// RunHeader names the response header carrying the batch run id.
const RunHeader = "X-Flexalign-Run"

// unmatchedRoute labels requests no mux pattern matched, so stray paths do
// not grow the label set.
const unmatchedRoute = "unmatched"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments the status server of the batch run runID. Every
// request gets a server span named after the matched route and a sample in
// [Metrics.HTTPRequestDuration] labelled with route, status and run_id. The
// run id is echoed in [RunHeader] so a scraper can tell restarts apart.
func Middleware(m *Metrics, runID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := StartSpan(r.Context(), "status",
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attribute.String("run_id", runID)),
			)
			defer span.End()

			if runID != "" {
				w.Header().Set(RunHeader, runID)
			}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			r = r.WithContext(ctx)
			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" {
				route = unmatchedRoute
			}
			span.SetName("status " + route)
			span.SetAttributes(semconv.HTTPRoute(route), semconv.HTTPResponseStatusCode(rec.status))
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}

			elapsed := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
				attribute.String("route", route),
				attribute.String("status", strconv.Itoa(rec.status)),
				attribute.String("run_id", runID),
			))
			Logger(ctx).Debug("status request",
				"route", route,
				"status", rec.status,
				"duration", elapsed,
			)
		})
	}
}
