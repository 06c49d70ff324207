package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/0x-wen/rlt/bench"
	"github.com/0x-wen/rlt/metrics"
)

// StartRunSpan opens a root span covering one run. Iteration spans are not
// parented to it; they carry rlt.run_id so the sampler decides per iteration.
func StartRunSpan(ctx context.Context, tracer trace.Tracer, runID, workload string) trace.Span {
	if tracer == nil {
		return trace.SpanFromContext(context.Background())
	}
	_, span := tracer.Start(ctx, "rlt.run",
		trace.WithNewRoot(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("rlt.run_id", runID),
			attribute.String("rlt.workload", workload),
		),
	)
	return span
}

// EndRunSpan closes a run span with the run's totals.
func EndRunSpan(span trace.Span, s metrics.Summary, err error) {
	EndSpan(span, err,
		attribute.Int64("rlt.iterations", int64(s.Iterations)),
		attribute.Int64("rlt.errors", int64(s.Errors)),
		attribute.Int64("rlt.items", int64(s.Items)),
		attribute.Bool("rlt.cancelled", s.Cancelled),
		attribute.Float64("rlt.iterations_per_sec", s.IterationsPerSec),
	)
}

// StartIterationSpan starts a span for one iteration of run runID. A nil
// tracer yields a non-recording span so callers need not branch.
func StartIterationSpan(ctx context.Context, tracer trace.Tracer, runID string, info bench.IterInfo) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	ctx, span := tracer.Start(ctx, "rlt.iteration",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("rlt.run_id", runID),
		attribute.Int64("rlt.worker_id", int64(info.WorkerID)),
		attribute.Int64("rlt.worker_seq", int64(info.WorkerSeq)),
		attribute.Int64("rlt.runner_seq", int64(info.RunnerSeq)),
	)
	return ctx, span
}

// EndIterationSpan finishes an iteration span with the report's outcome.
func EndIterationSpan(span trace.Span, report bench.IterReport, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("rlt.status", report.Status.Kind.String()),
		attribute.Int64("rlt.status_code", report.Status.Code),
		attribute.Int64("rlt.bytes", int64(report.Bytes)),
		attribute.Int64("rlt.items", int64(report.Items)),
	}
	if err == nil && report.Status.IsError() {
		span.SetAttributes(attrs...)
		span.SetStatus(codes.Error, report.Status.String())
		span.End()
		return
	}
	EndSpan(span, err, attrs...)
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
