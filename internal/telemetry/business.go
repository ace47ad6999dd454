package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BusinessTracer provides spans for domain operations such as analysis runs
// and outbound collaborator calls.
type BusinessTracer struct {
	tracer trace.Tracer
}

// NewBusinessTracer creates a BusinessTracer over the given tracer. A nil
// tracer selects the global analysis tracer.
func NewBusinessTracer(tracer trace.Tracer) *BusinessTracer {
	if tracer == nil {
		tracer = GetAnalysisTracer()
	}
	return &BusinessTracer{tracer: tracer}
}

// TraceAnalysisRun starts the span that covers one run from start to result.
func (bt *BusinessTracer) TraceAnalysisRun(ctx context.Context, runID, symbol, granularity string, generation uint64) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "analysis_run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.symbol", symbol),
			attribute.String("run.granularity", granularity),
			attribute.Int64("run.generation", int64(generation)),
		),
	)
}

// RecordStage adds a completed-stage event to a run span.
func (bt *BusinessTracer) RecordStage(span trace.Span, index int, label string) {
	span.AddEvent("stage_completed", trace.WithAttributes(
		attribute.Int("stage.index", index),
		attribute.String("stage.label", label),
	))
}

// RecordAnalysisResult annotates a run span with its outcome.
func (bt *BusinessTracer) RecordAnalysisResult(span trace.Span, signal string, confidence int, provider string) {
	span.SetAttributes(
		attribute.String("result.signal", signal),
		attribute.Int("result.confidence", confidence),
		attribute.String("result.provider", provider),
	)
	span.SetStatus(codes.Ok, "")
}

// RecordCancelled marks a run span as superseded.
func (bt *BusinessTracer) RecordCancelled(span trace.Span, reason string) {
	span.SetAttributes(attribute.Bool("run.cancelled", true), attribute.String("run.cancel_reason", reason))
}

// TraceCollaborator starts a span for a call to identity, storage or payments.
func (bt *BusinessTracer) TraceCollaborator(ctx context.Context, collaborator, operation string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, collaborator+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("collaborator", collaborator),
			attribute.String("operation", operation),
		),
	)
}

// RecordCollaboratorResult closes out a collaborator span's status.
func (bt *BusinessTracer) RecordCollaboratorResult(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
