package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/memhub/internal/store"
)

const instrumentation = "github.com/nextlevelbuilder/memhub"

// Pipeline stage span names.
const (
	StageResolve   = "resolve"
	StageClassify  = "classify"
	StageRetrieve  = "retrieve"
	StageRoute     = "route_rules"
	StagePersona   = "persona"
	StageAllocate  = "allocate"
	StageAssemble  = "assemble"
	StageSnapshot  = "snapshot"
	StageEmbedding = "embed_query"
)

// Start opens a span named after a pipeline stage. Without a configured
// provider the global no-op tracer is used.
func Start(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if rid := store.RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, attribute.String("memhub.request_id", rid))
	}
	return otel.Tracer(instrumentation).Start(ctx, stage, trace.WithAttributes(attrs...))
}

// End records err on the span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
