// Package tracing is the OTel tracer helper shared by the pipeline stages.
//
// Without a registered TracerProvider the global no-op provider is used and
// every call is inert.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "graphmerge"

// Attribute keys used across spans.
const (
	KeyTenant        = attribute.Key("graphmerge.tenant")
	KeyTransactionID = attribute.Key("graphmerge.tx.id")
	KeyStage         = attribute.Key("graphmerge.stage")
	KeyStatements    = attribute.Key("graphmerge.statements")
)

// Start creates a span as a child of the span in ctx. The caller must end it.
//
//	ctx, span := tracing.Start(ctx, "commit",
//	    tracing.KeyTenant.String(cs.Tenant()),
//	    tracing.KeyTransactionID.String(cs.ID().Value),
//	)
//	defer span.End()
func Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// Fail records err on span and marks it failed. A nil err is ignored.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
