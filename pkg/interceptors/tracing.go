package interceptors

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingInterceptor instruments RPCs with OpenTelemetry spans.
type TracingInterceptor struct {
	tracer trace.Tracer
}

// NewTracingInterceptor creates a tracing interceptor.
func NewTracingInterceptor(tracer trace.Tracer) *TracingInterceptor {
	if tracer == nil {
		tracer = otel.Tracer("gstreco/interceptors")
	}
	return &TracingInterceptor{tracer: tracer}
}

func (i *TracingInterceptor) start(ctx context.Context, procedure string) (context.Context, trace.Span) {
	ctx, span := i.tracer.Start(ctx, procedure, trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String("rpc.system", "connect"),
		attribute.String("rpc.service", serviceFromProcedure(procedure)),
		attribute.String("rpc.method", methodFromProcedure(procedure)),
	)
	if id, ok := RequestIDFromContext(ctx); ok {
		span.SetAttributes(attribute.String("rpc.request_id", id))
	}
	return ctx, span
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("rpc.connect.code", connect.CodeOf(err).String()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "ok")
	}
	span.End()
}

// WrapUnary implements connect.Interceptor.
func (i *TracingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		ctx, span := i.start(ctx, req.Spec().Procedure)
		resp, err := next(ctx, req)
		finish(span, err)
		return resp, err
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (i *TracingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

// WrapStreamingHandler implements connect.Interceptor.
func (i *TracingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, span := i.start(ctx, conn.Spec().Procedure)
		err := next(ctx, conn)
		finish(span, err)
		return err
	}
}

// serviceFromProcedure turns "/gstreco.v1.ReconciliationService/Reconcile"
// into "gstreco.v1.ReconciliationService".
func serviceFromProcedure(procedure string) string {
	trimmed := strings.TrimPrefix(procedure, "/")
	if i := strings.LastIndex(trimmed, "/"); i > 0 {
		return trimmed[:i]
	}
	return trimmed
}

func methodFromProcedure(procedure string) string {
	if i := strings.LastIndex(procedure, "/"); i >= 0 {
		return procedure[i+1:]
	}
	return procedure
}
