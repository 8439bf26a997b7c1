// Package rpc hosts the simulator's gRPC surface: the standard health
// service plus logging, tracing and metrics interceptors.
package rpc

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/wsn-simulator/internal/logging"
	"github.com/signalsfoundry/wsn-simulator/internal/observability"
)

const (
	tracerName          = "github.com/signalsfoundry/wsn-simulator/internal/rpc"
	runIDMetadataKey    = "x-run-id"
	runIDResponseHeader = "x-run-id"
)

// RunIDUnaryServerInterceptor tags every RPC with the simulation run it was
// served by. The run id is echoed in the response header and attached to a
// per-call logger annotated with the method.
func RunIDUnaryServerInterceptor(base logging.Logger, runID string) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if incoming := firstHeader(md, runIDMetadataKey); incoming != "" && incoming != runID {
				base.Debug(ctx, "caller expects a different run",
					logging.String("expected", incoming),
					logging.String("run_id", runID),
				)
			}
		}
		if runID != "" {
			ctx = logging.ContextWithRunID(ctx, runID)
			_ = grpc.SetHeader(ctx, metadata.Pairs(runIDResponseHeader, runID))
		}

		ctx, callLog := logging.WithRunLogger(ctx, base.With(logging.String("method", info.FullMethod)))
		ctx = logging.ContextWithLogger(ctx, callLog)

		resp, err := handler(ctx, req)
		callLog.Debug(ctx, "rpc handled", logging.String("code", status.Code(err).String()))
		return resp, err
	}
}

// TracingUnaryServerInterceptor names and annotates the server span started
// by the otelgrpc stats handler, or starts one when no handler is installed.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(tracerName)

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		service, method := observability.SplitMethod(info.FullMethod)
		spanName := fmt.Sprintf("WSN/%s/%s", service, method)
		span := trace.SpanFromContext(ctx)
		created := false
		if !span.SpanContext().IsValid() {
			ctx, span = tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindServer))
			created = true
		} else {
			span.SetName(spanName)
		}

		attrs := []attribute.KeyValue{
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
			attribute.String("rpc.full_method", strings.TrimPrefix(info.FullMethod, "/")),
		}
		if runID := logging.RunIDFromContext(ctx); runID != "" {
			attrs = append(attrs, attribute.String("run_id", runID))
		}
		span.SetAttributes(attrs...)

		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
		}
		if created {
			span.End()
		}
		return resp, err
	}
}

func firstHeader(md metadata.MD, key string) string {
	if md == nil {
		return ""
	}
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
