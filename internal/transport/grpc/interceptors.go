package grpc

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/pandora-labs/extproc-gateway/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	grpc_codes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Process is a long-lived bidirectional stream, so interceptors here wrap
// the whole stream rather than a single request/response pair the way a
// unary interceptor would: a logging line, a span, and a panic boundary
// each live for the stream's full lifetime, not per ProcessingRequest.

// StreamLoggingInterceptor logs the start and end of every processing
// stream, along with its duration and outcome.
func StreamLoggingInterceptor(logger *observability.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()

		logger.WithFields(map[string]interface{}{
			"method": info.FullMethod,
		}).Info("processing stream opened")

		err := handler(srv, ss)

		duration := time.Since(start)
		code := status.Code(err)

		logFields := map[string]interface{}{
			"method":   info.FullMethod,
			"duration": duration.String(),
			"code":     code.String(),
		}

		if err != nil {
			logFields["error"] = err.Error()
			logger.WithFields(logFields).Error("processing stream ended with error")
		} else {
			logger.WithFields(logFields).Info("processing stream closed")
		}

		return err
	}
}

// StreamTracingInterceptor opens one OpenTelemetry span spanning the
// lifetime of the processing stream.
func StreamTracingInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		tracer := otel.Tracer(observability.TracerName)

		ctx, span := tracer.Start(ss.Context(), info.FullMethod,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("rpc.system", "grpc"),
				attribute.String("rpc.service", "ExternalProcessor"),
				attribute.String("rpc.method", info.FullMethod),
			),
		)
		defer span.End()

		err := handler(srv, &tracedServerStream{ServerStream: ss, ctx: ctx})

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("rpc.grpc.status_code", status.Code(err).String()))
		} else {
			span.SetStatus(codes.Ok, "success")
			span.SetAttributes(attribute.String("rpc.grpc.status_code", grpc_codes.OK.String()))
		}

		return err
	}
}

// tracedServerStream overrides Context so downstream handlers observe the
// span-carrying context rather than the stream's original one.
type tracedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context { return s.ctx }

// StreamRecoveryInterceptor recovers a panic escaping the stream handler,
// logs it, and reports it to the client as Internal. extproc.Dispatch
// recovers ordinary phase-handler panics itself but re-panics a
// *concurrency.ViolationError, so that panic ends up here, as does anything
// else that slips past Dispatch (a bug in the dispatcher itself, or a panic
// in the stream's Recv/Send loop). metrics may be nil.
func StreamRecoveryInterceptor(logger *observability.Logger, metrics *observability.MetricsCollector) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"method": info.FullMethod,
					"panic":  fmt.Sprintf("%v", r),
					"stack":  string(debug.Stack()),
				}).Error("processing stream panicked")

				if metrics != nil {
					metrics.RecordPanic("grpc_stream")
				}

				err = status.Error(grpc_codes.Internal, "internal server error")
			}
		}()

		return handler(srv, ss)
	}
}
