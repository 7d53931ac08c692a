package grpc

import (
	"errors"
	"io"
	"time"

	extprocv3 "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pandora-labs/extproc-gateway/internal/extproc"
	"github.com/pandora-labs/extproc-gateway/internal/observability"
)

// Server implements extprocv3.ExternalProcessorServer by running the
// process-wide active engine (selected once at startup via -s/--service)
// against every stream it accepts. Unlike a gateway that multiplexes many
// processors by request path, an ext_proc sidecar filter runs exactly one
// engine per deployment, so Process has nothing to dispatch on besides the
// phase the incoming ProcessingRequest carries.
type Server struct {
	extprocv3.UnimplementedExternalProcessorServer

	processor *extproc.Processor
	metrics   *observability.MetricsCollector
	logger    *observability.Logger
}

// NewServer builds a Server that dispatches every stream to processor.
// metrics is the concrete collector, not the narrower extproc.MetricsSink,
// since the stream lifecycle (RecordGRPCStream, active-stream gauge) needs
// methods that interface doesn't carry.
func NewServer(processor *extproc.Processor, metrics *observability.MetricsCollector, logger *observability.Logger) *Server {
	return &Server{processor: processor, metrics: metrics, logger: logger}
}

// Process implements the bidirectional streaming contract: it reads
// ProcessingRequest messages until the client half-closes or cancels,
// dispatching each to the active processor and writing back whatever
// response the dispatcher produces. A *concurrency.ViolationError escaping
// Dispatch propagates as a panic out of Process rather than being reported
// as an ordinary gRPC error; behind StreamRecoveryInterceptor, as main.go
// serves it, the panic is logged, counted, and ends the stream with an
// Internal status.
func (s *Server) Process(stream extprocv3.ExternalProcessor_ProcessServer) error {
	streamID := uuid.NewString()
	call := extproc.NewCallContext(streamID)
	ctx := stream.Context()
	start := time.Now()

	s.logger.WithField("stream_id", streamID).Debug("processing stream opened")

	if s.metrics != nil {
		s.metrics.IncrementActiveStreams()
		defer s.metrics.DecrementActiveStreams()
	}

	streamStatus := "ok"
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordGRPCStream(streamStatus, time.Since(start))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		req, err := stream.Recv()
		if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
			return nil
		}
		if err != nil {
			streamStatus = "error"
			s.logger.WithField("stream_id", streamID).WithError(err).Error("cannot receive processing request")
			return status.Errorf(codes.Unknown, "cannot receive processing request: %v", err)
		}

		resp, err := extproc.Dispatch(ctx, call, s.processor, req, s.dispatchSink())
		if err != nil {
			streamStatus = "error"
			s.logger.WithField("stream_id", streamID).WithError(err).Error("dispatch failed")
			return status.Errorf(codes.Unknown, "dispatch failed: %v", err)
		}

		if err := stream.Send(resp); err != nil {
			streamStatus = "error"
			s.logger.WithField("stream_id", streamID).WithError(err).Error("cannot send processing response")
			return status.Errorf(codes.Unknown, "cannot send processing response: %v", err)
		}
	}
}

// dispatchSink returns the narrower extproc.MetricsSink view of s.metrics,
// falling back to the no-op sink when no collector was configured.
func (s *Server) dispatchSink() extproc.MetricsSink {
	if s.metrics == nil {
		return extproc.NoopMetricsSink
	}
	return s.metrics
}
