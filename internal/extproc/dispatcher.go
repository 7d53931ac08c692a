package extproc

import (
	"context"
	"fmt"
	"time"

	extprocv3 "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"

	"github.com/pandora-labs/extproc-gateway/internal/apperr"
	"github.com/pandora-labs/extproc-gateway/internal/concurrency"
)

// PhaseOf identifies which of the six phases a ProcessingRequest carries.
func PhaseOf(req *extprocv3.ProcessingRequest) (Phase, error) {
	switch req.Request.(type) {
	case *extprocv3.ProcessingRequest_RequestHeaders:
		return PhaseRequestHeaders, nil
	case *extprocv3.ProcessingRequest_RequestBody:
		return PhaseRequestBody, nil
	case *extprocv3.ProcessingRequest_RequestTrailers:
		return PhaseRequestTrailers, nil
	case *extprocv3.ProcessingRequest_ResponseHeaders:
		return PhaseResponseHeaders, nil
	case *extprocv3.ProcessingRequest_ResponseBody:
		return PhaseResponseBody, nil
	case *extprocv3.ProcessingRequest_ResponseTrailers:
		return PhaseResponseTrailers, nil
	default:
		return "", fmt.Errorf("unrecognized processing request variant %T", req.Request)
	}
}

// MetricsSink receives the dispatcher's per-message observations. The
// transport layer supplies a Prometheus-backed implementation; tests can
// supply a no-op.
type MetricsSink interface {
	RecordPhaseMessage(phase, responseType string, duration time.Duration)
	RecordPhaseHandlerPanic(phase string)
	RecordImmediateResponse(status, phase string)
	RecordError(errorType, component string)
}

type noopMetricsSink struct{}

func (noopMetricsSink) RecordPhaseMessage(string, string, time.Duration) {}
func (noopMetricsSink) RecordPhaseHandlerPanic(string)                   {}
func (noopMetricsSink) RecordImmediateResponse(string, string)           {}
func (noopMetricsSink) RecordError(string, string)                       {}

// NoopMetricsSink is the default sink used when the caller has none.
var NoopMetricsSink MetricsSink = noopMetricsSink{}

// Dispatch resolves req's phase, invokes the matching handler on proc, and
// converts any error the handler returns into an Immediate response. A
// recovered panic is treated the same as a returned error and surfaced as
// Immediate(500) — with one exception: a panic carrying a
// *concurrency.ViolationError is re-panicked after the stream is counted as
// aborted, since that failure mode indicates the safety property under
// test has already broken and must not be quietly downgraded to an
// ordinary HTTP error.
func Dispatch(ctx context.Context, call *CallContext, proc *Processor, req *extprocv3.ProcessingRequest, sink MetricsSink) (resp *extprocv3.ProcessingResponse, err error) {
	if sink == nil {
		sink = NoopMetricsSink
	}

	phase, err := PhaseOf(req)
	if err != nil {
		return nil, err
	}

	handler := proc.HandlerFor(phase)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			if violation, ok := r.(*concurrency.ViolationError); ok {
				sink.RecordPhaseHandlerPanic(string(phase))
				panic(violation)
			}

			sink.RecordPhaseHandlerPanic(string(phase))
			appErr := apperr.ServerError("PanicRecovered", fmt.Sprintf("%v", r))
			resp = ImmediateFromAppError(appErr)
			err = nil
			sink.RecordImmediateResponse(fmt.Sprintf("%d", appErr.Status), string(phase))
		}

		call.OverheadNS += time.Since(start).Nanoseconds()
		sink.RecordPhaseMessage(string(phase), responseTypeLabel(resp), time.Since(start))
	}()

	resp, handlerErr := handler(ctx, call, req)
	if handlerErr != nil {
		appErr := apperr.MapError(handlerErr)
		resp = ImmediateFromAppError(appErr)
		sink.RecordError(appErr.Code, string(phase))
		sink.RecordImmediateResponse(fmt.Sprintf("%d", appErr.Status), string(phase))
		return resp, nil
	}

	return resp, nil
}

func responseTypeLabel(resp *extprocv3.ProcessingResponse) string {
	if resp == nil {
		return "none"
	}
	if _, ok := resp.Response.(*extprocv3.ProcessingResponse_ImmediateResponse); ok {
		return "immediate"
	}
	return "continue"
}
