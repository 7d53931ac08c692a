package extproc

import (
	"context"

	extprocv3 "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"

	"github.com/pandora-labs/extproc-gateway/internal/digest"
)

// DigestProcessorName is the -s/--service value selecting the digest
// engine.
const DigestProcessorName = "DigestEngine"

// DigestMetricsSink receives digest-computation counts. A
// Prometheus-backed collector satisfies this interface structurally; a nil
// sink passed to NewDigestProcessor falls back to a no-op.
type DigestMetricsSink interface {
	RecordDigestComputation()
}

type noopDigestMetricsSink struct{}

func (noopDigestMetricsSink) RecordDigestComputation() {}

// NewDigestProcessor maintains the rolling content digest across the
// request-headers and request-body phases. X-Request-Digest is emitted at
// request-headers only for GET, and at request-body after every body
// update. metrics may be nil.
func NewDigestProcessor(metrics DigestMetricsSink) *Processor {
	if metrics == nil {
		metrics = noopDigestMetricsSink{}
	}
	return &Processor{
		Name: DigestProcessorName,
		Handlers: PhaseHandlers{
			RequestHeaders: digestRequestHeaders(metrics),
			RequestBody:    digestRequestBody(metrics),
		},
	}
}

func digestRequestHeaders(metrics DigestMetricsSink) HandlerFunc {
	return func(ctx context.Context, call *CallContext, req *extprocv3.ProcessingRequest) (*extprocv3.ProcessingResponse, error) {
		raw := RawHeaders(req.GetRequestHeaders())
		tenant := HeaderValue(raw, "x-gateway-tenant")
		method := HeaderValue(raw, ":method")
		path := HeaderValue(raw, ":path")

		call.Digest = digest.New()
		digest.UpdateRequestLine(call.Digest, tenant, method, path)
		metrics.RecordDigestComputation()

		// GET carries no body, so its digest is already final here. Other
		// methods wait for the body phase before emitting the header.
		if method != "GET" {
			return ContinueHandler(ctx, call, req)
		}

		mutation := HeaderMutation{Set: []HeaderKV{{Key: "X-Request-Digest", Value: digest.HexDigest(call.Digest)}}}
		return HeadersResponseWithMutation(true, mutation), nil
	}
}

func digestRequestBody(metrics DigestMetricsSink) HandlerFunc {
	return func(ctx context.Context, call *CallContext, req *extprocv3.ProcessingRequest) (*extprocv3.ProcessingResponse, error) {
		if call.Digest == nil {
			return ContinueHandler(ctx, call, req)
		}

		digest.UpdateBody(call.Digest, req.GetRequestBody().GetBody())
		metrics.RecordDigestComputation()

		common := &extprocv3.CommonResponse{
			Status:         extprocv3.CommonResponse_CONTINUE,
			HeaderMutation: buildHeaderMutation(HeaderMutation{Set: []HeaderKV{{Key: "X-Request-Digest", Value: digest.HexDigest(call.Digest)}}}),
		}
		return &extprocv3.ProcessingResponse{
			Response: &extprocv3.ProcessingResponse_RequestBody{
				RequestBody: &extprocv3.BodyResponse{Response: common},
			},
		}, nil
	}
}
