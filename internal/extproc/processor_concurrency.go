package extproc

import (
	"context"
	"encoding/json"

	extprocv3 "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"

	"github.com/pandora-labs/extproc-gateway/internal/concurrency"
)

// ConcurrencyProcessorName is the -s/--service value selecting the
// concurrency-test engine.
const ConcurrencyProcessorName = "ConcurrencyTestEngine"

type concurrencyRecorded struct {
	path             string
	requestID        string
	gatewayRequestID string
}

// NewConcurrencyProcessor builds the correctness probe used in integration
// to assert CallContext is never leaked across streams: it records
// (path, x-request-id, x-gateway-request-id) at request-headers, then
// asserts at request-body that the body equals the recorded
// x-gateway-request-id, and at response-body that the parsed JSON body's
// "path" field equals the recorded path. A mismatch panics with a
// *concurrency.ViolationError, which the dispatcher re-panics rather than
// downgrading to an ordinary 500.
func NewConcurrencyProcessor(probe *concurrency.Probe) *Processor {
	return &Processor{
		Name: ConcurrencyProcessorName,
		Handlers: PhaseHandlers{
			RequestHeaders: concurrencyRequestHeaders(probe),
			RequestBody:    concurrencyRequestBody,
			ResponseBody:   concurrencyResponseBody,
		},
	}
}

func concurrencyRequestHeaders(probe *concurrency.Probe) HandlerFunc {
	return func(ctx context.Context, call *CallContext, req *extprocv3.ProcessingRequest) (*extprocv3.ProcessingResponse, error) {
		raw := RawHeaders(req.GetRequestHeaders())
		recorded := &concurrencyRecorded{
			path:             HeaderValue(raw, ":path"),
			requestID:        HeaderValue(raw, "x-request-id"),
			gatewayRequestID: HeaderValue(raw, "x-gateway-request-id"),
		}

		call.Probe = probe
		call.concurrencyState = recorded

		if err := probe.Enter(recorded.path, true); err != nil {
			panic(err)
		}

		return ContinueHandler(ctx, call, req)
	}
}

func concurrencyRequestBody(ctx context.Context, call *CallContext, req *extprocv3.ProcessingRequest) (*extprocv3.ProcessingResponse, error) {
	recorded := call.concurrencyState
	if recorded == nil {
		return ContinueHandler(ctx, call, req)
	}

	body := string(req.GetRequestBody().GetBody())
	if body != recorded.gatewayRequestID {
		panic(&concurrency.ViolationError{
			Key:    recorded.path,
			Detail: "request body does not match the gateway request id recorded at request-headers; CallContext may have leaked across streams",
		})
	}

	return ContinueHandler(ctx, call, req)
}

func concurrencyResponseBody(ctx context.Context, call *CallContext, req *extprocv3.ProcessingRequest) (*extprocv3.ProcessingResponse, error) {
	recorded := call.concurrencyState
	if recorded == nil {
		return ContinueHandler(ctx, call, req)
	}
	defer call.Probe.Leave(recorded.path)

	var parsed struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(req.GetResponseBody().GetBody(), &parsed); err != nil {
		panic(&concurrency.ViolationError{Key: recorded.path, Detail: "response body is not valid JSON"})
	}
	if parsed.Path != recorded.path {
		panic(&concurrency.ViolationError{
			Key:    recorded.path,
			Detail: "response body path does not match the path recorded at request-headers",
		})
	}

	return ContinueHandler(ctx, call, req)
}
