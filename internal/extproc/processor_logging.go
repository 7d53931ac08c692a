package extproc

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	extprocv3 "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"

	"github.com/pandora-labs/extproc-gateway/internal/logging"
)

// LogProcessorName is the -s/--service value selecting the log engine.
const LogProcessorName = "LogEngine"

// NewLogProcessor accumulates a structured Record across all four HTTP
// phases into call.Log, publishing it once at response-body completion.
func NewLogProcessor(engine *logging.Engine) *Processor {
	return &Processor{
		Name: LogProcessorName,
		Handlers: PhaseHandlers{
			RequestHeaders:  logRequestHeaders,
			RequestBody:     logRequestBody,
			ResponseHeaders: logResponseHeaders,
			ResponseBody:    logResponseBody(engine),
		},
	}
}

func logRequestHeaders(ctx context.Context, call *CallContext, req *extprocv3.ProcessingRequest) (*extprocv3.ProcessingResponse, error) {
	raw := RawHeaders(req.GetRequestHeaders())
	rec := logging.NewRecord()

	rec.Exchange.Method = HeaderValue(raw, ":method")
	rec.Exchange.Path = HeaderValue(raw, ":path")
	rec.Exchange.Domain = HeaderValue(raw, ":authority")
	rec.Exchange.Scheme = HeaderValue(raw, ":scheme")
	rec.Exchange.URL = fmt.Sprintf("%s://%s%s", rec.Exchange.Scheme, rec.Exchange.Domain, rec.Exchange.Path)
	rec.Exchange.RequestID = HeaderValue(raw, "x-request-id")

	if started := HeaderValue(raw, "x-request-started"); started != "" {
		if t, err := time.Parse(time.RFC3339, started); err == nil {
			rec.Exchange.StartTime = t
		}
	}

	rec.Identity.Tenant = HeaderValue(raw, "x-gateway-tenant")
	rec.Identity.UserID = HeaderValue(raw, "x-gateway-userid")
	rec.Identity.KeyID = HeaderValue(raw, "x-gateway-keyid")

	for _, h := range NonPseudoHeaders(raw) {
		rec.Request.Headers = append(rec.Request.Headers, logging.KV{Key: h.Key, Value: h.Value})
	}

	rec.ContentType = "text/plain"
	if ct := HeaderValue(raw, "content-type"); ct != "" {
		rec.ContentType = strings.ToLower(ct)
	}

	call.Log = rec
	return ContinueHandler(ctx, call, req)
}

func logRequestBody(ctx context.Context, call *CallContext, req *extprocv3.ProcessingRequest) (*extprocv3.ProcessingResponse, error) {
	if call.Log == nil {
		return ContinueHandler(ctx, call, req)
	}
	call.Log.Request.Body = logging.EncodeBody(call.Log.ContentType, req.GetRequestBody().GetBody())
	return ContinueHandler(ctx, call, req)
}

func logResponseHeaders(ctx context.Context, call *CallContext, req *extprocv3.ProcessingRequest) (*extprocv3.ProcessingResponse, error) {
	if call.Log == nil {
		return ContinueHandler(ctx, call, req)
	}

	raw := RawHeaders(req.GetResponseHeaders())
	if status := HeaderValue(raw, ":status"); status != "" {
		if n, err := strconv.Atoi(status); err == nil {
			call.Log.Exchange.Status = n
		}
	}
	for _, h := range NonPseudoHeaders(raw) {
		call.Log.Response.Headers = append(call.Log.Response.Headers, logging.KV{Key: h.Key, Value: h.Value})
	}

	// Reset to the default before checking the response: a JSON request
	// content-type must not leak into response-body encoding when the
	// response itself omits content-type.
	call.Log.ContentType = "text/plain"
	if ct := HeaderValue(raw, "content-type"); ct != "" {
		call.Log.ContentType = strings.ToLower(ct)
	}

	return ContinueHandler(ctx, call, req)
}

func logResponseBody(engine *logging.Engine) HandlerFunc {
	return func(ctx context.Context, call *CallContext, req *extprocv3.ProcessingRequest) (*extprocv3.ProcessingResponse, error) {
		if call.Log == nil {
			return ContinueHandler(ctx, call, req)
		}

		call.Log.Response.Body = logging.EncodeBody(call.Log.ContentType, req.GetResponseBody().GetBody())
		call.Log.Exchange.EndTime = time.Now()
		call.Log.Exchange.Duration = call.Log.Exchange.EndTime.Sub(call.Log.Exchange.StartTime)

		engine.Publish(call.Log)

		return ContinueHandler(ctx, call, req)
	}
}
