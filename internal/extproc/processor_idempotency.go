package extproc

import (
	"context"
	"encoding/json"
	"fmt"

	extprocv3 "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"

	"github.com/pandora-labs/extproc-gateway/internal/idempotency"
)

// IdempotencyProcessorName is the -s/--service value selecting the
// idempotency engine.
const IdempotencyProcessorName = "IdempotencyEngine"

// NewIdempotencyProcessor wires engine's two-phase sentinel protocol into
// the request-headers, response-headers, and response-body phases. The
// other three phases fall back to ContinueHandler: the idempotency engine
// has nothing to say about request bodies or trailers.
func NewIdempotencyProcessor(engine *idempotency.Engine) *Processor {
	return &Processor{
		Name: IdempotencyProcessorName,
		Handlers: PhaseHandlers{
			RequestHeaders:  idempotencyRequestHeaders(engine),
			ResponseHeaders: idempotencyResponseHeaders(engine),
			ResponseBody:    idempotencyResponseBody(engine),
		},
	}
}

func idempotencyRequestHeaders(engine *idempotency.Engine) HandlerFunc {
	return func(ctx context.Context, call *CallContext, req *extprocv3.ProcessingRequest) (*extprocv3.ProcessingResponse, error) {
		headers := RawHeaders(req.GetRequestHeaders())
		method := HeaderValue(headers, ":method")

		if !engine.Guards(method) {
			call.Cached = nil
			return ContinueHandler(ctx, call, req)
		}

		path := HeaderValue(headers, ":path")
		tenant := HeaderValue(headers, "x-gateway-tenant")
		digest := HeaderValue(headers, "x-request-digest")
		idempotencyKey := HeaderValue(headers, "x-idempotency-key")
		key := idempotency.Key(idempotencyKey, digest)

		if existing, ok := engine.Lookup(ctx, key); ok {
			engine.RecordOutcome(outcomeFor(existing))
			return replayFromCache(existing), nil
		}

		entry, won := engine.CreateSentinel(ctx, key, tenant, path, digest)
		if !won {
			// Lost the race (or the store errored): load whatever is there now
			// and replay it, per the documented sentinel race tolerance.
			if existing, ok := engine.Lookup(ctx, key); ok {
				engine.RecordOutcome(outcomeFor(existing))
				return replayFromCache(existing), nil
			}
			engine.RecordOutcome("miss")
			return ContinueHandler(ctx, call, req)
		}

		engine.RecordOutcome("miss")
		call.Cached = entry
		return ContinueHandler(ctx, call, req)
	}
}

// outcomeFor classifies a looked-up entry for the idempotency_hits_total
// metric: a sentinel means another request is still in flight, anything
// else is a completed response being replayed from cache.
func outcomeFor(entry *idempotency.CachedEntry) string {
	if entry.IsSentinel() {
		return "in_flight"
	}
	return "cached"
}

func replayFromCache(entry *idempotency.CachedEntry) *extprocv3.ProcessingResponse {
	if entry.IsSentinel() {
		body, _ := json.Marshal(map[string]interface{}{
			"status":  409,
			"message": "Duplicate request in progress",
			"details": fmt.Sprintf("key=%s tenant=%s path=%s", entry.Key, entry.Tenant, entry.Path),
		})
		return immediateWithBody(409, nil, body)
	}

	set := make([]HeaderKV, 0, len(entry.Headers)+1)
	for _, h := range entry.Headers {
		set = append(set, HeaderKV{Key: h.Key, Value: h.Value})
	}
	set = append(set, HeaderKV{Key: "X-Gateway-Cached", Value: "true"})
	return immediateWithBody(entry.Status, buildHeaderMutation(HeaderMutation{Set: set}), entry.Body)
}

func idempotencyResponseHeaders(engine *idempotency.Engine) HandlerFunc {
	return func(ctx context.Context, call *CallContext, req *extprocv3.ProcessingRequest) (*extprocv3.ProcessingResponse, error) {
		if call.Cached == nil {
			return ContinueHandler(ctx, call, req)
		}

		key := idempotency.Key("", call.Cached.Digest)
		if call.Cached.Key != "" {
			key = call.Cached.Key
		}
		engine.ClearSentinel(ctx, key)

		headers := RawHeaders(req.GetResponseHeaders())
		for _, h := range NonPseudoHeaders(headers) {
			call.Cached.Headers = append(call.Cached.Headers, idempotency.HeaderKV{Key: h.Key, Value: h.Value})
		}
		if status := HeaderValue(headers, ":status"); status != "" {
			fmt.Sscanf(status, "%d", &call.Cached.Status)
		}

		return HeadersResponseWithMutation(false, HeaderMutation{Set: []HeaderKV{{Key: "X-Gateway-Cached", Value: "false"}}}), nil
	}
}

func idempotencyResponseBody(engine *idempotency.Engine) HandlerFunc {
	return func(ctx context.Context, call *CallContext, req *extprocv3.ProcessingRequest) (*extprocv3.ProcessingResponse, error) {
		if call.Cached == nil {
			return ContinueHandler(ctx, call, req)
		}

		body := req.GetResponseBody()
		key := call.Cached.Key
		engine.Complete(ctx, key, call.Cached, body.GetBody())

		return ContinueHandler(ctx, call, req)
	}
}
