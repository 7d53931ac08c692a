package extproc

import (
	"encoding/json"
	"fmt"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	extprocv3 "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
	typev3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"

	"github.com/pandora-labs/extproc-gateway/internal/apperr"
)

// continueResponseFor builds the bare CONTINUE response matching whichever
// oneof field req arrived on, so a handler that has nothing to add can just
// call ContinueHandler without knowing its own phase.
func continueResponseFor(req *extprocv3.ProcessingRequest) (*extprocv3.ProcessingResponse, error) {
	common := &extprocv3.CommonResponse{Status: extprocv3.CommonResponse_CONTINUE}

	switch req.Request.(type) {
	case *extprocv3.ProcessingRequest_RequestHeaders:
		return &extprocv3.ProcessingResponse{
			Response: &extprocv3.ProcessingResponse_RequestHeaders{
				RequestHeaders: &extprocv3.HeadersResponse{Response: common},
			},
		}, nil
	case *extprocv3.ProcessingRequest_ResponseHeaders:
		return &extprocv3.ProcessingResponse{
			Response: &extprocv3.ProcessingResponse_ResponseHeaders{
				ResponseHeaders: &extprocv3.HeadersResponse{Response: common},
			},
		}, nil
	case *extprocv3.ProcessingRequest_RequestBody:
		return &extprocv3.ProcessingResponse{
			Response: &extprocv3.ProcessingResponse_RequestBody{
				RequestBody: &extprocv3.BodyResponse{Response: common},
			},
		}, nil
	case *extprocv3.ProcessingRequest_ResponseBody:
		return &extprocv3.ProcessingResponse{
			Response: &extprocv3.ProcessingResponse_ResponseBody{
				ResponseBody: &extprocv3.BodyResponse{Response: common},
			},
		}, nil
	case *extprocv3.ProcessingRequest_RequestTrailers:
		return &extprocv3.ProcessingResponse{
			Response: &extprocv3.ProcessingResponse_RequestTrailers{
				RequestTrailers: &extprocv3.TrailersResponse{},
			},
		}, nil
	case *extprocv3.ProcessingRequest_ResponseTrailers:
		return &extprocv3.ProcessingResponse{
			Response: &extprocv3.ProcessingResponse_ResponseTrailers{
				ResponseTrailers: &extprocv3.TrailersResponse{},
			},
		}, nil
	default:
		return nil, fmt.Errorf("unrecognized processing request variant %T", req.Request)
	}
}

// HeaderKV preserves header insertion order, unlike a map, since the order
// within a mutation's "set" list is part of the wire contract and must be
// honored by the proxy.
type HeaderKV struct {
	Key   string
	Value string
}

// HeaderMutation describes the headers a handler wants set or removed when
// continuing a headers phase.
type HeaderMutation struct {
	Set    []HeaderKV
	Remove []string
}

// HeadersResponseWithMutation builds a CONTINUE response for a headers
// phase that also carries a header mutation, used by the auth and digest
// engines to attach synthetic headers (X-Gateway-Tenant, X-Request-Digest,
// and similar) without short-circuiting the request.
func HeadersResponseWithMutation(isRequest bool, mut HeaderMutation) *extprocv3.ProcessingResponse {
	common := &extprocv3.CommonResponse{
		Status:         extprocv3.CommonResponse_CONTINUE,
		HeaderMutation: buildHeaderMutation(mut),
	}

	if isRequest {
		return &extprocv3.ProcessingResponse{
			Response: &extprocv3.ProcessingResponse_RequestHeaders{
				RequestHeaders: &extprocv3.HeadersResponse{Response: common},
			},
		}
	}
	return &extprocv3.ProcessingResponse{
		Response: &extprocv3.ProcessingResponse_ResponseHeaders{
			ResponseHeaders: &extprocv3.HeadersResponse{Response: common},
		},
	}
}

func buildHeaderMutation(mut HeaderMutation) *extprocv3.HeaderMutation {
	if len(mut.Set) == 0 && len(mut.Remove) == 0 {
		return nil
	}

	hm := &extprocv3.HeaderMutation{RemoveHeaders: mut.Remove}
	for _, kv := range mut.Set {
		hm.SetHeaders = append(hm.SetHeaders, headerValueOption(kv.Key, kv.Value))
	}
	return hm
}

// headerValueOption builds a single set-header entry; split out so the
// shape lives in exactly one place.
func headerValueOption(key, value string) *corev3.HeaderValueOption {
	return &corev3.HeaderValueOption{
		Header: &corev3.HeaderValue{Key: key, Value: value},
	}
}

// immediateWithBody builds an Immediate response carrying an explicit
// status, optional header mutation, and raw body — the shape the
// idempotency engine's cache-replay path needs, which ImmediateFromAppError
// does not cover since it always synthesizes its own JSON body.
func immediateWithBody(status int, mutation *extprocv3.HeaderMutation, body []byte) *extprocv3.ProcessingResponse {
	return &extprocv3.ProcessingResponse{
		Response: &extprocv3.ProcessingResponse_ImmediateResponse{
			ImmediateResponse: &extprocv3.ImmediateResponse{
				Status:  &typev3.HttpStatus{Code: typev3.StatusCode(status)},
				Headers: mutation,
				Body:    body,
			},
		},
	}
}

// errorBody is the documented Immediate error shape: status mirrors the
// HTTP-style code, message is the fixed category label (e.g.
// "Unauthenticated", "ServerError"), and details carries the specific kind
// and human message that the category alone doesn't convey.
type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// ImmediateFromAppError translates a domain error into the wire-level
// Immediate response Envoy will send directly to the downstream client,
// short-circuiting the rest of the filter chain.
func ImmediateFromAppError(err *apperr.AppError) *extprocv3.ProcessingResponse {
	body, _ := json.Marshal(errorBody{
		Status:  err.Status,
		Message: err.Label,
		Details: fmt.Sprintf("%s %s", err.Code, err.Message),
	})
	return &extprocv3.ProcessingResponse{
		Response: &extprocv3.ProcessingResponse_ImmediateResponse{
			ImmediateResponse: &extprocv3.ImmediateResponse{
				Status: &typev3.HttpStatus{Code: typev3.StatusCode(err.Status)},
				Body:   body,
			},
		},
	}
}
