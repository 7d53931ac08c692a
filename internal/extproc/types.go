// Package extproc implements the phase dispatcher and response builders for
// the Envoy external processor contract: the per-stream bookkeeping, the
// six-phase handler table, and the translation between domain errors and
// the wire-level Immediate response.
package extproc

import (
	"hash"

	"github.com/pandora-labs/extproc-gateway/internal/concurrency"
	"github.com/pandora-labs/extproc-gateway/internal/idempotency"
	"github.com/pandora-labs/extproc-gateway/internal/logging"
)

// Phase names the six points in the request/response lifecycle a
// ProcessingRequest can arrive at.
type Phase string

const (
	PhaseRequestHeaders   Phase = "request_headers"
	PhaseRequestBody      Phase = "request_body"
	PhaseRequestTrailers  Phase = "request_trailers"
	PhaseResponseHeaders  Phase = "response_headers"
	PhaseResponseBody     Phase = "response_body"
	PhaseResponseTrailers Phase = "response_trailers"
)

// CallContext is the per-stream state threaded through every phase handler
// for a single HTTP exchange. It is allocated once when a stream opens and
// discarded when the stream closes; nothing in it is shared across streams.
type CallContext struct {
	// StreamID identifies the gRPC stream for logging and metrics.
	StreamID string

	// RequestID is not set by any processor and stays empty; the idempotency
	// processor keeps its key in Cached.Key instead.
	RequestID string

	// Identity carries the claims propagated by the auth engine once a
	// request has been authenticated. Nil until the auth engine runs.
	Identity *Identity

	// Cached holds the in-flight sentinel entry this stream created on a
	// cache miss; the response phases fill in its status, headers and body.
	// Nil when the method is not guarded, when a cached or in-flight entry
	// was replayed, or when the sentinel was not created.
	Cached *idempotency.CachedEntry

	// Sentinel is not set by any processor and stays false; a non-nil
	// Cached marks the stream that created the sentinel.
	Sentinel bool

	// Digest is the rolling SHA-256 accumulator the digest engine updates
	// incrementally at the request-headers and request-body phases.
	Digest hash.Hash

	// Log accumulates the fields the log engine will publish once the
	// exchange completes.
	Log *logging.Record

	// Probe is the concurrency-test engine's occupancy tracker for this
	// request's logical key, set only when the concurrency-test processor
	// is the active service.
	Probe *concurrency.Probe

	// OverheadNS accumulates the wall-clock nanoseconds spent inside phase
	// handlers for this stream. It is not part of the published log record.
	OverheadNS int64

	// concurrencyState is the concurrency-test engine's scratch state,
	// unexported since only processor_concurrency.go ever reads or writes
	// it — every other engine leaves it nil.
	concurrencyState *concurrencyRecorded
}

// Identity is the caller identity resolved by the auth engine from the
// out-of-band token exchange and JWT verification.
type Identity struct {
	Tenant string
	UserID string
	KeyID  string
	Claims map[string]interface{}
}

// NewCallContext allocates a fresh per-stream context.
func NewCallContext(streamID string) *CallContext {
	return &CallContext{StreamID: streamID}
}
