package extproc

import (
	"context"

	extprocv3 "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
)

// HandlerFunc processes a single ProcessingRequest for one phase and
// returns the ProcessingResponse to send back on the stream. Returning a
// non-nil error causes the dispatcher to convert it into an Immediate
// response via apperr.MapError; the handler itself never constructs an
// Immediate response for an error path.
type HandlerFunc func(ctx context.Context, call *CallContext, req *extprocv3.ProcessingRequest) (*extprocv3.ProcessingResponse, error)

// PhaseHandlers is the table of per-phase logic a named processor
// implements. Any nil slot falls back to the default "just continue"
// handler installed by NewBaseProcessor.
type PhaseHandlers struct {
	RequestHeaders   HandlerFunc
	RequestBody      HandlerFunc
	RequestTrailers  HandlerFunc
	ResponseHeaders  HandlerFunc
	ResponseBody     HandlerFunc
	ResponseTrailers HandlerFunc
}

// Processor is a named, fully-wired phase handler table — one of
// BaseExternalProcessorService, the idempotency/auth/digest/log engines, or
// the concurrency-test processor, selected at startup by the -s flag.
type Processor struct {
	Name     string
	Handlers PhaseHandlers
}

// HandlerFor returns the handler registered for phase, or the processor's
// default continue handler if none was set.
func (p *Processor) HandlerFor(phase Phase) HandlerFunc {
	var h HandlerFunc
	switch phase {
	case PhaseRequestHeaders:
		h = p.Handlers.RequestHeaders
	case PhaseRequestBody:
		h = p.Handlers.RequestBody
	case PhaseRequestTrailers:
		h = p.Handlers.RequestTrailers
	case PhaseResponseHeaders:
		h = p.Handlers.ResponseHeaders
	case PhaseResponseBody:
		h = p.Handlers.ResponseBody
	case PhaseResponseTrailers:
		h = p.Handlers.ResponseTrailers
	}
	if h == nil {
		return ContinueHandler
	}
	return h
}
