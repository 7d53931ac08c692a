package extproc

import (
	"context"

	extprocv3 "github.com/envoyproxy/go-control-plane/envoy/service/ext_proc/v3"
)

// BaseProcessorName is the default processor selected when -s/--service is
// not given on the command line.
const BaseProcessorName = "BaseExternalProcessorService"

// ContinueHandler is the no-op default: it acknowledges the phase message
// with an empty CommonResponse carrying CONTINUE, performing no mutation.
func ContinueHandler(ctx context.Context, call *CallContext, req *extprocv3.ProcessingRequest) (*extprocv3.ProcessingResponse, error) {
	return continueResponseFor(req)
}

// NewBaseProcessor returns the processor used when no specialized engine is
// selected: every phase continues unmodified. It exists both as a sane
// default and as the reference implementation every other processor is
// diffed against in the end-to-end scenarios.
func NewBaseProcessor() *Processor {
	return &Processor{
		Name: BaseProcessorName,
		Handlers: PhaseHandlers{
			RequestHeaders:   ContinueHandler,
			RequestBody:      ContinueHandler,
			RequestTrailers:  ContinueHandler,
			ResponseHeaders:  ContinueHandler,
			ResponseBody:     ContinueHandler,
			ResponseTrailers: ContinueHandler,
		},
	}
}
