package server

import (
	"context"
	"fmt"

	"github.com/dicomkit/ulp/dataset"
	"github.com/dicomkit/ulp/dimse"
	"github.com/dicomkit/ulp/types"
)

// FindDispatcher routes a single CFindRQ registry slot to one of several
// C-FIND SCPs by AffectedSOPClassUID — Modality Worklist, Query/Retrieve,
// or any other information model an acceptor offers. dimse.Registry keys
// handlers by DIMSE command field alone (see worklist.FindHandler), so an
// acceptor that serves more than one C-FIND information model needs exactly
// one of these registered for types.CFindRQ.
type FindDispatcher struct {
	byAffectedSOPClass map[string]dimse.StreamingServiceHandler
}

// NewFindDispatcher builds an empty FindDispatcher; register each
// information model's handler with Register before wiring it into a
// Registry.
func NewFindDispatcher() *FindDispatcher {
	return &FindDispatcher{byAffectedSOPClass: make(map[string]dimse.StreamingServiceHandler)}
}

// Register wires handler to answer C-FIND requests whose
// AffectedSOPClassUID is sopClassUID.
func (d *FindDispatcher) Register(sopClassUID string, handler dimse.StreamingServiceHandler) {
	d.byAffectedSOPClass[sopClassUID] = handler
}

func (d *FindDispatcher) lookup(sopClassUID string) (dimse.StreamingServiceHandler, error) {
	handler, ok := d.byAffectedSOPClass[sopClassUID]
	if !ok {
		return nil, fmt.Errorf("server: no C-FIND handler for SOP class %s", sopClassUID)
	}
	return handler, nil
}

// HandleDIMSEStreaming satisfies dimse.StreamingServiceHandler, which
// dimse.Registry always prefers for a CFindRQ entry.
func (d *FindDispatcher) HandleDIMSEStreaming(ctx context.Context, msg *types.Message, data []byte, meta dimse.MessageContext, responder dimse.ResponseSender) error {
	handler, err := d.lookup(msg.AffectedSOPClassUID)
	if err != nil {
		return responder.SendResponse(dimse.CreateErrorResponse(msg, types.StatusRefused), nil)
	}
	return handler.HandleDIMSEStreaming(ctx, msg, data, meta, responder)
}

// HandleDIMSE satisfies dimse.ServiceHandler for registration; dimse.Serve
// always calls HandleDIMSEStreaming for a CFindRQ, so this only matters for
// callers that bypass the registry's streaming entry point.
func (d *FindDispatcher) HandleDIMSE(ctx context.Context, msg *types.Message, data []byte, meta dimse.MessageContext) (*types.Message, *dataset.Dataset, error) {
	handler, err := d.lookup(msg.AffectedSOPClassUID)
	if err != nil {
		return dimse.CreateErrorResponse(msg, types.StatusRefused), nil, nil
	}
	if single, ok := handler.(dimse.ServiceHandler); ok {
		return single.HandleDIMSE(ctx, msg, data, meta)
	}
	return dimse.CreateErrorResponse(msg, types.StatusRefused), nil, nil
}
